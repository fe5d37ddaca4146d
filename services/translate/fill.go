package translate

import (
	"context"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
)

// Options selects what Fill adds.
type Options struct {
	TargetLang string // empty skips translation
	Romanize   bool
}

// Fill adds missing translations and romanizations to doc in place. Lines
// that already carry them are left alone. The whole text goes out in one
// request; if the service does not preserve the line breaks, lines are sent
// one at a time. A failure leaves the affected field empty and is returned
// only if nothing could be filled.
func Fill(ctx context.Context, tr Translator, doc *lyrics.Document, opts Options) error {
	if tr == nil || doc == nil || doc.IsNotFound() {
		return nil
	}

	var firstErr error
	filled := 0

	if opts.TargetLang != "" && !sameLanguage(doc.Language, opts.TargetLang) {
		idx := pending(doc, func(l lyrics.Line) bool { return l.Translation == nil })
		out, err := batch(ctx, doc, idx, func(text string) (string, error) {
			return tr.Translate(ctx, text, opts.TargetLang)
		})
		for i, text := range out {
			if text != "" {
				doc.Lines[i].Translation = &lyrics.Translation{Text: text, Lang: opts.TargetLang}
				filled++
			}
		}
		if err != nil {
			firstErr = err
		}
	}

	if opts.Romanize {
		idx := pending(doc, func(l lyrics.Line) bool {
			return l.Romanization == "" && len(l.TimedRomanization) == 0 && !isLatin(l.Text)
		})
		out, err := batch(ctx, doc, idx, func(text string) (string, error) {
			return tr.Romanize(ctx, text, doc.Language)
		})
		for i, text := range out {
			if text != "" {
				doc.Lines[i].Romanization = text
				filled++
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		log.Warnf("%s Filled %d fields, last error: %v", logcolors.LogTranslate, filled, firstErr)
		if filled == 0 {
			return firstErr
		}
	}
	return nil
}

func pending(doc *lyrics.Document, want func(lyrics.Line) bool) []int {
	var idx []int
	for i, line := range doc.Lines {
		if strings.TrimSpace(line.Text) != "" && want(line) {
			idx = append(idx, i)
		}
	}
	return idx
}

// batch runs fn over the given lines and returns results by line index.
func batch(ctx context.Context, doc *lyrics.Document, idx []int, fn func(string) (string, error)) (map[int]string, error) {
	out := make(map[int]string, len(idx))
	if len(idx) == 0 {
		return out, nil
	}

	texts := make([]string, len(idx))
	for k, i := range idx {
		texts[k] = doc.Lines[i].Text
	}

	joined, err := fn(strings.Join(texts, "\n"))
	if err == nil {
		parts := strings.Split(strings.TrimRight(joined, "\n"), "\n")
		if len(parts) == len(idx) {
			for k, i := range idx {
				out[i] = strings.TrimSpace(parts[k])
			}
			return out, nil
		}
		log.Debugf("%s Batch returned %d lines for %d, falling back to per line", logcolors.LogTranslate, len(parts), len(idx))
	}

	var lastErr error
	for k, i := range idx {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := fn(texts[k])
		if err != nil {
			lastErr = err
			continue
		}
		out[i] = strings.TrimSpace(res)
	}
	return out, lastErr
}

func sameLanguage(a, b string) bool {
	base := func(s string) string {
		s = strings.ToLower(s)
		if i := strings.IndexAny(s, "-_"); i >= 0 {
			s = s[:i]
		}
		return s
	}
	return a != "" && base(a) == base(b)
}

// isLatin reports whether every letter in s is Latin script.
func isLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}
