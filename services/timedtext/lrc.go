package timedtext

import (
	"errors"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrNoLines is returned when a document contains no usable timed lines.
var ErrNoLines = errors.New("no timed lines in document")

var (
	// [mm:ss], [mm:ss.x], [mm:ss.xx], [mm:ss.xxx], [mm:ss:xx]
	lrcTimeRegex = regexp.MustCompile(`^\[(\d+):(\d{1,2})(?:[.:](\d{1,3}))?\]`)

	// <mm:ss.xx> word boundary tokens
	lrcInlineRegex = regexp.MustCompile(`<(\d+):(\d{1,2})(?:[.:](\d{1,3}))?>`)

	// [tag:value]
	lrcTagRegex = regexp.MustCompile(`^\[([a-zA-Z#]+):([^\]]*)\]$`)
)

// Metadata holds LRC id tags, keyed by lower-cased tag name.
type Metadata map[string]string

// rawPart is a part whose duration is not known yet.
type rawPart struct {
	start int64
	end   int64 // -1 when implied by the next token
	text  string
}

type rawLine struct {
	start int64
	text  string
	parts []rawPart
}

// ParseLRC parses LRC text with the default repair settings.
func ParseLRC(content string, songDurationMs int64) (*lyrics.Document, Metadata, error) {
	return ParseLRCWith(content, songDurationMs, DefaultRepair)
}

// ParseLRCWith parses LRC text into a sorted document. Lines without a
// timestamp are skipped. When any line carries inline word tokens, every line
// gets parts; otherwise the document stays line-synced.
func ParseLRCWith(content string, songDurationMs int64, repair RepairConfig) (*lyrics.Document, Metadata, error) {
	metadata := make(Metadata)
	var lines []rawLine
	hasInline := false
	skipped := 0

	content = strings.TrimPrefix(content, "\ufeff")
	for _, raw := range strings.Split(content, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if m := lrcTagRegex.FindStringSubmatch(raw); m != nil {
			metadata[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
			continue
		}

		var stamps []int64
		rest := raw
		for {
			m := lrcTimeRegex.FindStringSubmatch(rest)
			if m == nil {
				break
			}
			stamps = append(stamps, clockToMs(m[1], m[2], m[3]))
			rest = rest[len(m[0]):]
		}
		if len(stamps) == 0 {
			skipped++
			continue
		}

		text, parts := splitInline(rest, stamps[0])
		if parts != nil {
			hasInline = true
		}

		for _, stamp := range stamps {
			shift := stamp - stamps[0]
			line := rawLine{start: stamp, text: text}
			if parts != nil {
				line.parts = make([]rawPart, len(parts))
				for i, p := range parts {
					line.parts[i] = p
					line.parts[i].start += shift
					if p.end >= 0 {
						line.parts[i].end += shift
					}
				}
			}
			lines = append(lines, line)
		}
	}

	if skipped > 0 {
		log.Debugf("%s Skipped %d lines without timestamps", logcolors.LogLRCParser, skipped)
	}
	if len(lines) == 0 {
		return &lyrics.Document{}, metadata, ErrNoLines
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].start < lines[j].start })

	if offset := parseOffset(metadata["offset"]); offset != 0 {
		applyOffset(lines, offset)
	}

	doc := &lyrics.Document{
		Lines:    make([]lyrics.Line, len(lines)),
		Language: metadataLanguage(metadata),
	}
	for i, rl := range lines {
		doc.Lines[i] = lyrics.Line{StartTimeMs: rl.start, Text: strings.TrimSpace(rl.text)}
	}
	doc.BackfillDurations(songDurationMs)

	if hasInline {
		for i := range lines {
			buildParts(doc, lines, i, songDurationMs)
		}
		repair.Apply(doc)
	}

	log.Debugf("%s Parsed %d lines (%s)", logcolors.LogLRCParser, len(doc.Lines), doc.SyncGranularity())
	return doc, metadata, nil
}

// splitInline cuts the text after the line timestamps at its inline tokens.
// It returns nil parts when the line has no tokens.
func splitInline(rest string, lineStart int64) (string, []rawPart) {
	locs := lrcInlineRegex.FindAllStringSubmatchIndex(rest, -1)
	if len(locs) == 0 {
		return rest, nil
	}

	var parts []rawPart
	var text strings.Builder

	if lead := rest[:locs[0][0]]; strings.TrimSpace(lead) != "" {
		parts = append(parts, rawPart{start: lineStart, end: -1, text: lead})
		text.WriteString(lead)
	}

	for i, loc := range locs {
		stamp := clockToMs(rest[loc[2]:loc[3]], rest[loc[4]:loc[5]], submatch(rest, loc, 6))
		segEnd := len(rest)
		if i+1 < len(locs) {
			segEnd = locs[i+1][0]
		}
		segment := rest[loc[1]:segEnd]

		if segment == "" {
			// a token with no text closes the previous part
			if len(parts) > 0 && parts[len(parts)-1].end < 0 {
				parts[len(parts)-1].end = stamp
			}
			continue
		}
		parts = append(parts, rawPart{start: stamp, end: -1, text: segment})
		text.WriteString(segment)
	}

	return text.String(), parts
}

// buildParts turns the raw parts of line i into timed parts. Lines without
// tokens in a word-synced document become a single part spanning the line.
func buildParts(doc *lyrics.Document, lines []rawLine, i int, songDurationMs int64) {
	line := &doc.Lines[i]
	raw := lines[i].parts

	if len(raw) == 0 {
		if line.Text != "" {
			line.Parts = []lyrics.Part{{
				StartTimeMs: line.StartTimeMs,
				DurationMs:  line.DurationMs,
				Text:        line.Text,
			}}
		}
		return
	}

	sort.SliceStable(raw, func(a, b int) bool { return raw[a].start < raw[b].start })

	parts := make([]lyrics.Part, len(raw))
	var textBuf strings.Builder
	for j, rp := range raw {
		end := rp.end
		if end < 0 {
			if j+1 < len(raw) {
				end = raw[j+1].start
			} else {
				end = nextLineFirstPart(lines, i, songDurationMs)
			}
		}
		dur := end - rp.start
		if dur < 0 {
			dur = 0
		}
		parts[j] = lyrics.Part{StartTimeMs: rp.start, DurationMs: dur, Text: rp.text}
		textBuf.WriteString(rp.text)
	}

	line.Parts = parts
	line.Text = strings.TrimSpace(textBuf.String())

	// the final line has nothing after it when the song length is unknown
	if line.DurationMs == 0 {
		last := parts[len(parts)-1]
		if end := last.EndTimeMs(); end > line.StartTimeMs {
			line.DurationMs = end - line.StartTimeMs
		}
	}
}

// nextLineFirstPart finds where the final part of line i ends: the first part
// of the next later line, that line's start, or the song end.
func nextLineFirstPart(lines []rawLine, i int, songDurationMs int64) int64 {
	for j := i + 1; j < len(lines); j++ {
		if lines[j].start <= lines[i].start {
			continue
		}
		if len(lines[j].parts) > 0 {
			return lines[j].parts[0].start
		}
		return lines[j].start
	}
	if songDurationMs > 0 {
		return songDurationMs
	}
	return -1
}

// applyOffset follows the LRC convention: a positive offset makes lyrics
// appear earlier.
func applyOffset(lines []rawLine, offset int64) {
	shift := func(t int64) int64 {
		t -= offset
		if t < 0 {
			return 0
		}
		return t
	}
	for i := range lines {
		lines[i].start = shift(lines[i].start)
		for j := range lines[i].parts {
			lines[i].parts[j].start = shift(lines[i].parts[j].start)
			if lines[i].parts[j].end >= 0 {
				lines[i].parts[j].end = shift(lines[i].parts[j].end)
			}
		}
	}
}

func parseOffset(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	offset, err := strconv.ParseInt(strings.TrimPrefix(value, "+"), 10, 64)
	if err != nil {
		log.Debugf("%s Ignoring invalid offset tag %q", logcolors.LogLRCParser, value)
		return 0
	}
	return offset
}

func metadataLanguage(metadata Metadata) string {
	if lang := metadata["la"]; lang != "" {
		return lang
	}
	return metadata["language"]
}

func submatch(s string, loc []int, idx int) string {
	if loc[idx] < 0 {
		return ""
	}
	return s[loc[idx]:loc[idx+1]]
}

// clockToMs converts minute, second and fraction strings to milliseconds. The
// fraction is read as a decimal, so "5", "50" and "500" are all half a second.
func clockToMs(minutes, seconds, fraction string) int64 {
	m, _ := strconv.ParseInt(minutes, 10, 64)
	s, _ := strconv.ParseInt(seconds, 10, 64)
	var frac float64
	if fraction != "" {
		frac, _ = strconv.ParseFloat("0."+fraction, 64)
	}
	return m*60_000 + s*1000 + int64(math.Round(frac*1000))
}
