package kugou

import (
	"encoding/base64"
	"lyrics-sync-go/utils"
	"regexp"
	"strings"
	"unicode"
)

const (
	// PureMusicText is the placeholder Kugou serves for instrumental tracks.
	PureMusicText = "纯音乐，请欣赏"

	// InstrumentalText replaces PureMusicText.
	InstrumentalText = "[Instrumental Only]"

	// MaxHeadTailLines is how far into either end credit lines are looked for.
	MaxHeadTailLines = 30
)

var (
	timedLineRegex = regexp.MustCompile(`\[(\d{2}):(\d{2})[\.:]+(\d{2,3})\]`)
	idTagRegex     = regexp.MustCompile(`^\[([a-zA-Z]+):([^\]]*)\]$`)

	// A timed line of the form "role：name" (full-width colon), e.g.
	// "[00:05.00]作词：xxx". Same rule as Metrolist's KuGou client.
	creditRegex = regexp.MustCompile(`^\[\d{2}:\d{2}[\.:]\d{2,3}\].+：.+`)
)

// DecodeBase64Content decodes a downloaded candidate. Payloads that are not
// UTF-8 are decoded as GBK.
func DecodeBase64Content(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	content, err := utils.DecodeText(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(content, "\ufeff"), nil
}

// NormalizeLyrics keeps id tags and timed lines, and cuts the credit block
// at either end. Instrumental placeholders become a single
// InstrumentalText line.
func NormalizeLyrics(content string) string {
	content = strings.ReplaceAll(content, "&apos;", "'")
	if strings.Contains(content, PureMusicText) {
		return "[00:00.00]" + InstrumentalText
	}

	var tags, timed []string
	for _, raw := range strings.Split(content, "\n") {
		switch line := strings.TrimSpace(raw); {
		case line == "":
		case idTagRegex.MatchString(line):
			tags = append(tags, line)
		case timedLineRegex.MatchString(line):
			timed = append(timed, line)
		}
	}
	if len(timed) == 0 {
		return content
	}

	return strings.Join(append(tags, trimCredits(timed)...), "\n")
}

// trimCredits drops everything up to the last credit line near the head,
// and everything from the last credit line near the tail.
func trimCredits(lines []string) []string {
	start := 0
	for i := min(MaxHeadTailLines, len(lines)) - 1; i >= 0; i-- {
		if creditRegex.MatchString(lines[i]) {
			start = i + 1
			break
		}
	}

	end := len(lines)
	for i := len(lines) - 1; i >= start && i >= len(lines)-MaxHeadTailLines; i-- {
		if creditRegex.MatchString(lines[i]) {
			end = i
			break
		}
	}
	return lines[start:end]
}

var scriptLanguages = []struct {
	script *unicode.RangeTable
	lang   string
}{
	{unicode.Han, "zh"},
	{unicode.Hiragana, "ja"},
	{unicode.Katakana, "ja"},
	{unicode.Hangul, "ko"},
}

// DetectLanguage reads the language from the id tags, or guesses it from the
// first CJK character in content. Everything else is reported as English.
func DetectLanguage(metadata map[string]string, content string) string {
	// Kugou's own [language:] tag holds a base64 translation payload rather
	// than a code, hence the length check.
	for _, key := range []string{"language", "la"} {
		if lang := metadata[key]; lang != "" && len(lang) <= 16 {
			return normalizeLanguageCode(lang)
		}
	}

	for _, r := range content {
		for _, s := range scriptLanguages {
			if unicode.Is(s.script, r) {
				return s.lang
			}
		}
	}
	return "en"
}

var languageNames = map[string]string{
	"英语": "en", "english": "en", "eng": "en",
	"中文": "zh", "chinese": "zh", "chi": "zh", "普通话": "zh", "国语": "zh", "粤语": "zh",
	"日语": "ja", "japanese": "ja", "jpn": "ja",
	"韩语": "ko", "korean": "ko", "kor": "ko",
	"西班牙语": "es", "spanish": "es", "spa": "es",
	"法语": "fr", "french": "fr", "fra": "fr",
	"德语": "de", "german": "de", "ger": "de",
}

// normalizeLanguageCode maps a language name to its ISO 639-1 code. Short
// unknown values are assumed to be codes already.
func normalizeLanguageCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageNames[lang]; ok {
		return code
	}
	if len(lang) <= 3 {
		return lang
	}
	return "en"
}
