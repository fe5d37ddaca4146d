package kugou

import (
	"encoding/base64"
	"fmt"
	"lyrics-sync-go/services/timedtext"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestNormalizeLyrics(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		contains  []string
		excludes  []string
		lineCount int
	}{
		{
			name: "Head credits removed",
			input: `[00:00.00]作词：Lyricist
[00:01.00]作曲：Composer
[00:05.00]Real lyrics start here
[00:10.00]More lyrics`,
			contains:  []string{"Real lyrics start here"},
			excludes:  []string{"作词", "作曲"},
			lineCount: 2,
		},
		{
			name:      "Pure music placeholder",
			input:     `[00:00.00]纯音乐，请欣赏`,
			contains:  []string{InstrumentalText},
			excludes:  []string{PureMusicText},
			lineCount: 1,
		},
		{
			name:      "HTML entities",
			input:     `[00:05.00]Don&apos;t stop believing`,
			contains:  []string{"Don't"},
			lineCount: 1,
		},
		{
			name: "Normal lyrics preserved",
			input: `[00:05.00]First line of lyrics
[00:10.00]Second line of lyrics
[00:15.00]Third line of lyrics`,
			lineCount: 3,
		},
		{
			name: "Id tags kept ahead of lyrics",
			input: `[offset:200]
[la:ja]
[00:05.00]Line`,
			contains:  []string{"[offset:200]", "[la:ja]"},
			lineCount: 3,
		},
		{
			name:      "Untimed text dropped",
			input:     "no timestamp here\n[00:05.00]Line",
			excludes:  []string{"no timestamp"},
			lineCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeLyrics(tt.input)
			for _, s := range tt.contains {
				if !strings.Contains(result, s) {
					t.Errorf("Expected %q in %q", s, result)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(result, s) {
					t.Errorf("Did not expect %q in %q", s, result)
				}
			}
			if got := len(strings.Split(result, "\n")); got != tt.lineCount {
				t.Errorf("Expected %d lines, got %d: %q", tt.lineCount, got, result)
			}
		})
	}
}

func TestNormalizeLyrics_TailCredits(t *testing.T) {
	// Need more than MaxHeadTailLines lines so the tail credit isn't in head range
	var lines []string
	for i := 0; i < 35; i++ {
		lines = append(lines, fmt.Sprintf("[00:%02d.00]Lyrics line %d", i, i+1))
	}
	lines = append(lines, "[03:00.00]制作：Producer")

	result := NormalizeLyrics(strings.Join(lines, "\n"))

	if strings.Contains(result, "制作") {
		t.Error("Should remove tail credit lines")
	}
	if !strings.Contains(result, "Lyrics line 1") {
		t.Error("Should keep real lyrics")
	}
}

func TestNormalizeLyrics_EmptyInput(t *testing.T) {
	if result := NormalizeLyrics(""); result != "" {
		t.Errorf("Expected empty string, got %q", result)
	}
}

func TestDecodeBase64Content(t *testing.T) {
	gbk, _ := simplifiedchinese.GBK.NewEncoder().String("[00:05.00]晴天")

	tests := []struct {
		name        string
		input       string
		expected    string
		expectError bool
	}{
		{"Basic ASCII", base64.StdEncoding.EncodeToString([]byte("[00:05.00]Hello")), "[00:05.00]Hello", false},
		{"UTF-8 content", base64.StdEncoding.EncodeToString([]byte("[00:05.00]你好")), "[00:05.00]你好", false},
		{"With BOM", base64.StdEncoding.EncodeToString([]byte("\ufeff[00:05.00]Content")), "[00:05.00]Content", false},
		{"GBK payload", base64.StdEncoding.EncodeToString([]byte(gbk)), "[00:05.00]晴天", false},
		{"Empty", "", "", false},
		{"Invalid base64", "not-valid-base64!!!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodeBase64Content(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("DecodeBase64Content() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		content  string
		expected string
	}{
		{"Metadata language", map[string]string{"language": "Chinese"}, "hello", "zh"},
		{"Metadata la tag", map[string]string{"la": "ja"}, "hello", "ja"},
		{"Kugou translation payload ignored", map[string]string{"language": "eyJjb250ZW50IjpbXX0="}, "안녕하세요", "ko"},
		{"Chinese characters", nil, "你好世界", "zh"},
		{"Japanese hiragana", nil, "こんにちは", "ja"},
		{"Japanese katakana", nil, "コンニチハ", "ja"},
		{"Korean", nil, "안녕하세요", "ko"},
		{"Mixed with Chinese first", nil, "你好 hello", "zh"},
		{"English only", nil, "Hello world", "en"},
		{"Empty content", nil, "", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.metadata, tt.content); got != tt.expected {
				t.Errorf("DetectLanguage() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeLanguageCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"中文", "zh"},
		{"粤语", "zh"},
		{"国语", "zh"},
		{"日语", "ja"},
		{"korean", "ko"},
		{"英语", "en"},
		{"西班牙语", "es"},
		{"french", "fr"},
		{"德语", "de"},
		{"  ENGLISH  ", "en"},
		{"zh", "zh"},
		{"Klingon", "en"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeLanguageCode(tt.input); got != tt.expected {
				t.Errorf("normalizeLanguageCode(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizedLyricsParse(t *testing.T) {
	lrc := `[ar:周杰伦]
[ti:晴天]
[hash:abc123]
[00:00.00]晴天 - 周杰伦
[00:05.50]词：周杰伦
[00:08.00]曲：周杰伦
[00:15.00]故事的小黄花
[00:18.50]从出生那年就飘着
[00:22.00]童年的荡秋千
[00:25.50]随记忆一直晃到现在`

	doc, metadata, err := timedtext.ParseLRC(NormalizeLyrics(lrc), 30000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if metadata["ar"] != "周杰伦" || metadata["ti"] != "晴天" {
		t.Errorf("Expected id tags to survive normalization, got %v", metadata)
	}
	if len(doc.Lines) != 4 {
		t.Fatalf("Expected 4 lyric lines after credit trimming, got %d", len(doc.Lines))
	}
	if doc.Lines[0].Text != "故事的小黄花" || doc.Lines[0].StartTimeMs != 15000 {
		t.Errorf("Unexpected first line %+v", doc.Lines[0])
	}
	if lang := DetectLanguage(metadata, doc.Text()); lang != "zh" {
		t.Errorf("Expected language 'zh', got %q", lang)
	}
}
