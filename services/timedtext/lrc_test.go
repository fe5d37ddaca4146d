package timedtext

import (
	"errors"
	"lyrics-sync-go/services/lyrics"
	"testing"
)

func TestParseLRC_WordSyncedScenario(t *testing.T) {
	content := "[00:01.00]<00:01.00>Hello <00:01.50>world\n[00:03.00]Next line"

	doc, _, err := ParseLRC(content, 5000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(doc.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(doc.Lines))
	}

	first := doc.Lines[0]
	if first.StartTimeMs != 1000 || first.DurationMs != 2000 {
		t.Errorf("Line 1: expected 1000/2000, got %d/%d", first.StartTimeMs, first.DurationMs)
	}
	if first.Text != "Hello world" {
		t.Errorf("Line 1: expected text 'Hello world', got %q", first.Text)
	}

	expectedParts := []lyrics.Part{
		{StartTimeMs: 1000, DurationMs: 500, Text: "Hello "},
		{StartTimeMs: 1500, DurationMs: 1500, Text: "world"},
	}
	if len(first.Parts) != len(expectedParts) {
		t.Fatalf("Line 1: expected %d parts, got %d", len(expectedParts), len(first.Parts))
	}
	for i, want := range expectedParts {
		if first.Parts[i] != want {
			t.Errorf("Line 1 part %d: expected %+v, got %+v", i, want, first.Parts[i])
		}
	}

	second := doc.Lines[1]
	if second.StartTimeMs != 3000 || second.DurationMs != 2000 || second.Text != "Next line" {
		t.Errorf("Line 2: expected 3000/2000 'Next line', got %d/%d %q",
			second.StartTimeMs, second.DurationMs, second.Text)
	}

	if got := doc.SyncGranularity(); got != lyrics.SyncWord {
		t.Errorf("Expected word granularity, got %q", got)
	}
	if errs := doc.Validate(); len(errs) != 0 {
		t.Errorf("Expected a valid document, got %v", errs)
	}
}

func TestParseLRC_LineSynced(t *testing.T) {
	content := `[ti:Song]
[ar:Artist]
[00:12.00]First line
[00:17.20]Second line
not a lyric line
[00:21.10]Third line`

	doc, metadata, err := ParseLRC(content, 30000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if metadata["ti"] != "Song" || metadata["ar"] != "Artist" {
		t.Errorf("Expected metadata tags, got %v", metadata)
	}
	if len(doc.Lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(doc.Lines))
	}

	expected := []struct {
		start, duration int64
	}{
		{12000, 5200},
		{17200, 3900},
		{21100, 8900},
	}
	for i, want := range expected {
		line := doc.Lines[i]
		if line.StartTimeMs != want.start || line.DurationMs != want.duration {
			t.Errorf("Line %d: expected %d/%d, got %d/%d", i, want.start, want.duration, line.StartTimeMs, line.DurationMs)
		}
		if len(line.Parts) != 0 {
			t.Errorf("Line %d: expected no parts in a line-synced document, got %d", i, len(line.Parts))
		}
	}

	if got := doc.SyncGranularity(); got != lyrics.SyncLine {
		t.Errorf("Expected line granularity, got %q", got)
	}
}

func TestParseLRC_TimestampForms(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected int64
	}{
		{"Centiseconds", "[01:02.34]x", 62340},
		{"Milliseconds", "[01:02.345]x", 62345},
		{"Tenths", "[01:02.3]x", 62300},
		{"No fraction", "[01:02]x", 62000},
		{"Colon fraction", "[01:02:50]x", 62500},
		{"Long minutes", "[75:00.00]x", 4500000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, _, err := ParseLRC(tt.content, 0)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if doc.Lines[0].StartTimeMs != tt.expected {
				t.Errorf("Expected %dms, got %dms", tt.expected, doc.Lines[0].StartTimeMs)
			}
		})
	}
}

func TestParseLRC_RepeatedTags(t *testing.T) {
	content := "[00:05.00][00:30.00]Chorus\n[00:10.00]Verse"

	doc, _, err := ParseLRC(content, 40000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(doc.Lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(doc.Lines))
	}
	starts := []int64{5000, 10000, 30000}
	texts := []string{"Chorus", "Verse", "Chorus"}
	for i := range starts {
		if doc.Lines[i].StartTimeMs != starts[i] || doc.Lines[i].Text != texts[i] {
			t.Errorf("Line %d: expected %d %q, got %d %q", i, starts[i], texts[i], doc.Lines[i].StartTimeMs, doc.Lines[i].Text)
		}
	}
	if doc.Lines[0].DurationMs != 5000 {
		t.Errorf("Expected first chorus to end at the verse, got duration %d", doc.Lines[0].DurationMs)
	}
}

func TestParseLRC_DuplicateStartUsesNextLaterLine(t *testing.T) {
	content := "[00:01.00]a\n[00:01.00]b\n[00:04.00]c"

	doc, _, err := ParseLRC(content, 6000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].DurationMs != 3000 || doc.Lines[1].DurationMs != 3000 {
		t.Errorf("Expected both duplicated lines to last 3000ms, got %d and %d",
			doc.Lines[0].DurationMs, doc.Lines[1].DurationMs)
	}
}

func TestParseLRC_Offset(t *testing.T) {
	content := "[offset:500]\n[00:02.00]<00:02.00>a <00:02.50>b\n[00:04.00]c"

	doc, _, err := ParseLRC(content, 6000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if doc.Lines[0].StartTimeMs != 1500 {
		t.Errorf("Expected line shifted to 1500ms, got %d", doc.Lines[0].StartTimeMs)
	}
	if doc.Lines[0].Parts[1].StartTimeMs != 2000 {
		t.Errorf("Expected part shifted to 2000ms, got %d", doc.Lines[0].Parts[1].StartTimeMs)
	}
	if doc.Lines[1].StartTimeMs != 3500 {
		t.Errorf("Expected second line shifted to 3500ms, got %d", doc.Lines[1].StartTimeMs)
	}
}

func TestParseLRC_NegativeOffsetAndClamp(t *testing.T) {
	doc, _, err := ParseLRC("[offset:-250]\n[00:01.00]a", 3000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].StartTimeMs != 1250 {
		t.Errorf("Expected 1250ms, got %d", doc.Lines[0].StartTimeMs)
	}

	doc, _, err = ParseLRC("[offset:2000]\n[00:01.00]a", 3000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].StartTimeMs != 0 {
		t.Errorf("Expected start clamped to 0, got %d", doc.Lines[0].StartTimeMs)
	}
}

func TestParseLRC_ExplicitPartEnd(t *testing.T) {
	content := "[00:01.00]<00:01.00>one <00:01.40>two<00:01.80>\n[00:03.00]<00:03.00>three"

	doc, _, err := ParseLRC(content, 4000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	parts := doc.Lines[0].Parts
	if len(parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(parts))
	}
	if parts[1].DurationMs != 400 {
		t.Errorf("Expected trailing token to close 'two' at 400ms, got %d", parts[1].DurationMs)
	}
}

func TestParseLRC_LeadingTextBeforeFirstToken(t *testing.T) {
	doc, _, err := ParseLRC("[00:01.00]Oh <00:01.60>yeah", 3000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	parts := doc.Lines[0].Parts
	if len(parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(parts))
	}
	if parts[0].StartTimeMs != 1000 || parts[0].DurationMs != 600 || parts[0].Text != "Oh " {
		t.Errorf("Unexpected leading part %+v", parts[0])
	}
}

func TestParseLRC_PartsStayInsideLines(t *testing.T) {
	content := `[00:00.50]<00:00.50>a<00:00.60> <00:00.65>b<00:00.70> <00:00.75>c<00:00.80> <00:00.85>d
[00:02.00]<00:02.00>e<00:02.05> <00:02.10>f<00:02.15> <00:02.20>g
[00:03.00]<00:03.00>h`

	doc, _, err := ParseLRC(content, 4000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if errs := doc.Validate(); len(errs) != 0 {
		t.Errorf("Expected a valid document, got %v", errs)
	}
}

func TestParseLRC_NoTimedLines(t *testing.T) {
	_, _, err := ParseLRC("just some text\nwithout timestamps", 1000)
	if !errors.Is(err, ErrNoLines) {
		t.Errorf("Expected ErrNoLines, got %v", err)
	}
}

func TestParseLRC_LanguageTag(t *testing.T) {
	doc, _, err := ParseLRC("[la:ja]\n[00:01.00]a", 2000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Language != "ja" {
		t.Errorf("Expected language ja, got %q", doc.Language)
	}
}
