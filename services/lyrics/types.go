package lyrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NotFoundText is the text of the single line returned when no source had lyrics.
const NotFoundText = "No lyrics found"

// SyncGranularity describes how much timing information a document carries.
type SyncGranularity string

const (
	SyncNone SyncGranularity = "none"
	SyncLine SyncGranularity = "line"
	SyncWord SyncGranularity = "word"
)

// Part is a timed fragment of a line, usually a word or syllable.
type Part struct {
	StartTimeMs  int64  `json:"startTimeMs"`
	DurationMs   int64  `json:"durationMs"`
	Text         string `json:"words"`
	IsBackground bool   `json:"isBackground,omitempty"`
}

// EndTimeMs returns the exclusive end of the part.
func (p Part) EndTimeMs() int64 {
	return p.StartTimeMs + p.DurationMs
}

// IsWhitespace reports whether the part only carries spacing between words.
func (p Part) IsWhitespace() bool {
	return p.Text != "" && strings.TrimSpace(p.Text) == ""
}

// Translation is a translated rendition of a line.
type Translation struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

// Line is a single lyric line.
type Line struct {
	StartTimeMs       int64        `json:"startTimeMs"`
	DurationMs        int64        `json:"durationMs"`
	Text              string       `json:"words"`
	Parts             []Part       `json:"parts,omitempty"`
	Agent             string       `json:"agent,omitempty"`
	Translation       *Translation `json:"translation,omitempty"`
	Romanization      string       `json:"romanization,omitempty"`
	TimedRomanization []Part       `json:"timedRomanization,omitempty"`
}

// EndTimeMs returns the exclusive end of the line.
func (l Line) EndTimeMs() int64 {
	return l.StartTimeMs + l.DurationMs
}

// Document is the normalized lyrics timeline consumed by the scheduler.
type Document struct {
	Lines         []Line `json:"lines"`
	Language      string `json:"language,omitempty"`
	VideoTimeline bool   `json:"videoTimeline,omitempty"`
}

// SyncGranularity is derived from the lines on every call, never stored.
func (d *Document) SyncGranularity() SyncGranularity {
	if d == nil || len(d.Lines) == 0 {
		return SyncNone
	}

	allZero := true
	for _, line := range d.Lines {
		if line.StartTimeMs != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return SyncNone
	}

	for _, line := range d.Lines {
		for _, part := range line.Parts {
			if part.DurationMs != 0 {
				return SyncWord
			}
		}
	}
	return SyncLine
}

type documentJSON struct {
	Lines         []Line          `json:"lines"`
	Language      string          `json:"language,omitempty"`
	VideoTimeline bool            `json:"videoTimeline,omitempty"`
	SyncType      SyncGranularity `json:"syncType"`
}

// MarshalJSON adds the computed syncType to the encoded document.
func (d Document) MarshalJSON() ([]byte, error) {
	lines := d.Lines
	if lines == nil {
		lines = []Line{}
	}
	return json.Marshal(documentJSON{
		Lines:         lines,
		Language:      d.Language,
		VideoTimeline: d.VideoTimeline,
		SyncType:      d.SyncGranularity(),
	})
}

// UnmarshalJSON ignores any encoded syncType; it is recomputed from the lines.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Lines = raw.Lines
	d.Language = raw.Language
	d.VideoTimeline = raw.VideoTimeline
	return nil
}

// NotFound builds the sentinel document shown when no source produced lyrics.
func NotFound() *Document {
	return &Document{
		Lines: []Line{{Text: NotFoundText}},
	}
}

// IsNotFound reports whether d is the sentinel document.
func (d *Document) IsNotFound() bool {
	return d != nil && len(d.Lines) == 1 && d.Lines[0].Text == NotFoundText &&
		d.Lines[0].StartTimeMs == 0 && len(d.Lines[0].Parts) == 0
}

// SortLines orders lines by start time, keeping the source order of ties.
func (d *Document) SortLines() {
	sort.SliceStable(d.Lines, func(i, j int) bool {
		return d.Lines[i].StartTimeMs < d.Lines[j].StartTimeMs
	})
}

// BackfillDurations infers missing (zero) line durations from the next line
// with a later start, or from the song duration for the final line.
func (d *Document) BackfillDurations(songDurationMs int64) {
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.DurationMs > 0 {
			continue
		}
		next := NextStart(d.Lines, i)
		switch {
		case next >= 0:
			line.DurationMs = next - line.StartTimeMs
		case songDurationMs > line.StartTimeMs:
			line.DurationMs = songDurationMs - line.StartTimeMs
		default:
			line.DurationMs = 0
		}
	}
}

// NextStart returns the start of the first line after i that begins strictly
// later than line i, or -1 if there is none.
func NextStart(lines []Line, i int) int64 {
	for j := i + 1; j < len(lines); j++ {
		if lines[j].StartTimeMs > lines[i].StartTimeMs {
			return lines[j].StartTimeMs
		}
	}
	return -1
}

// Text joins the line texts with newlines.
func (d *Document) Text() string {
	if d == nil {
		return ""
	}
	texts := make([]string, 0, len(d.Lines))
	for _, line := range d.Lines {
		texts = append(texts, line.Text)
	}
	return strings.Join(texts, "\n")
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Language:      d.Language,
		VideoTimeline: d.VideoTimeline,
		Lines:         make([]Line, len(d.Lines)),
	}
	for i, line := range d.Lines {
		c := line
		if line.Parts != nil {
			c.Parts = append([]Part(nil), line.Parts...)
		}
		if line.TimedRomanization != nil {
			c.TimedRomanization = append([]Part(nil), line.TimedRomanization...)
		}
		if line.Translation != nil {
			t := *line.Translation
			c.Translation = &t
		}
		out.Lines[i] = c
	}
	return out
}

// StripParts returns a line-granularity copy of the document.
func (d *Document) StripParts() *Document {
	out := d.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Lines {
		out.Lines[i].Parts = nil
		out.Lines[i].TimedRomanization = nil
	}
	return out
}

// Validate reports ordering and containment violations.
func (d *Document) Validate() []error {
	var errs []error
	for i, line := range d.Lines {
		if i > 0 && line.StartTimeMs < d.Lines[i-1].StartTimeMs {
			errs = append(errs, fmt.Errorf("line %d starts at %dms before line %d at %dms",
				i, line.StartTimeMs, i-1, d.Lines[i-1].StartTimeMs))
		}
		if line.DurationMs < 0 {
			errs = append(errs, fmt.Errorf("line %d has negative duration %dms", i, line.DurationMs))
		}
		for j, part := range line.Parts {
			if j > 0 && part.StartTimeMs < line.Parts[j-1].StartTimeMs {
				errs = append(errs, fmt.Errorf("line %d part %d starts before part %d", i, j, j-1))
			}
			if part.DurationMs < 0 {
				errs = append(errs, fmt.Errorf("line %d part %d has negative duration", i, j))
			}
			if part.StartTimeMs < line.StartTimeMs || part.EndTimeMs() > line.EndTimeMs() {
				errs = append(errs, fmt.Errorf("line %d part %d [%d,%d) outside line window [%d,%d)",
					i, j, part.StartTimeMs, part.EndTimeMs(), line.StartTimeMs, line.EndTimeMs()))
			}
		}
	}
	return errs
}

// FromPlainText builds an unsynced document with one line per non-blank
// line of text, or returns nil when there is none.
func FromPlainText(text string) *Document {
	var lines []Line
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, Line{Text: line})
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return &Document{Lines: lines}
}
