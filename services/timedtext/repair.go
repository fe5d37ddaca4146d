package timedtext

import (
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"

	log "github.com/sirupsen/logrus"
)

// RepairConfig holds the word timing repair thresholds. The values are tuned
// against real provider data.
type RepairConfig struct {
	// a whitespace part is folded into the previous word when the two
	// durations differ by at most SpaceDeltaMs, or it is at most SpaceMaxMs long
	SpaceDeltaMs int64
	SpaceMaxMs   int64

	// the fudge pass runs when more than ShortRatio of the counted words are
	// at most ShortPartMs long
	ShortPartMs int64
	ShortRatio  float64

	// trailing parts of each line left out of the count
	TailExclusion int

	// parts at most StretchMaxMs long are stretched to the following part
	StretchMaxMs int64

	// length given to a short final part of the document
	TrailingFloorMs int64
}

// DefaultRepair holds the thresholds used by ParseLRC.
var DefaultRepair = RepairConfig{
	SpaceDeltaMs:    15,
	SpaceMaxMs:      100,
	ShortPartMs:     100,
	ShortRatio:      0.5,
	TailExclusion:   2,
	StretchMaxMs:    400,
	TrailingFloorMs: 300,
}

// Apply runs the repair passes in order: space absorption over the whole
// document, then the short duration fudge, then clamping parts into their
// line window.
func (c RepairConfig) Apply(doc *lyrics.Document) {
	absorbed := 0
	for i := range doc.Lines {
		absorbed += c.absorbSpaces(doc.Lines[i].Parts)
	}

	fudged := false
	if c.needsFudge(doc) {
		c.stretchShortParts(doc)
		fudged = true
	}

	for i := range doc.Lines {
		clampParts(&doc.Lines[i])
	}

	if absorbed > 0 || fudged {
		log.Debugf("%s Repaired timings (absorbed spaces: %d, fudged: %v)", logcolors.LogLRCParser, absorbed, fudged)
	}
}

// absorbSpaces folds short whitespace parts into the word before them. The
// whitespace part moves to the end of its old span with zero duration.
func (c RepairConfig) absorbSpaces(parts []lyrics.Part) int {
	count := 0
	for i := 1; i < len(parts); i++ {
		space := &parts[i]
		prev := &parts[i-1]
		if !space.IsWhitespace() || prev.IsWhitespace() {
			continue
		}
		delta := space.DurationMs - prev.DurationMs
		if delta < 0 {
			delta = -delta
		}
		if delta <= c.SpaceDeltaMs || space.DurationMs <= c.SpaceMaxMs {
			prev.DurationMs += space.DurationMs
			space.StartTimeMs += space.DurationMs
			space.DurationMs = 0
			count++
		}
	}
	return count
}

// needsFudge counts non-whitespace parts across the document, leaving out the
// last TailExclusion parts of each line.
func (c RepairConfig) needsFudge(doc *lyrics.Document) bool {
	total, short := 0, 0
	for _, line := range doc.Lines {
		counted := len(line.Parts) - c.TailExclusion
		for j := 0; j < counted; j++ {
			part := line.Parts[j]
			if part.IsWhitespace() {
				continue
			}
			total++
			if part.DurationMs <= c.ShortPartMs {
				short++
			}
		}
	}
	return total > 0 && float64(short) > float64(total)*c.ShortRatio
}

// stretchShortParts extends short words to the start of the following part.
// The last part of a line follows on to the next line; only the final part of
// the document has nothing after it.
func (c RepairConfig) stretchShortParts(doc *lyrics.Document) {
	for i := range doc.Lines {
		parts := doc.Lines[i].Parts
		for j := range parts {
			part := &parts[j]
			if part.IsWhitespace() || part.DurationMs > c.StretchMaxMs {
				continue
			}

			if j+1 < len(parts) {
				next := &parts[j+1]
				if next.IsWhitespace() {
					end := next.EndTimeMs()
					if end > part.EndTimeMs() {
						part.DurationMs = end - part.StartTimeMs
					}
					next.StartTimeMs = end
					next.DurationMs = 0
					continue
				}
				if next.StartTimeMs > part.EndTimeMs() {
					part.DurationMs = next.StartTimeMs - part.StartTimeMs
				}
				continue
			}

			nextStart, ok := followingStart(doc.Lines, i)
			if !ok {
				part.DurationMs = c.TrailingFloorMs
				continue
			}
			if nextStart > part.EndTimeMs() {
				part.DurationMs = nextStart - part.StartTimeMs
			}
		}
	}
}

// followingStart returns where the timing continues after line i: the next
// line's first part, or the next line itself when it has no parts.
func followingStart(lines []lyrics.Line, i int) (int64, bool) {
	if i+1 >= len(lines) {
		return 0, false
	}
	next := lines[i+1]
	if len(next.Parts) > 0 {
		return next.Parts[0].StartTimeMs, true
	}
	return next.StartTimeMs, true
}

// clampParts keeps every part inside [line start, line end).
func clampParts(line *lyrics.Line) {
	start, end := line.StartTimeMs, line.EndTimeMs()
	for j := range line.Parts {
		part := &line.Parts[j]
		if part.StartTimeMs < start {
			part.DurationMs -= start - part.StartTimeMs
			part.StartTimeMs = start
		}
		if part.StartTimeMs > end {
			part.StartTimeMs = end
		}
		if part.EndTimeMs() > end {
			part.DurationMs = end - part.StartTimeMs
		}
		if part.DurationMs < 0 {
			part.DurationMs = 0
		}
	}
}
