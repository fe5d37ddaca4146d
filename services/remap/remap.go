// Package remap moves a lyrics timeline onto a correlated media timeline,
// such as the video cut of a song whose lyrics were timed against the album
// audio.
package remap

import (
	"errors"
	"fmt"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"sort"

	log "github.com/sirupsen/logrus"
)

// ErrMalformedMap is returned by NewSegmentMap for segments that cannot
// describe a timeline correspondence.
var ErrMalformedMap = errors.New("malformed segment map")

// Segment says that the counterpart timeline at CounterpartStartMs lines up
// with the primary timeline at PrimaryStartMs for DurationMs.
type Segment struct {
	PrimaryStartMs     int64 `json:"primaryStartMs"`
	CounterpartStartMs int64 `json:"counterpartStartMs"`
	DurationMs         int64 `json:"durationMs"`
}

// Shift is the offset this segment applies.
func (s Segment) Shift() int64 {
	return s.PrimaryStartMs - s.CounterpartStartMs
}

// SegmentMap maps counterpart times (the timeline lyrics were timed against)
// to primary times (the timeline being played).
type SegmentMap struct {
	segments []Segment
	inverse  []Segment
}

// NewSegmentMap validates and sorts segments by counterpart start, and
// precomputes the reverse direction.
func NewSegmentMap(segments []Segment) (*SegmentMap, error) {
	sorted := make([]Segment, len(segments))
	for i, s := range segments {
		if s.DurationMs < 0 || s.PrimaryStartMs < 0 || s.CounterpartStartMs < 0 {
			return nil, fmt.Errorf("%w: segment %d has a negative field", ErrMalformedMap, i)
		}
		sorted[i] = s
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CounterpartStartMs < sorted[j].CounterpartStartMs
	})

	inverse := make([]Segment, len(sorted))
	for i, s := range sorted {
		inverse[i] = Segment{
			PrimaryStartMs:     s.CounterpartStartMs,
			CounterpartStartMs: s.PrimaryStartMs,
			DurationMs:         s.DurationMs,
		}
	}
	sort.SliceStable(inverse, func(i, j int) bool {
		return inverse[i].CounterpartStartMs < inverse[j].CounterpartStartMs
	})

	return &SegmentMap{segments: sorted, inverse: inverse}, nil
}

// Segments returns a copy of the sorted segments.
func (m *SegmentMap) Segments() []Segment {
	if m == nil {
		return nil
	}
	return append([]Segment(nil), m.segments...)
}

// Len returns the number of segments.
func (m *SegmentMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.segments)
}

// Inverse returns the map for the reverse direction.
func (m *SegmentMap) Inverse() *SegmentMap {
	if m == nil {
		return nil
	}
	return &SegmentMap{segments: m.inverse, inverse: m.segments}
}

// ShiftAt returns the offset applied to a counterpart time: that of the last
// segment starting at or before t. Times before the first segment use the
// first segment's offset.
func (m *SegmentMap) ShiftAt(t int64) int64 {
	if m.Len() == 0 {
		return 0
	}
	shift := m.segments[0].Shift()
	for _, s := range m.segments {
		if s.CounterpartStartMs > t {
			break
		}
		shift = s.Shift()
	}
	return shift
}

// RemapTime maps a counterpart time to the primary timeline.
func (m *SegmentMap) RemapTime(t int64) int64 {
	return t + m.ShiftAt(t)
}

// Apply shifts doc onto the primary timeline when its timeline kind differs
// from the media's. Each line is shifted by the offset at its start, and its
// parts move with it. An empty map or matching kinds leave doc untouched.
// It reports whether doc was changed.
func Apply(doc *lyrics.Document, m *SegmentMap, mediaIsVideo bool) bool {
	if doc == nil || m.Len() == 0 || doc.VideoTimeline == mediaIsVideo {
		return false
	}

	for i := range doc.Lines {
		line := &doc.Lines[i]
		shift := m.ShiftAt(line.StartTimeMs)
		line.StartTimeMs = clamp(line.StartTimeMs + shift)
		for j := range line.Parts {
			line.Parts[j].StartTimeMs = clamp(line.Parts[j].StartTimeMs + shift)
		}
		for j := range line.TimedRomanization {
			line.TimedRomanization[j].StartTimeMs = clamp(line.TimedRomanization[j].StartTimeMs + shift)
		}
	}
	doc.SortLines()
	doc.VideoTimeline = mediaIsVideo

	log.Debugf("%s Remapped %d lines over %d segments (video=%t)", logcolors.LogRemap, len(doc.Lines), m.Len(), mediaIsVideo)
	return true
}

// ApplySegments builds a map from raw segments and applies it. A malformed
// map is logged and ignored.
func ApplySegments(doc *lyrics.Document, segments []Segment, mediaIsVideo bool) bool {
	m, err := NewSegmentMap(segments)
	if err != nil {
		log.Warnf("%s Ignoring segment map: %v", logcolors.LogRemap, err)
		return false
	}
	return Apply(doc, m, mediaIsVideo)
}

func clamp(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}
