// Package syncer decides, for every playback sample, which lyric line is
// playing, how far each word has progressed and where the view should
// scroll.
package syncer

import (
	"fmt"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/stats"
	"math"
	"sync"

	log "github.com/sirupsen/logrus"
)

// State is the scheduler's mode.
type State int

const (
	// StateIdle means there is no document or ticking is off.
	StateIdle State = iota
	// StateTracking follows playback and scrolls.
	StateTracking
	// StateSuspended follows playback but leaves scrolling to the user.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sample is one playback position report from the host player.
type Sample struct {
	PositionSeconds    float64 `json:"positionSeconds"`
	CaptureWallClockMs int64   `json:"captureWallClockMs"`
	IsPlaying          bool    `json:"isPlaying"`
}

// PartFrame is the animation state of one part.
type PartFrame struct {
	Index int `json:"index"`
	// AnimationStartMs is the wall-clock time the part's animation is
	// anchored at.
	AnimationStartMs int64 `json:"animationStartMs"`
	// Phase is the fraction of the part already sung, in [0, 1].
	Phase float64 `json:"phase"`
}

// LineFrame is one selected line.
type LineFrame struct {
	Index               int         `json:"index"`
	Parts               []PartFrame `json:"parts"`
	Anchored            bool        `json:"anchored"` // anchors were (re)set this tick
	AccumulatedOffsetMs float64     `json:"accumulatedOffsetMs"`
}

// Frame is the scheduler output for one tick.
type Frame struct {
	State         State       `json:"state"`
	EffectiveTime float64     `json:"effectiveTime"`
	ActiveLine    int         `json:"activeLine"`
	FirstActive   int         `json:"firstActive"`
	ScrollTo      *float64    `json:"scrollTo,omitempty"`
	Selected      []LineFrame `json:"selected,omitempty"`
	// DriftReset is set when a line's drift exceeded the reset threshold;
	// that line is re-anchored on the next tick.
	DriftReset bool `json:"driftReset"`
}

// Line returns the frame of a selected line.
func (f Frame) Line(i int) (LineFrame, bool) {
	for _, lf := range f.Selected {
		if lf.Index == i {
			return lf, true
		}
	}
	return LineFrame{}, false
}

type lineAnim struct {
	animating           bool
	anchorMs            int64 // wall clock at which the line start was sung
	accumulatedOffsetMs float64
}

type scrollWrite struct {
	from, to float64
	atMs     int64
}

// Scheduler is the per-document sync state machine. All methods are safe to
// call from different goroutines; none of them block on I/O.
type Scheduler struct {
	mu       sync.Mutex
	settings Settings
	layout   Layout
	stats    *stats.Stats

	doc         *lyrics.Document
	windows     [][2]float64
	granularity lyrics.SyncGranularity
	ticking     bool
	state       State

	lines           map[int]*lineAnim
	prevFirstActive int

	scrollPos        float64
	lastScrollAtMs   int64
	scrollCooldownMs int64
	writes           []scrollWrite
	suspendedAtMs    int64
}

// New creates an idle scheduler.
func New(settings Settings, layout Layout) *Scheduler {
	return &Scheduler{
		settings:        settings,
		layout:          layout,
		stats:           stats.Get(),
		lines:           make(map[int]*lineAnim),
		prevFirstActive: -1,
		lastScrollAtMs:  math.MinInt64 / 2,
	}
}

// SetDocument installs a new document, resetting all per-line state. A nil
// document makes the scheduler idle.
func (s *Scheduler) SetDocument(doc *lyrics.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = doc
	s.windows = lineWindows(doc)
	s.granularity = lyrics.SyncNone
	if doc != nil {
		s.granularity = doc.SyncGranularity()
	}
	s.lines = make(map[int]*lineAnim)
	s.prevFirstActive = -1
	s.writes = nil
	s.lastScrollAtMs = math.MinInt64 / 2
	s.scrollCooldownMs = 0
	if doc == nil {
		s.state = StateIdle
	} else if s.state == StateIdle && s.ticking {
		s.state = StateTracking
	}
}

// SetLayout replaces the layout, e.g. after a resize.
func (s *Scheduler) SetLayout(layout Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
}

// SetTicking turns sample processing on or off. Turning it off makes the
// scheduler idle.
func (s *Scheduler) SetTicking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticking = on
	if !on {
		s.state = StateIdle
		s.lines = make(map[int]*lineAnim)
	} else if s.state == StateIdle && s.doc != nil {
		s.state = StateTracking
	}
}

// State returns the current mode.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ScrollPosition returns the last known scroll offset.
func (s *Scheduler) ScrollPosition() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollPos
}

// Resume re-enables autoscroll after a manual scroll.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSuspended {
		s.state = StateTracking
		log.Debugf("%s Autoscroll resumed", logcolors.LogSync)
	}
}

// ObserveScroll reports the view's scroll offset. Offsets the scheduler
// itself produced are recognised; anything else suspends autoscroll. It
// reports whether the scroll was attributed to the user.
func (s *Scheduler) ObserveScroll(px float64, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := 2 * s.settings.ScrollTransitionMs
	kept := s.writes[:0]
	for _, w := range s.writes {
		if nowMs-w.atMs <= window {
			kept = append(kept, w)
		}
	}
	s.writes = kept

	threshold := s.settings.ScrollThresholdPx
	if math.Abs(px-s.scrollPos) <= threshold {
		s.scrollPos = px
		return false
	}
	for _, w := range s.writes {
		lo, hi := math.Min(w.from, w.to)-threshold, math.Max(w.from, w.to)+threshold
		if px >= lo && px <= hi {
			s.scrollPos = px
			return false
		}
	}

	s.scrollPos = px
	if s.state == StateIdle {
		return true
	}
	if s.state != StateSuspended {
		log.Debugf("%s Manual scroll detected, autoscroll suspended", logcolors.LogSync)
	}
	s.state = StateSuspended
	s.suspendedAtMs = nowMs
	return true
}

func (s *Scheduler) syncOffset() float64 {
	if s.granularity == lyrics.SyncWord {
		return s.settings.SyncOffsetWordSecs
	}
	return s.settings.SyncOffsetLineSecs
}

// window returns the [start, end) seconds a line is considered current for.
func (s *Scheduler) window(i int) (float64, float64) {
	w := s.windows[i]
	return w[0], w[1]
}

// lineWindows computes every line's window in one backward pass. A line runs
// until the next line that starts later, or its own end if that is later.
func lineWindows(doc *lyrics.Document) [][2]float64 {
	if doc == nil {
		return nil
	}
	lines := doc.Lines
	windows := make([][2]float64, len(lines))
	next := int64(-1)
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if i+1 < len(lines) && lines[i+1].StartTimeMs > line.StartTimeMs {
			next = lines[i+1].StartTimeMs
		}

		start := float64(line.StartTimeMs) / 1000
		end := float64(line.EndTimeMs()) / 1000
		if next > line.StartTimeMs {
			end = math.Max(end, float64(next)/1000)
		} else if line.DurationMs == 0 {
			end = math.Inf(1)
		}
		windows[i] = [2]float64{start, end}
	}
	return windows
}

// Tick processes one sample. It never blocks.
func (s *Scheduler) Tick(sample Sample, nowMs int64) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := Frame{State: s.state, ActiveLine: -1, FirstActive: -1}
	if s.doc == nil || !s.ticking {
		s.state = StateIdle
		frame.State = StateIdle
		return frame
	}
	if s.state == StateIdle {
		s.state = StateTracking
	}
	if s.state == StateSuspended && nowMs-s.suspendedAtMs >= s.settings.ManualScrollCooldown.Milliseconds() {
		s.state = StateTracking
		log.Debugf("%s Autoscroll resumed after cooldown", logcolors.LogSync)
	}
	frame.State = s.state

	effective := sample.PositionSeconds
	if sample.IsPlaying {
		effective += float64(nowMs-sample.CaptureWallClockMs) / 1000
	}
	frame.EffectiveTime = effective

	if s.granularity == lyrics.SyncNone {
		return frame
	}

	t := effective + s.syncOffset()
	s.selectScrollTarget(&frame, t+s.settings.ScrollLeadSecs)
	s.animate(&frame, t, sample.IsPlaying, nowMs)
	if s.state == StateTracking {
		s.scroll(&frame, t+s.settings.ScrollLeadSecs, nowMs)
	}
	return frame
}

// selectScrollTarget finds the last line whose window holds scrollTime, and
// the first one that is not about to end.
func (s *Scheduler) selectScrollTarget(frame *Frame, scrollTime float64) {
	var candidates []int
	for i := range s.doc.Lines {
		start, end := s.window(i)
		if scrollTime >= start && scrollTime < end {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		s.prevFirstActive = -1
		return
	}

	frame.ActiveLine = candidates[len(candidates)-1]
	frame.FirstActive = frame.ActiveLine
	for _, i := range candidates {
		_, end := s.window(i)
		if end-scrollTime >= s.settings.FirstActiveMinRemaining || i == s.prevFirstActive {
			frame.FirstActive = i
			break
		}
	}
	s.prevFirstActive = frame.FirstActive
}

// animate anchors the parts of every selected line and applies drift
// correction. A line is selected from SelectionLookaheadSecs before its start
// (while playing) until its window ends.
func (s *Scheduler) animate(frame *Frame, t float64, playing bool, nowMs int64) {
	lookahead := 0.0
	if playing {
		lookahead = s.settings.SelectionLookaheadSecs
	}

	selected := make(map[int]bool)
	for i := range s.doc.Lines {
		start, end := s.window(i)
		if t+lookahead < start || t >= end {
			continue
		}
		selected[i] = true

		anim := s.lines[i]
		if anim == nil {
			anim = &lineAnim{}
			s.lines[i] = anim
		}

		line := s.doc.Lines[i]
		lf := LineFrame{Index: i}

		if !anim.animating || !playing {
			anim.anchorMs = nowMs - int64(math.Round((t-start)*1000))
			anim.animating = playing
			anim.accumulatedOffsetMs = 0
			lf.Anchored = true
		} else {
			instantaneous := float64(nowMs-anim.anchorMs)/1000 - (t - start)
			anim.accumulatedOffsetMs = anim.accumulatedOffsetMs/s.settings.DriftDecay +
				instantaneous*1000*s.settings.DriftGain
			if math.Abs(anim.accumulatedOffsetMs) > s.settings.DriftResetMs {
				log.Debugf("%s Line %d drifted %.1fms, re-anchoring", logcolors.LogDrift, i, anim.accumulatedOffsetMs)
				anim.animating = false
				frame.DriftReset = true
				if s.stats != nil {
					s.stats.DriftReanchors.Add(1)
				}
			}
		}
		lf.AccumulatedOffsetMs = anim.accumulatedOffsetMs

		parts := line.Parts
		if len(parts) == 0 {
			parts = []lyrics.Part{{StartTimeMs: line.StartTimeMs, DurationMs: line.DurationMs}}
		}
		lf.Parts = make([]PartFrame, len(parts))
		for j, part := range parts {
			partAnchor := anim.anchorMs + (part.StartTimeMs - line.StartTimeMs)
			lf.Parts[j] = PartFrame{
				Index:            j,
				AnimationStartMs: partAnchor,
				Phase:            phase(nowMs-partAnchor, part.DurationMs),
			}
		}
		frame.Selected = append(frame.Selected, lf)
	}

	for i := range s.lines {
		if !selected[i] {
			delete(s.lines, i)
		}
	}
}

func phase(elapsedMs, durationMs int64) float64 {
	if elapsedMs <= 0 {
		return 0
	}
	if durationMs <= 0 || elapsedMs >= durationMs {
		return 1
	}
	return float64(elapsedMs) / float64(durationMs)
}

// scroll centres the active line, keeping the first-active line's top and
// the active line's bottom on screen.
func (s *Scheduler) scroll(frame *Frame, scrollTime float64, nowMs int64) {
	if frame.ActiveLine < 0 || s.layout == nil {
		return
	}
	target, first := frame.ActiveLine, frame.FirstActive

	viewport := s.layout.ViewportHeight()
	targetTop := s.layout.LineTop(target)
	targetBottom := targetTop + s.layout.LineHeight(target)

	offset := targetTop + s.layout.LineHeight(target)/2 - viewport*s.settings.ScrollCenterFraction
	offset = math.Max(offset, targetBottom-viewport)
	offset = math.Min(offset, s.layout.LineTop(first))
	maxScroll := math.Max(0, s.layout.ContentHeight()-viewport)
	offset = math.Max(0, math.Min(offset, maxScroll))

	if math.Abs(offset-s.scrollPos) <= s.settings.ScrollThresholdPx {
		return
	}
	if nowMs-s.lastScrollAtMs < s.scrollCooldownMs {
		return
	}

	_, end := s.window(target)
	remainingMs := int64(math.MaxInt32)
	if !math.IsInf(end, 1) {
		remainingMs = int64((end - scrollTime) * 1000)
	}
	cooldown := s.settings.ScrollTransitionMs
	if remainingMs-ScrollCooldownMarginMs < cooldown {
		cooldown = remainingMs - ScrollCooldownMarginMs
	}
	if cooldown < MinScrollCooldownMs {
		cooldown = MinScrollCooldownMs
	}

	s.writes = append(s.writes, scrollWrite{from: s.scrollPos, to: offset, atMs: nowMs})
	s.scrollPos = offset
	s.lastScrollAtMs = nowMs
	s.scrollCooldownMs = cooldown
	frame.ScrollTo = &offset
}
