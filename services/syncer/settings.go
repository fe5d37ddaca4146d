package syncer

import (
	"lyrics-sync-go/config"
	"time"
)

// Tuning defaults. These were chosen against real playback and are not
// derived from first principles.
const (
	DefaultSyncOffsetWordSecs      = 0.015
	DefaultSyncOffsetLineSecs      = 0.115
	DefaultScrollLeadSecs          = 0.25
	DefaultSelectionLookaheadSecs  = 2.0
	DefaultFirstActiveMinRemaining = 0.3
	DefaultDriftDecay              = 1.08
	DefaultDriftGain               = 0.4
	DefaultDriftResetMs            = 100.0
	DefaultScrollThresholdPx       = 5.0
	DefaultScrollTransitionMs      = 400
	DefaultScrollCenterFraction    = 0.37
	DefaultManualScrollCooldown    = 25 * time.Second

	// MinScrollCooldownMs floors the pause between two scheduler scrolls.
	MinScrollCooldownMs = 200
	// ScrollCooldownMarginMs is kept free before the target line ends.
	ScrollCooldownMarginMs = 50
)

// Settings holds the scheduler tuning.
type Settings struct {
	SyncOffsetWordSecs      float64
	SyncOffsetLineSecs      float64
	ScrollLeadSecs          float64
	SelectionLookaheadSecs  float64
	FirstActiveMinRemaining float64
	DriftDecay              float64
	DriftGain               float64
	DriftResetMs            float64
	ScrollThresholdPx       float64
	ScrollTransitionMs      int64
	ScrollCenterFraction    float64
	ManualScrollCooldown    time.Duration
}

// DefaultSettings returns the built-in tuning.
func DefaultSettings() Settings {
	return Settings{
		SyncOffsetWordSecs:      DefaultSyncOffsetWordSecs,
		SyncOffsetLineSecs:      DefaultSyncOffsetLineSecs,
		ScrollLeadSecs:          DefaultScrollLeadSecs,
		SelectionLookaheadSecs:  DefaultSelectionLookaheadSecs,
		FirstActiveMinRemaining: DefaultFirstActiveMinRemaining,
		DriftDecay:              DefaultDriftDecay,
		DriftGain:               DefaultDriftGain,
		DriftResetMs:            DefaultDriftResetMs,
		ScrollThresholdPx:       DefaultScrollThresholdPx,
		ScrollTransitionMs:      DefaultScrollTransitionMs,
		ScrollCenterFraction:    DefaultScrollCenterFraction,
		ManualScrollCooldown:    DefaultManualScrollCooldown,
	}
}

// SettingsFromConfig reads the tuning from the global configuration.
func SettingsFromConfig() Settings {
	c := config.Get().Configuration
	s := Settings{
		SyncOffsetWordSecs:      c.SyncOffsetWordSecs,
		SyncOffsetLineSecs:      c.SyncOffsetLineSecs,
		ScrollLeadSecs:          c.ScrollLeadSecs,
		SelectionLookaheadSecs:  c.SelectionLookaheadSecs,
		FirstActiveMinRemaining: c.FirstActiveMinRemaining,
		DriftDecay:              c.DriftDecay,
		DriftGain:               c.DriftGain,
		DriftResetMs:            c.DriftResetMs,
		ScrollThresholdPx:       c.ScrollThresholdPx,
		ScrollTransitionMs:      c.ScrollTransitionMs,
		ScrollCenterFraction:    c.ScrollCenterFraction,
		ManualScrollCooldown:    time.Duration(c.ManualScrollCooldownSecs) * time.Second,
	}
	// DriftDecay is a divisor.
	if s.DriftDecay <= 0 {
		s.DriftDecay = DefaultDriftDecay
	}
	if s.ManualScrollCooldown <= 0 {
		s.ManualScrollCooldown = DefaultManualScrollCooldown
	}
	return s
}
