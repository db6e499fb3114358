package pipeline

import (
	"errors"
	"time"

	"github.com/scanforge/serialscan/internal/classifier"
	"github.com/scanforge/serialscan/internal/detector"
	"github.com/scanforge/serialscan/internal/disambig"
	"github.com/scanforge/serialscan/internal/quality"
	"github.com/scanforge/serialscan/internal/recognizer"
	"github.com/scanforge/serialscan/internal/stabilizer"
	"github.com/scanforge/serialscan/internal/validator"
)

// Config is the immutable per-session configuration. It aggregates the
// stage configurations plus the session-level budgets and admission
// settings. A session never mutates its config.
type Config struct {
	Detector   detector.Config
	Recognizer recognizer.Config
	Classifier classifier.Config
	Disambig   disambig.Config
	Filter     stabilizer.FilterConfig
	Validator  validator.Config
	Quality    quality.Config

	// Window is the rolling candidate-history size.
	Window int
	// EarlyExitConfidence ends the session as soon as one frame reaches it.
	EarlyExitConfidence float64
	// StabilizedFrames is the consistent-frame count required before the
	// classifier's relaxed threshold applies.
	StabilizedFrames int

	// MaxFrames and TimeBudget bound a session; exceeding either forces
	// evaluation of the buffered candidates.
	MaxFrames  int
	TimeBudget time.Duration

	// MinFrameInterval is the admission-control inter-frame gap.
	MinFrameInterval time.Duration
	// DeviceClass selects the adaptive frame-skip stride.
	DeviceClass DeviceClass
	// FrameQueue is the ingress channel capacity; a full queue drops frames.
	FrameQueue int
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		Detector:   detector.DefaultConfig(),
		Recognizer: recognizer.DefaultConfig(),
		Classifier: classifier.DefaultConfig(),
		Disambig:   disambig.DefaultConfig(),
		Filter:     stabilizer.DefaultFilterConfig(),
		Validator:  validator.DefaultConfig(),
		Quality:    quality.DefaultConfig(),

		Window:              stabilizer.DefaultWindow,
		EarlyExitConfidence: stabilizer.DefaultEarlyExit,
		StabilizedFrames:    3,

		MaxFrames:  30,
		TimeBudget: 4 * time.Second,

		MinFrameInterval: 50 * time.Millisecond,
		DeviceClass:      DeviceClassHigh,
		FrameQueue:       4,
	}
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.Validator.Validate(); err != nil {
		return err
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if c.MaxFrames <= 0 {
		return errors.New("max frames must be positive")
	}
	if c.TimeBudget <= 0 {
		return errors.New("time budget must be positive")
	}
	if c.EarlyExitConfidence <= 0 || c.EarlyExitConfidence > 1 {
		return errors.New("early-exit confidence must be in (0,1]")
	}
	if c.StabilizedFrames <= 0 {
		return errors.New("stabilized frame count must be positive")
	}
	return nil
}
