package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/scanforge/serialscan/internal/common"
	"github.com/scanforge/serialscan/internal/quality"
	"github.com/scanforge/serialscan/internal/scanerr"
	"github.com/scanforge/serialscan/internal/serial"
	"github.com/scanforge/serialscan/internal/stabilizer"
	"github.com/scanforge/serialscan/internal/utils"
	"github.com/scanforge/serialscan/internal/validator"
)

// SessionState is the session lifecycle phase.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateScanning  SessionState = "scanning"
	StateSuspended SessionState = "suspended"
	StateDone      SessionState = "done"
)

// ErrSessionActive is returned when Start is called on a running session.
var ErrSessionActive = errors.New("session already started")

// Session runs one scanning attempt. All mutable state (history, position
// filter, counters) is owned exclusively by the session; models are
// borrowed from the pipeline. A session is one-shot: Start, feed frames
// via OnFrame, wait for the decision.
type Session struct {
	p      *Pipeline
	config Config

	frames    chan Frame
	events    chan Event
	admission *admission
	lanes     *lanes
	stats     *Stats
	analyzer  *quality.Analyzer
	filter    *stabilizer.PositionFilter
	history   *stabilizer.History

	mu           sync.Mutex
	state        SessionState
	result       validator.Result
	roi          *utils.Box
	frameCount   int
	cancel       context.CancelFunc
	eventsClosed bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates a session with fresh per-session state.
func (p *Pipeline) NewSession() *Session {
	cfg := p.config
	return &Session{
		p:         p,
		config:    cfg,
		frames:    make(chan Frame, cfg.FrameQueue),
		events:    make(chan Event, 16),
		admission: newAdmission(cfg.MinFrameInterval, cfg.DeviceClass),
		lanes:     newLanes(cfg.FrameQueue * 2),
		stats:     NewStats(),
		analyzer:  quality.NewAnalyzer(cfg.Quality),
		filter:    stabilizer.NewPositionFilter(cfg.Filter),
		history:   stabilizer.NewHistory(cfg.Window, cfg.EarlyExitConfidence),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
}

// Start launches the session worker. The session ends when a frame
// reaches the early-exit confidence, the frame or time budget is spent,
// or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateScanning
	ctx, s.cancel = context.WithTimeout(ctx, s.config.TimeBudget)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// OnFrame is the pipeline's only ingress. The frame is queued for the
// worker; a full queue or an inactive session drops it.
func (s *Session) OnFrame(f Frame) {
	s.stats.framesSeen.Add(1)
	s.mu.Lock()
	active := s.state == StateScanning
	s.mu.Unlock()
	if !active {
		s.stats.framesDropped.Add(1)
		s.stats.framesProcessed.Add(1)
		return
	}
	select {
	case s.frames <- f:
	default:
		s.stats.framesDropped.Add(1)
		s.stats.framesProcessed.Add(1)
	}
}

// Events returns the progress stream. Non-terminal events are dropped for
// slow consumers; the decision event is always delivered and the channel
// is closed after it.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session reaches a terminal or suspended result.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the decision; ok is false while scanning.
func (s *Session) Result() (validator.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDone && s.state != StateSuspended {
		return validator.Result{}, false
	}
	return s.result, true
}

// Wait blocks until the session has a result or ctx expires.
func (s *Session) Wait(ctx context.Context) (validator.Result, error) {
	select {
	case <-ctx.Done():
		return validator.Result{}, ctx.Err()
	case <-s.done:
	}
	r, _ := s.Result()
	return r, nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() StatsSnapshot { return s.stats.Snapshot() }

// Quality returns the most recent capture-condition report.
func (s *Session) Quality() (quality.Report, bool) { return s.analyzer.Last() }

// Stop interrupts the session. Buffered candidates are still evaluated so
// the caller gets a decision.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases a session whose consumer is gone, guaranteeing the
// event stream ends so readers unblock. A never-started session is
// closed outright, a scanning one is stopped and settles normally, and
// a suspended one is denied; without this a suspended session would wait
// for a Resolve that will never arrive.
func (s *Session) Close() {
	s.mu.Lock()
	state := s.state
	if state == StateIdle {
		s.state = StateDone
	}
	s.mu.Unlock()

	switch state {
	case StateIdle:
		s.signalDone()
		s.closeEvents()
	case StateScanning:
		// The worker may suspend on a borderline decision between the
		// state read and the cancellation; deny in that case too.
		s.Stop()
		<-s.done
		s.mu.Lock()
		suspended := s.state == StateSuspended
		s.mu.Unlock()
		if suspended {
			s.Resolve(false)
		}
	case StateSuspended:
		s.Resolve(false)
	}
}

// run is the dedicated session worker: the high-priority lane. It
// receives frames, applies admission control and walks each admitted
// frame through the stages.
func (s *Session) run(ctx context.Context) {
	defer s.lanes.close()
	defer func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			s.finish(ctx)
			return
		case f := <-s.frames:
			if !s.admission.admit(time.Now()) {
				s.stats.framesSkipped.Add(1)
				s.stats.framesProcessed.Add(1)
				continue
			}
			earlyExit := s.processFrame(ctx, f)
			s.admission.done()
			s.stats.framesProcessed.Add(1)

			s.mu.Lock()
			s.frameCount++
			frameCount := s.frameCount
			s.mu.Unlock()
			s.emit(Event{Kind: EventFrame, Frame: frameCount})

			if earlyExit || frameCount >= s.config.MaxFrames {
				s.finish(ctx)
				return
			}
		}
	}
}

// processFrame runs one frame through detection, recognition,
// classification and disambiguation, appending an accepted candidate to
// the history. Every failure degrades to "frame absent". Reports whether
// the candidate triggered an early exit.
func (s *Session) processFrame(ctx context.Context, f Frame) bool {
	if f.Image == nil {
		s.stats.framesDropped.Add(1)
		return false
	}
	s.stats.framesScanned.Add(1)

	// Auxiliary analyses run off the worker; a full lane skips them.
	s.lanes.tryMedium(func() {
		if report, ok := s.analyzer.Analyze(f.Image); ok {
			s.emit(Event{Kind: EventQuality, Quality: &report})
		}
	})

	s.mu.Lock()
	roi := s.roi
	s.mu.Unlock()

	detTimer := common.NewNamedTimer("detect")
	res, err := s.p.detector.Detect(ctx, f.Image, roi)
	s.recordStage(detTimer)
	if err != nil {
		s.skipFrame("detection", err)
		return false
	}
	best, ok := res.Best()
	if !ok {
		return false
	}

	bounds := f.Image.Bounds()
	nextROI := s.filter.Observe(best.Box, float64(bounds.Dx()), float64(bounds.Dy()))
	s.mu.Lock()
	s.roi = &nextROI
	s.mu.Unlock()

	crop := utils.CropBox(f.Image, best.Box)
	recTimer := common.NewNamedTimer("recognize")
	rec, err := s.p.engine.Recognize(ctx, crop)
	s.recordStage(recTimer)
	if err != nil {
		s.skipFrame("recognition", err)
		return false
	}
	if rec.Text == "" {
		return false
	}

	// Word-level OCR boxes confirm detections; fusion can reorder NMS.
	if s.config.Detector.Fusion.Enabled && len(rec.CharBoxes) > 0 {
		frameBoxes := make([]utils.Box, len(rec.CharBoxes))
		for i, b := range rec.CharBoxes {
			frameBoxes[i] = b.Offset(best.Box.MinX, best.Box.MinY)
		}
		res = s.p.detector.Fuse(res, frameBoxes)
		if fused, ok := res.Best(); ok {
			best = fused
		}
	}

	clfTimer := common.NewNamedTimer("classify")
	score, err := s.p.classifier.Classify(ctx, rec.Text, best.Box, rec.Confidence)
	s.recordStage(clfTimer)
	if err != nil {
		s.skipFrame("classification", err)
		return false
	}
	if score.Probability < s.config.Classifier.StabilizedThreshold {
		return false
	}

	ambiguity := serial.AmbiguityScore(rec.Text)
	dres := s.p.disambiguator.Disambiguate(ctx, crop, rec.Text, rec.CharBoxes, ambiguity)

	// The frame confidence is the format probability; the disambiguation
	// confidence qualifies the corrections, not the candidate itself.
	conf := score.Probability
	frame := stabilizer.FrameResult{Text: dres.Text, Confidence: conf, Timestamp: f.Timestamp}
	earlyExit := s.history.Append(frame)

	s.stats.candidates.Add(1)
	s.emit(Event{Kind: EventCandidate, Candidate: dres.Text, Confidence: conf})
	return earlyExit
}

// skipFrame logs a degraded frame and counts the failure on the low lane.
func (s *Session) skipFrame(stage string, err error) {
	if scanerr.IsSkippable(err) {
		slog.Debug("Frame skipped", "stage", stage, "error", err)
	} else {
		slog.Warn("Frame failed", "stage", stage, "error", err)
	}
	s.lanes.tryLow(func() { s.stats.modelFailures.Add(1) })
}

func (s *Session) recordStage(t *common.Timer) {
	d := t.Stop()
	name := t.Name()
	s.lanes.tryLow(func() { s.stats.timings.Record(name, d) })
}

// finish evaluates the buffered candidates and settles the decision.
func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateScanning {
		s.mu.Unlock()
		return
	}

	var result validator.Result
	if s.history.Empty() {
		result = s.p.validator.NoDetection()
	} else {
		best, consistent, mean := s.history.Consensus()
		clf := s.config.Classifier
		valid := best.Confidence > clf.AcceptThreshold ||
			(consistent >= s.config.StabilizedFrames &&
				mean >= clf.StabilizedThreshold &&
				best.Confidence >= clf.StabilizedThreshold)
		if valid {
			result = s.p.validator.Decide(best.Text, best.Confidence)
		} else {
			result = validator.Result{
				Serial:     best.Text,
				Confidence: best.Confidence,
				Level:      validator.LevelReject,
				Reason:     validator.ReasonLowConfidence,
			}
		}
	}

	s.result = result
	if result.Level == validator.LevelBorderline && s.p.confirmer == nil {
		// No confirmation collaborator: suspend and wait for Resolve.
		s.state = StateSuspended
		s.mu.Unlock()
		s.emit(Event{Kind: EventBorderline, Result: &result})
		s.signalDone()
		return
	}
	s.state = StateDone
	s.mu.Unlock()

	if result.Level == validator.LevelBorderline {
		confirmed, err := s.p.confirmer.Confirm(ctx, result)
		if err != nil {
			slog.Warn("Confirmation failed, treating as deny", "error", err)
			confirmed = false
		}
		if confirmed {
			result = s.p.validator.Confirm(result)
		} else {
			result = s.p.validator.Deny(result)
		}
		s.mu.Lock()
		s.result = result
		s.mu.Unlock()
	}

	s.settle(ctx, result)
}

// Resolve settles a suspended borderline session with an external
// confirm/deny decision.
func (s *Session) Resolve(confirm bool) validator.Result {
	s.mu.Lock()
	if s.state != StateSuspended {
		result := s.result
		s.mu.Unlock()
		return result
	}
	result := s.result
	if confirm {
		result = s.p.validator.Confirm(result)
	} else {
		result = s.p.validator.Deny(result)
	}
	s.result = result
	s.state = StateDone
	s.mu.Unlock()

	s.settle(context.Background(), result)
	return result
}

// settle forwards an accepted serial and publishes the decision.
func (s *Session) settle(ctx context.Context, result validator.Result) {
	if result.Level == validator.LevelAccept && s.p.submitter != nil {
		if err := s.p.submitter.Submit(ctx, result); err != nil {
			slog.Error("Serial submission failed", "serial", result.Serial, "error", err)
			s.emitGuaranteed(Event{Kind: EventSubmitError, Error: err.Error(), Result: &result})
		}
	}
	slog.Info("Scan session finished",
		"level", string(result.Level),
		"reason", string(result.Reason),
		"confidence", result.Confidence)
	s.emitGuaranteed(Event{Kind: EventDecision, Result: &result})
	s.signalDone()
	s.closeEvents()
}

func (s *Session) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// closeEvents ends the event stream. Lane tasks may still attempt emits
// afterwards; the mutex-guarded closed flag turns those into drops
// instead of sends on a closed channel.
func (s *Session) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.events)
}

// emit publishes a lossy progress event.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// emitGuaranteed publishes an event that must reach the buffer, evicting
// the oldest pending event if needed.
func (s *Session) emitGuaranteed(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	for {
		select {
		case s.events <- ev:
			return
		default:
			select {
			case <-s.events:
			default:
			}
		}
	}
}
