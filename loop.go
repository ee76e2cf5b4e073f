package videoevents

import (
	"context"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"videoevents/report"
	"videoevents/segment"
)

// loopState is everything the capture loop owns. Only the loop goroutine
// reads or writes it.
type loopState struct {
	seg    *segment.Segmenter
	filter Filter
	record bool

	// timestamps are epoch + monotonic elapsed time so they never go backwards
	epoch time.Time

	lastCount  int
	lastAction segment.Kind
}

func newLoopState(cfg *Config, epoch time.Time) *loopState {
	return &loopState{
		seg:    segment.New(cfg.segmentConfig()),
		filter: Filter{Classes: cfg.getClassFilter(), MinScore: cfg.getMinConfidence()},
		record: cfg.getRecordVideoEvent(),
		epoch:  epoch,
	}
}

// loopMessage is a change requested from outside the loop.
type loopMessage interface {
	apply(ls *loopState)
}

// Parameters are the application parameters that can change at runtime.
// Nil fields are left as they are.
type Parameters struct {
	GapFrames                *int     `mapstructure:"gap_frames"`
	GapSeconds               *float64 `mapstructure:"gap_seconds"`
	MinUpdateIntervalSeconds *float64 `mapstructure:"min_update_interval_seconds"`
	MinConfidence            *float64 `mapstructure:"min_confidence"`
	RecordVideoEvent         *bool    `mapstructure:"record_video_event"`
}

func decodeParameters(raw map[string]interface{}) (Parameters, error) {
	var p Parameters
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return p, errors.Wrap(err, "bad parameters")
	}
	if p.GapFrames != nil && *p.GapFrames < 0 {
		return p, errors.New("gap_frames can't be negative")
	}
	if p.GapSeconds != nil && *p.GapSeconds < 0 {
		return p, errors.New("gap_seconds can't be negative")
	}
	if p.MinUpdateIntervalSeconds != nil && *p.MinUpdateIntervalSeconds < 0 {
		return p, errors.New("min_update_interval_seconds can't be negative")
	}
	if p.MinConfidence != nil && (*p.MinConfidence < 0 || *p.MinConfidence > 1) {
		return p, errors.New("min_confidence must be between 0 and 1")
	}
	return p, nil
}

func (p Parameters) apply(ls *loopState) {
	cfg := ls.seg.Config()
	if p.GapFrames != nil {
		cfg.GapFrames = *p.GapFrames
	}
	if p.GapSeconds != nil {
		cfg.GapDuration = seconds(*p.GapSeconds)
	}
	if p.MinUpdateIntervalSeconds != nil {
		cfg.MinUpdateInterval = seconds(*p.MinUpdateIntervalSeconds)
	}
	ls.seg.SetConfig(cfg)

	if p.MinConfidence != nil {
		ls.filter.MinScore = *p.MinConfidence
	}
	if p.RecordVideoEvent != nil {
		ls.record = *p.RecordVideoEvent
	}
}

type resetRequest struct{}

func (resetRequest) apply(ls *loopState) {
	ls.seg.Reset()
	ls.lastAction = segment.None
}

func (s *videoEventSensor) run(ls *loopState, tick <-chan time.Time) {
	for {
		select {
		case <-s.cancelCtx.Done():
			return
		case msg := <-s.messages:
			msg.apply(ls)
			s.logger.Infow("New parameters applied", "config", ls.seg.Config(), "record_video_event", ls.record)
		case <-tick:
			s.step(s.cancelCtx, ls)
		}
		s.publish(ls)
	}
}

// step runs one capture loop iteration.
func (s *videoEventSensor) step(ctx context.Context, ls *loopState) {
	if !ls.record {
		return
	}

	dets, err := s.source.Detect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warnw("can't get detections", "error", err)
		}
		return
	}
	n := len(ls.filter.Apply(dets))
	ts := ls.epoch.UnixMilli() + s.clock.Since(ls.epoch).Milliseconds()

	payload := map[string]interface{}{"nb_detected_person": n}
	a, err := ls.seg.Observe(ts, n, payload)
	if err != nil {
		s.logger.Errorw("capture loop fed a bad observation", "error", err)
		return
	}
	ls.lastCount = n
	ls.lastAction = a.Kind

	if a.Kind == segment.None {
		return
	}
	payload["message"] = "Current event as reference " + a.Event.Reference
	if a.Kind == segment.Start {
		s.logger.Infow("New Video Event defined", "reference", a.Event.Reference)
	}
	if err := report.Dispatch(ctx, s.reporter, a); err != nil {
		s.logger.Warnw("can't report video event", "kind", a.Kind.String(), "reference", a.Event.Reference, "error", err)
	}
}

type status struct {
	state      segment.State
	record     bool
	lastCount  int
	lastAction segment.Kind
}

func (s *videoEventSensor) publish(ls *loopState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status{
		state:      ls.seg.State(),
		record:     ls.record,
		lastCount:  ls.lastCount,
		lastAction: ls.lastAction,
	}
}

func (st status) readings() map[string]interface{} {
	return map[string]interface{}{
		"event_reference":      st.state.Reference,
		"event_open":           st.state.Open,
		"no_detection_count":   st.state.NoDetectionCount,
		"last_action":          st.lastAction.String(),
		"last_detection_count": st.lastCount,
		"events_started":       st.state.Started,
		"events_updated":       st.state.Updated,
		"record_video_event":   st.record,
	}
}
