package videoevents

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"

	"videoevents/report"
	"videoevents/segment"
	"videoevents/store"
)

var (
	NamespaceFamily  = resource.NewModelFamily("erh", "video-events")
	VideoEventSensor = NamespaceFamily.WithModel("video-event-sensor")
)

func init() {
	resource.RegisterComponent(sensor.API, VideoEventSensor,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: newVideoEventSensor,
		},
	)
}

type Config struct {
	Camera        string `json:"camera"`
	VisionService string `json:"vision_service"`

	Label         string   `json:"label,omitempty"`
	ClassFilter   []string `json:"class_filter,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// GapFrames is the number of frames without detection before the next detection is a new event
	GapFrames  int     `json:"gap_frames,omitempty"`
	GapSeconds float64 `json:"gap_seconds,omitempty"`

	MinUpdateIntervalSeconds *float64 `json:"min_update_interval_seconds,omitempty"`

	PollIntervalMs   int   `json:"poll_interval_ms,omitempty"`
	RecordVideoEvent *bool `json:"record_video_event,omitempty"`

	JournalPath string `json:"journal_path,omitempty"`
	StorePath   string `json:"store_path,omitempty"`
}

func (cfg *Config) getClassFilter() []string {
	if cfg.ClassFilter == nil {
		return []string{"Person"}
	}
	return cfg.ClassFilter
}

func (cfg *Config) getMinConfidence() float64 {
	if cfg.MinConfidence == nil {
		return 0.5
	}
	return *cfg.MinConfidence
}

func (cfg *Config) getMinUpdateInterval() time.Duration {
	if cfg.MinUpdateIntervalSeconds == nil {
		return segment.DefaultMinUpdateInterval
	}
	return seconds(*cfg.MinUpdateIntervalSeconds)
}

func (cfg *Config) getPollInterval() time.Duration {
	if cfg.PollIntervalMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(cfg.PollIntervalMs) * time.Millisecond
}

func (cfg *Config) getRecordVideoEvent() bool {
	if cfg.RecordVideoEvent == nil {
		return true
	}
	return *cfg.RecordVideoEvent
}

func (cfg *Config) segmentConfig() segment.Config {
	return segment.Config{
		Label:             cfg.Label,
		GapFrames:         cfg.GapFrames,
		GapDuration:       seconds(cfg.GapSeconds),
		MinUpdateInterval: cfg.getMinUpdateInterval(),
	}
}

func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.Camera == "" {
		return nil, fmt.Errorf("need camera")
	}
	if cfg.VisionService == "" {
		return nil, fmt.Errorf("need vision_service")
	}
	if cfg.GapFrames < 0 {
		return nil, fmt.Errorf("gap_frames can't be negative")
	}
	if cfg.GapSeconds < 0 {
		return nil, fmt.Errorf("gap_seconds can't be negative")
	}
	if cfg.MinUpdateIntervalSeconds != nil && *cfg.MinUpdateIntervalSeconds < 0 {
		return nil, fmt.Errorf("min_update_interval_seconds can't be negative")
	}
	if c := cfg.getMinConfidence(); c < 0 || c > 1 {
		return nil, fmt.Errorf("min_confidence must be between 0 and 1")
	}

	return []string{cfg.Camera, cfg.VisionService}, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type videoEventSensor struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	cancelCtx  context.Context
	cancelFunc func()
	workers    sync.WaitGroup

	source   DetectionSource
	reporter report.Reporter
	store    *store.Store
	closers  []io.Closer
	clock    clock.Clock

	messages chan loopMessage

	mu     sync.Mutex
	status status
}

func newVideoEventSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewVideoEventSensor(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewVideoEventSensor(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (sensor.Sensor, error) {
	svc, err := vision.FromDependencies(deps, conf.VisionService)
	if err != nil {
		return nil, err
	}

	reporters := []report.Reporter{report.NewLogReporter(logger)}
	var closers []io.Closer

	if conf.JournalPath != "" {
		j, err := report.NewJournal(report.JournalConfig{Path: conf.JournalPath})
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, j)
		closers = append(closers, j)
	}

	var st *store.Store
	if conf.StorePath != "" {
		st, err = store.Open(conf.StorePath)
		if err != nil {
			return nil, multierr.Combine(err, closeAll(closers))
		}
		reporters = append(reporters, st)
		closers = append(closers, st)
	}

	s := newSensor(name, conf, NewVisionSource(svc, conf.Camera), report.Multi(reporters...), clock.New(), logger)
	s.store = st
	s.closers = closers
	s.start()
	return s, nil
}

// newSensor builds the component without starting the capture loop.
func newSensor(name resource.Name, conf *Config, source DetectionSource, reporter report.Reporter,
	clk clock.Clock, logger logging.Logger,
) *videoEventSensor {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	return &videoEventSensor{
		name:       name,
		logger:     logger,
		cfg:        conf,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
		source:     source,
		reporter:   reporter,
		clock:      clk,
		messages:   make(chan loopMessage),
	}
}

func (s *videoEventSensor) start() {
	ls := newLoopState(s.cfg, s.clock.Now())
	s.publish(ls)

	// created here so a mock clock can't advance before the loop listens
	ticker := s.clock.Ticker(s.cfg.getPollInterval())

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer ticker.Stop()
		s.run(ls, ticker.C)
	}()
}

func (s *videoEventSensor) Name() resource.Name {
	return s.name
}

func (s *videoEventSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.readings(), nil
}

func (s *videoEventSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "set_parameters":
		p, err := decodeParameters(cmd)
		if err != nil {
			return nil, err
		}
		if err := s.send(ctx, p); err != nil {
			return nil, err
		}
		return map[string]interface{}{"applied": true}, nil
	case "reset":
		if err := s.send(ctx, resetRequest{}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"reset": true}, nil
	case "history":
		return s.history(ctx, cmd)
	default:
		return nil, fmt.Errorf("unknown command %v", cmd["command"])
	}
}

func (s *videoEventSensor) history(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if s.store == nil {
		return nil, fmt.Errorf("history needs store_path")
	}
	limit := 0
	if l, ok := cmd["limit"].(float64); ok {
		limit = int(l)
	}
	rows, err := s.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	events := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		events = append(events, map[string]interface{}{
			"reference":      r.Reference,
			"label":          r.Label,
			"start_ms":       r.StartMs,
			"last_update_ms": r.LastUpdateMs,
			"updates":        r.Updates,
			"payload":        r.Payload,
		})
	}
	return map[string]interface{}{"events": events}, nil
}

// send hands msg to the capture loop, which is the only one allowed to touch
// the segmenter.
func (s *videoEventSensor) send(ctx context.Context, msg loopMessage) error {
	select {
	case s.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.cancelCtx.Done():
		return fmt.Errorf("%s is closed", s.name)
	}
}

func (s *videoEventSensor) Close(context.Context) error {
	s.cancelFunc()
	s.workers.Wait()
	return closeAll(s.closers)
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
