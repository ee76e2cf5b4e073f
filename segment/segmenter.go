// Package segment groups per-frame detection observations into video events.
//
// A video event is a run of frames on which something is detected at least
// every GapFrames frames. Once nothing has been seen for GapFrames frames (or
// GapDuration, when set) the next detection starts a new event with a new
// reference.
package segment

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidArgument is returned when an observation breaks the caller contract:
// a timestamp going backwards or a negative detection count.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	DefaultGapFrames         = 10
	DefaultMinUpdateInterval = 10 * time.Second
	DefaultLabel             = "People Detection"
	DefaultReferencePrefix   = "detected_"
)

// Kind is what the caller should do with an observation.
type Kind int

const (
	None Kind = iota
	Start
	Update
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "START"
	case Update:
		return "UPDATE"
	default:
		return "NONE"
	}
}

// Config controls when a detection continues the open event.
type Config struct {
	Label           string
	ReferencePrefix string

	// GapFrames is the number of consecutive empty observations after which the
	// next detection starts a new event. Zero means DefaultGapFrames.
	GapFrames int

	// GapDuration, when positive, also starts a new event if the last detection
	// is at least this old.
	GapDuration time.Duration

	// MinUpdateInterval bounds how often an open event is re-emitted.
	MinUpdateInterval time.Duration
}

// DefaultConfig matches the video event tutorial: 10 frames, one update every 10s.
func DefaultConfig() Config {
	return Config{
		Label:             DefaultLabel,
		ReferencePrefix:   DefaultReferencePrefix,
		GapFrames:         DefaultGapFrames,
		MinUpdateInterval: DefaultMinUpdateInterval,
	}
}

func (cfg Config) gapFrames() int {
	if cfg.GapFrames <= 0 {
		return DefaultGapFrames
	}
	return cfg.GapFrames
}

func (cfg Config) label() string {
	if cfg.Label == "" {
		return DefaultLabel
	}
	return cfg.Label
}

func (cfg Config) prefix() string {
	if cfg.ReferencePrefix == "" {
		return DefaultReferencePrefix
	}
	return cfg.ReferencePrefix
}

// Event is a contiguous span of detection activity under one reference.
// Timestamps are in milliseconds.
type Event struct {
	Reference  string
	Label      string
	Start      int64
	LastUpdate int64
	Payload    map[string]interface{}
}

// Action is the result of one observation. Event is only set for Start and Update.
type Action struct {
	Kind  Kind
	Event Event
}

// State is a snapshot of the segmenter bookkeeping.
type State struct {
	Open             bool
	Reference        string
	Start            int64
	LastUpdate       int64
	NoDetectionCount int
	Started          int
	Updated          int
}

// Segmenter is not safe for concurrent use; one capture loop owns one Segmenter.
type Segmenter struct {
	cfg Config

	open       bool
	current    Event
	noDetCount int

	observed      bool
	lastTimestamp int64
	lastDetection int64

	lastBase string
	dupCount int

	started, updated int
}

func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Config returns the active configuration.
func (s *Segmenter) Config() Config {
	return s.cfg
}

// SetConfig replaces the thresholds. The open event, if any, stays open and
// the new thresholds apply from the next observation.
func (s *Segmenter) SetConfig(cfg Config) {
	s.cfg = cfg
}

// Reset abandons the open event; the next detection starts a new one.
func (s *Segmenter) Reset() {
	s.open = false
	s.current = Event{}
	s.noDetCount = 0
}

func (s *Segmenter) State() State {
	return State{
		Open:             s.open,
		Reference:        s.current.Reference,
		Start:            s.current.Start,
		LastUpdate:       s.current.LastUpdate,
		NoDetectionCount: s.noDetCount,
		Started:          s.started,
		Updated:          s.updated,
	}
}

// Observe feeds one frame worth of detections. timestamp is in milliseconds and
// must not go backwards. On error the segmenter state is left untouched.
func (s *Segmenter) Observe(timestamp int64, count int, payload map[string]interface{}) (Action, error) {
	if count < 0 {
		return Action{}, errors.Wrapf(ErrInvalidArgument, "negative detection count %d", count)
	}
	if s.observed && timestamp < s.lastTimestamp {
		return Action{}, errors.Wrapf(ErrInvalidArgument, "timestamp %d before previous %d", timestamp, s.lastTimestamp)
	}
	s.observed = true
	s.lastTimestamp = timestamp

	if count == 0 {
		s.noDetCount++
		return Action{Kind: None}, nil
	}

	gapReached := s.gapReached(timestamp)
	s.lastDetection = timestamp

	if !s.open || gapReached {
		s.open = true
		s.noDetCount = 0
		s.current = Event{
			Reference:  s.newReference(timestamp),
			Label:      s.cfg.label(),
			Start:      timestamp,
			LastUpdate: timestamp,
			Payload:    payload,
		}
		s.started++
		return Action{Kind: Start, Event: s.current}, nil
	}

	s.noDetCount = 0
	if time.Duration(timestamp-s.current.LastUpdate)*time.Millisecond < s.cfg.MinUpdateInterval {
		return Action{Kind: None}, nil
	}

	s.current.LastUpdate = timestamp
	s.current.Payload = payload
	s.updated++
	return Action{Kind: Update, Event: s.current}, nil
}

func (s *Segmenter) gapReached(timestamp int64) bool {
	if !s.open {
		return false
	}
	if s.noDetCount >= s.cfg.gapFrames() {
		return true
	}
	if s.cfg.GapDuration > 0 && time.Duration(timestamp-s.lastDetection)*time.Millisecond >= s.cfg.GapDuration {
		return true
	}
	return false
}

// newReference derives the reference from the timestamp. Two starts on the same
// millisecond get a numeric suffix so references never repeat.
func (s *Segmenter) newReference(timestamp int64) string {
	base := s.cfg.prefix() + strconv.FormatInt(timestamp, 10)
	if base != s.lastBase {
		s.lastBase = base
		s.dupCount = 0
		return base
	}
	s.dupCount++
	return base + "_" + strconv.Itoa(s.dupCount)
}
