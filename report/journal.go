package report

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"videoevents/segment"
)

// JournalConfig describes where the journal lives and how it rotates.
type JournalConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// Entry is one line of the journal.
type Entry struct {
	Action    string                 `json:"action"`
	Reference string                 `json:"reference"`
	Label     string                 `json:"label"`
	Timestamp int64                  `json:"timestamp"`
	Start     int64                  `json:"start"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Journal appends one JSON object per call to a size-rotated file.
type Journal struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

func NewJournal(cfg JournalConfig) (*Journal, error) {
	if cfg.Path == "" {
		return nil, errors.New("journal needs a path")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 64
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 2
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return &Journal{out: out, enc: json.NewEncoder(out)}, nil
}

func (j *Journal) StartVideoEvent(ctx context.Context, ev segment.Event) error {
	return j.write(segment.Start, ev.Start, ev)
}

func (j *Journal) UpdateVideoEvent(ctx context.Context, ev segment.Event) error {
	return j.write(segment.Update, ev.LastUpdate, ev)
}

func (j *Journal) write(kind segment.Kind, ts int64, ev segment.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.enc.Encode(Entry{
		Action:    kind.String(),
		Reference: ev.Reference,
		Label:     ev.Label,
		Timestamp: ts,
		Start:     ev.Start,
		Payload:   ev.Payload,
	})
	return errors.Wrapf(err, "writing %s for %s", kind, ev.Reference)
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.out.Close()
}
