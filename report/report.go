// Package report delivers video event actions to whatever records them.
package report

import (
	"context"

	"go.uber.org/multierr"

	"go.viam.com/rdk/logging"

	"videoevents/segment"
)

// Reporter receives the video event calls decided by a segment.Segmenter.
type Reporter interface {
	StartVideoEvent(ctx context.Context, ev segment.Event) error
	UpdateVideoEvent(ctx context.Context, ev segment.Event) error
}

// Dispatch forwards a to r. None is a no-op.
func Dispatch(ctx context.Context, r Reporter, a segment.Action) error {
	switch a.Kind {
	case segment.Start:
		return r.StartVideoEvent(ctx, a.Event)
	case segment.Update:
		return r.UpdateVideoEvent(ctx, a.Event)
	default:
		return nil
	}
}

type multi []Reporter

// Multi calls every reporter in order, even after a failure, and returns the
// combined errors.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

func (m multi) StartVideoEvent(ctx context.Context, ev segment.Event) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.StartVideoEvent(ctx, ev))
	}
	return err
}

func (m multi) UpdateVideoEvent(ctx context.Context, ev segment.Event) error {
	var err error
	for _, r := range m {
		err = multierr.Append(err, r.UpdateVideoEvent(ctx, ev))
	}
	return err
}

type logReporter struct {
	logger logging.Logger
}

// NewLogReporter logs every call at info level.
func NewLogReporter(logger logging.Logger) Reporter {
	return &logReporter{logger: logger}
}

func (l *logReporter) StartVideoEvent(ctx context.Context, ev segment.Event) error {
	l.logger.Infow("Event started", "reference", ev.Reference, "label", ev.Label, "timestamp", ev.Start, "payload", ev.Payload)
	return nil
}

func (l *logReporter) UpdateVideoEvent(ctx context.Context, ev segment.Event) error {
	l.logger.Infow("Event updated", "reference", ev.Reference, "label", ev.Label, "timestamp", ev.LastUpdate, "payload", ev.Payload)
	return nil
}
