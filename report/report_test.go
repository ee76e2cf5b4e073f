package report

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"videoevents/segment"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) StartVideoEvent(ctx context.Context, ev segment.Event) error {
	r.calls = append(r.calls, "start:"+ev.Reference)
	return r.err
}

func (r *recorder) UpdateVideoEvent(ctx context.Context, ev segment.Event) error {
	r.calls = append(r.calls, "update:"+ev.Reference)
	return r.err
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	r := &recorder{}
	ev := segment.Event{Reference: "detected_1"}

	test.That(t, Dispatch(ctx, r, segment.Action{Kind: segment.None}), test.ShouldBeNil)
	test.That(t, Dispatch(ctx, r, segment.Action{Kind: segment.Start, Event: ev}), test.ShouldBeNil)
	test.That(t, Dispatch(ctx, r, segment.Action{Kind: segment.Update, Event: ev}), test.ShouldBeNil)
	test.That(t, r.calls, test.ShouldResemble, []string{"start:detected_1", "update:detected_1"})
}

func TestMultiCallsEveryone(t *testing.T) {
	ctx := context.Background()
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &recorder{err: errA}
	b := &recorder{err: errB}
	c := &recorder{}

	err := Multi(a, b, c).StartVideoEvent(ctx, segment.Event{Reference: "x"})
	test.That(t, errors.Is(err, errA), test.ShouldBeTrue)
	test.That(t, errors.Is(err, errB), test.ShouldBeTrue)
	test.That(t, c.calls, test.ShouldResemble, []string{"start:x"})

	test.That(t, Multi(c).UpdateVideoEvent(ctx, segment.Event{Reference: "x"}), test.ShouldBeNil)
	test.That(t, c.calls, test.ShouldResemble, []string{"start:x", "update:x"})
}

func TestLogReporter(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	r := NewLogReporter(logger)
	ctx := context.Background()

	test.That(t, r.StartVideoEvent(ctx, segment.Event{Reference: "detected_5"}), test.ShouldBeNil)
	test.That(t, r.UpdateVideoEvent(ctx, segment.Event{Reference: "detected_5"}), test.ShouldBeNil)
	test.That(t, logs.FilterMessage("Event started").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("Event updated").Len(), test.ShouldEqual, 1)
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	_, err := NewJournal(JournalConfig{})
	test.That(t, err, test.ShouldNotBeNil)

	j, err := NewJournal(JournalConfig{Path: path})
	test.That(t, err, test.ShouldBeNil)

	ctx := context.Background()
	ev := segment.Event{Reference: "detected_10", Label: "People Detection", Start: 10, LastUpdate: 10,
		Payload: map[string]interface{}{"nb_detected_person": 2}}
	test.That(t, j.StartVideoEvent(ctx, ev), test.ShouldBeNil)
	ev.LastUpdate = 20000
	test.That(t, j.UpdateVideoEvent(ctx, ev), test.ShouldBeNil)
	test.That(t, j.Close(), test.ShouldBeNil)

	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		test.That(t, json.Unmarshal(scanner.Bytes(), &e), test.ShouldBeNil)
		entries = append(entries, e)
	}
	test.That(t, scanner.Err(), test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 2)
	test.That(t, entries[0].Action, test.ShouldEqual, "START")
	test.That(t, entries[0].Timestamp, test.ShouldEqual, int64(10))
	test.That(t, entries[1].Action, test.ShouldEqual, "UPDATE")
	test.That(t, entries[1].Timestamp, test.ShouldEqual, int64(20000))
	test.That(t, entries[1].Start, test.ShouldEqual, int64(10))
	test.That(t, entries[1].Payload["nb_detected_person"], test.ShouldEqual, 2.0)
}
