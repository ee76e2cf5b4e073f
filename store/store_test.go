package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"videoevents/segment"
)

func TestStoreLifecycle(t *testing.T) {
	s, err := Open(":memory:")
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	ctx := context.Background()
	ev := segment.Event{
		Reference: "detected_100", Label: "People Detection", Start: 100, LastUpdate: 100,
		Payload: map[string]interface{}{"nb_detected_person": 1},
	}
	test.That(t, s.StartVideoEvent(ctx, ev), test.ShouldBeNil)

	ev.LastUpdate = 10100
	ev.Payload = map[string]interface{}{"nb_detected_person": 3}
	test.That(t, s.UpdateVideoEvent(ctx, ev), test.ShouldBeNil)
	ev.LastUpdate = 20100
	test.That(t, s.UpdateVideoEvent(ctx, ev), test.ShouldBeNil)

	row, err := s.Get(ctx, "detected_100")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, row.StartMs, test.ShouldEqual, int64(100))
	test.That(t, row.LastUpdateMs, test.ShouldEqual, int64(20100))
	test.That(t, row.Updates, test.ShouldEqual, 2)

	var payload map[string]interface{}
	test.That(t, json.Unmarshal([]byte(row.Payload), &payload), test.ShouldBeNil)
	test.That(t, payload["nb_detected_person"], test.ShouldEqual, 3.0)
}

func TestStoreUnknownAndDuplicate(t *testing.T) {
	s, err := Open(":memory:")
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	ctx := context.Background()

	err = s.UpdateVideoEvent(ctx, segment.Event{Reference: "nope"})
	test.That(t, errors.Is(err, ErrUnknownEvent), test.ShouldBeTrue)

	_, err = s.Get(ctx, "nope")
	test.That(t, errors.Is(err, ErrUnknownEvent), test.ShouldBeTrue)

	ev := segment.Event{Reference: "detected_1", Start: 1, LastUpdate: 1}
	test.That(t, s.StartVideoEvent(ctx, ev), test.ShouldBeNil)
	test.That(t, s.StartVideoEvent(ctx, ev), test.ShouldNotBeNil)
}

func TestStoreListNewestFirst(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()
	ctx := context.Background()

	for _, ref := range []struct {
		name string
		ts   int64
	}{{"detected_1", 1}, {"detected_50", 50}, {"detected_20", 20}} {
		test.That(t, s.StartVideoEvent(ctx, segment.Event{Reference: ref.name, Start: ref.ts, LastUpdate: ref.ts}), test.ShouldBeNil)
	}

	rows, err := s.List(ctx, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(rows), test.ShouldEqual, 2)
	test.That(t, rows[0].Reference, test.ShouldEqual, "detected_50")
	test.That(t, rows[1].Reference, test.ShouldEqual, "detected_20")

	rows, err = s.List(ctx, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(rows), test.ShouldEqual, 3)
}
