package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	viz "go.viam.com/rdk/vision"
	"go.viam.com/test"
)

type fakeObjects struct {
	objs []*viz.Object
	err  error
}

func (f *fakeObjects) GetObjectPointClouds(ctx context.Context, cameraName string, extra map[string]interface{}) ([]*viz.Object, error) {
	return f.objs, f.err
}

func objectAt(t *testing.T, p r3.Vector) *viz.Object {
	t.Helper()
	g, err := spatialmath.NewBox(spatialmath.NewPoseFromPoint(p), r3.Vector{X: 100, Y: 100, Z: 100}, "")
	test.That(t, err, test.ShouldBeNil)
	return &viz.Object{Geometry: g}
}

func TestMeanDistance(t *testing.T) {
	test.That(t, meanDistance(nil), test.ShouldEqual, 0.0)
	test.That(t, meanDistance([]r3.Vector{{X: 3, Y: 4}, {Z: 15}}), test.ShouldAlmostEqual, 10.0)
}

func TestReadings(t *testing.T) {
	src := &fakeObjects{}
	tel := &telemetry{
		name:    sensor.Named("tel"),
		logger:  logging.NewTestLogger(t),
		cfg:     &Config{Camera: "cam", VisionService: "vis"},
		objects: src,
	}
	ctx := context.Background()

	r, err := tel.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r["number_of_detection"], test.ShouldEqual, 0)
	test.That(t, r["mean_distance_from_cam"], test.ShouldEqual, 0.0)

	src.objs = []*viz.Object{
		objectAt(t, r3.Vector{Z: 1000}),
		objectAt(t, r3.Vector{X: 3000, Z: 4000}),
		{},
	}
	r, err = tel.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r["number_of_detection"], test.ShouldEqual, 3)
	test.That(t, r["mean_distance_from_cam"], test.ShouldAlmostEqual, 3.0)

	src.err = errors.New("no camera")
	_, err = tel.Readings(ctx, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidate(t *testing.T) {
	_, err := (&Config{Camera: "cam"}).Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	deps, err := (&Config{Camera: "cam", VisionService: "vis"}).Validate("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"cam", "vis"})
}
