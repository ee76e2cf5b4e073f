// Package telemetry reports how many objects are in view and how far they are.
package telemetry

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/vision"
	viz "go.viam.com/rdk/vision"

	"videoevents"
)

var Model = videoevents.NamespaceFamily.WithModel("detection-telemetry")

func init() {
	resource.RegisterComponent(sensor.API, Model,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: newTelemetry,
		},
	)
}

type Config struct {
	Camera        string `json:"camera"`
	VisionService string `json:"vision_service"`
}

func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.Camera == "" {
		return nil, fmt.Errorf("need camera")
	}
	if cfg.VisionService == "" {
		return nil, fmt.Errorf("need vision_service")
	}

	return []string{cfg.Camera, cfg.VisionService}, nil
}

type objectSource interface {
	GetObjectPointClouds(ctx context.Context, cameraName string, extra map[string]interface{}) ([]*viz.Object, error)
}

type telemetry struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	objects objectSource
}

func newTelemetry(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewTelemetry(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewTelemetry(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (sensor.Sensor, error) {
	svc, err := vision.FromDependencies(deps, conf.VisionService)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		name:    name,
		logger:  logger,
		cfg:     conf,
		objects: svc,
	}, nil
}

func (t *telemetry) Name() resource.Name {
	return t.name
}

// Readings returns the number of detected objects and their mean distance
// from the camera in meters.
func (t *telemetry) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	objs, err := t.objects.GetObjectPointClouds(ctx, t.cfg.Camera, extra)
	if err != nil {
		return nil, err
	}

	c := centers(objs)
	t.logger.Debugf("%d objects, %d with a geometry", len(objs), len(c))

	return map[string]interface{}{
		"number_of_detection":    len(objs),
		"mean_distance_from_cam": meanDistance(c) / 1000,
	}, nil
}

func (t *telemetry) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

func (t *telemetry) Close(context.Context) error {
	return nil
}

// centers returns the center of every object that has a geometry, in the
// camera frame (mm).
func centers(objs []*viz.Object) []r3.Vector {
	out := make([]r3.Vector, 0, len(objs))
	for _, o := range objs {
		if o == nil || o.Geometry == nil {
			continue
		}
		out = append(out, o.Geometry.Pose().Point())
	}
	return out
}

func meanDistance(points []r3.Vector) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Norm()
	}
	return sum / float64(len(points))
}
