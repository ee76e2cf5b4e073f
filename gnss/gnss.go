// Package gnss publishes geolocation telemetry, either from a movement sensor
// or from a simulated walk when the device has no GPS.
package gnss

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	geo "github.com/kellydunn/golang-geo"

	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"videoevents"
)

var Model = videoevents.NamespaceFamily.WithModel("gps-tracker")

const (
	defaultLatitude  = 48.818737
	defaultLongitude = 2.318206

	// largest simulated move per reading, in degrees
	walkStep = 0.00005
)

func init() {
	resource.RegisterComponent(sensor.API, Model,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: newTracker,
		},
	)
}

type Config struct {
	// MovementSensor is optional; without it the position is simulated.
	MovementSensor string `json:"movement_sensor,omitempty"`

	StartLatitude  *float64 `json:"start_latitude,omitempty"`
	StartLongitude *float64 `json:"start_longitude,omitempty"`
}

func (cfg *Config) Validate(path string) ([]string, error) {
	if cfg.StartLatitude != nil && math.Abs(*cfg.StartLatitude) > 90 {
		return nil, errOutOfRange("start_latitude")
	}
	if cfg.StartLongitude != nil && math.Abs(*cfg.StartLongitude) > 180 {
		return nil, errOutOfRange("start_longitude")
	}
	if cfg.MovementSensor == "" {
		return nil, nil
	}
	return []string{cfg.MovementSensor}, nil
}

func (cfg *Config) start() *geo.Point {
	lat, lng := defaultLatitude, defaultLongitude
	if cfg.StartLatitude != nil {
		lat = *cfg.StartLatitude
	}
	if cfg.StartLongitude != nil {
		lng = *cfg.StartLongitude
	}
	return geo.NewPoint(lat, lng)
}

type positioner interface {
	Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error)
}

type tracker struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	source positioner
	clock  clock.Clock

	mu       sync.Mutex
	last     *geo.Point
	traveled float64 // meters
}

func newTracker(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewTracker(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewTracker(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (sensor.Sensor, error) {
	var source positioner
	if conf.MovementSensor != "" {
		ms, err := movementsensor.FromDependencies(deps, conf.MovementSensor)
		if err != nil {
			return nil, err
		}
		source = ms
	} else {
		logger.Infof("no movement sensor, simulating a walk from %v", conf.start())
		source = newWalk(conf.start(), rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	return &tracker{
		name:   name,
		logger: logger,
		cfg:    conf,
		source: source,
		clock:  clock.New(),
	}, nil
}

func (t *tracker) Name() resource.Name {
	return t.name
}

func (t *tracker) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	p, alt, err := t.source.Position(ctx, extra)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.last != nil {
		t.traveled += t.last.GreatCircleDistance(p) * 1000
	}
	t.last = p
	traveled := t.traveled
	t.mu.Unlock()

	return map[string]interface{}{
		"layer_type": "geolocation",
		"position": map[string]interface{}{
			"latitude":  p.Lat(),
			"longitude": p.Lng(),
			"altitude":  alt,
		},
		"distance_traveled_m": traveled,
		"epoch_timestamp":     t.clock.Now().UnixMilli(),
	}, nil
}

func (t *tracker) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	if cmd["command"] == "reset_distance" {
		t.mu.Lock()
		t.traveled = 0
		t.mu.Unlock()
		return map[string]interface{}{"distance_traveled_m": 0.0}, nil
	}
	return nil, nil
}

func (t *tracker) Close(context.Context) error {
	return nil
}

// walk wanders around a point, one small random step per Position call.
type walk struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	lat, lng float64
	alt      float64
}

func newWalk(start *geo.Point, rnd *rand.Rand) *walk {
	return &walk{rnd: rnd, lat: start.Lat(), lng: start.Lng()}
}

func (w *walk) step() float64 {
	return w.rnd.Float64()*2*walkStep - walkStep
}

func (w *walk) Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lat = clamp(w.lat+w.step(), -90, 90)
	w.lng = clamp(w.lng+w.step(), -180, 180)
	w.alt += w.step()
	return geo.NewPoint(w.lat, w.lng), w.alt, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type errOutOfRange string

func (e errOutOfRange) Error() string {
	return string(e) + " out of range"
}
