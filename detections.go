package videoevents

import (
	"context"
	"image"
	"strings"

	"go.viam.com/rdk/services/vision"
	"go.viam.com/rdk/vision/objectdetection"
)

// Detection is a single 2D detection.
type Detection struct {
	Label string
	Score float64
	Box   image.Rectangle
}

// DetectionSource yields the detections of the current frame.
type DetectionSource interface {
	Detect(ctx context.Context) ([]Detection, error)
}

type visionSource struct {
	svc    vision.Service
	camera string
}

// NewVisionSource asks svc for the detections on the next image of camera.
func NewVisionSource(svc vision.Service, camera string) DetectionSource {
	return &visionSource{svc: svc, camera: camera}
}

func (vs *visionSource) Detect(ctx context.Context) ([]Detection, error) {
	dets, err := vs.svc.DetectionsFromCamera(ctx, vs.camera, nil)
	if err != nil {
		return nil, err
	}
	return FromVision(dets), nil
}

// FromVision converts vision service detections.
func FromVision(dets []objectdetection.Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		det := Detection{Label: d.Label(), Score: d.Score()}
		if bb := d.BoundingBox(); bb != nil {
			det.Box = *bb
		}
		out = append(out, det)
	}
	return out
}

// Filter keeps the detections scoring at least minScore whose label is in
// classes (case-insensitive). An empty classes keeps every label.
type Filter struct {
	Classes  []string
	MinScore float64
}

func (f Filter) Keep(d Detection) bool {
	if d.Score < f.MinScore {
		return false
	}
	if len(f.Classes) == 0 {
		return true
	}
	for _, c := range f.Classes {
		if strings.EqualFold(c, d.Label) {
			return true
		}
	}
	return false
}

func (f Filter) Apply(dets []Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if f.Keep(d) {
			out = append(out, d)
		}
	}
	return out
}
