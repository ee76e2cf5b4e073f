// Package annotate is a camera that draws the detections of a vision service on
// a resized copy of another camera's image.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/services/vision"
	"go.viam.com/rdk/utils"
	"go.viam.com/rdk/vision/objectdetection"

	"videoevents"
)

var (
	Model          = videoevents.NamespaceFamily.WithModel("annotated-camera")
	errUnsupported = errors.New("annotated camera has no point cloud")

	boxColor = color.RGBA{R: 50, G: 200, B: 50, A: 255}
)

const boxThickness = 4

func init() {
	resource.RegisterComponent(camera.API, Model,
		resource.Registration[camera.Camera, *Config]{
			Constructor: newAnnotated,
		},
	)
}

type Config struct {
	Camera        string `json:"camera"`
	VisionService string `json:"vision_service"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	DrawBBoxes    *bool    `json:"draw_bboxes,omitempty"`
	MinConfidence float64  `json:"min_confidence,omitempty"`
	ClassFilter   []string `json:"class_filter,omitempty"`
}

func (cfg *Config) getWidth() int {
	if cfg.Width <= 0 {
		return 1280
	}
	return cfg.Width
}

func (cfg *Config) getHeight() int {
	if cfg.Height <= 0 {
		return 720
	}
	return cfg.Height
}

func (cfg *Config) getDrawBBoxes() bool {
	if cfg.DrawBBoxes == nil {
		return true
	}
	return *cfg.DrawBBoxes
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

type detector interface {
	Detections(ctx context.Context, img image.Image, extra map[string]interface{}) ([]objectdetection.Detection, error)
}

type annotated struct {
	resource.AlwaysRebuild

	name resource.Name

	logger logging.Logger
	cfg    *Config

	src      camera.Camera
	detector detector
	filter   videoevents.Filter
}

func newAnnotated(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (camera.Camera, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewAnnotated(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewAnnotated(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (camera.Camera, error) {
	a := &annotated{
		name:   name,
		logger: logger,
		cfg:    conf,
		filter: videoevents.Filter{Classes: conf.ClassFilter, MinScore: conf.MinConfidence},
	}

	var err error
	a.src, err = camera.FromDependencies(deps, conf.Camera)
	if err != nil {
		return nil, err
	}
	a.detector, err = vision.FromDependencies(deps, conf.VisionService)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *annotated) Name() resource.Name {
	return a.name
}

func (a *annotated) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

func (a *annotated) Close(context.Context) error {
	return nil
}

func (a *annotated) Image(ctx context.Context, mimeType string, extra map[string]interface{}) ([]byte, camera.ImageMetadata, error) {
	img, err := a.next(ctx)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	if mimeType == "" {
		mimeType = utils.MimeTypeJPEG
	}
	data, err := rimage.EncodeImage(ctx, img, mimeType)
	if err != nil {
		return nil, camera.ImageMetadata{}, err
	}
	return data, camera.ImageMetadata{MimeType: mimeType}, nil
}

func (a *annotated) Images(ctx context.Context) ([]camera.NamedImage, resource.ResponseMetadata, error) {
	img, err := a.next(ctx)
	if err != nil {
		return nil, resource.ResponseMetadata{}, err
	}
	return []camera.NamedImage{{Image: img, SourceName: a.name.ShortName()}},
		resource.ResponseMetadata{CapturedAt: time.Now()}, nil
}

func (a *annotated) NextPointCloud(ctx context.Context) (pointcloud.PointCloud, error) {
	return nil, errUnsupported
}

func (a *annotated) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{
		SupportsPCD: false,
	}, nil
}

// next grabs a frame, runs the detector on it and returns the resized, annotated frame.
func (a *annotated) next(ctx context.Context) (image.Image, error) {
	all, _, err := a.src.Images(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%s returned no image", a.cfg.Camera)
	}
	frame := all[0].Image

	var dets []videoevents.Detection
	if a.cfg.getDrawBBoxes() {
		raw, err := a.detector.Detections(ctx, frame, nil)
		if err != nil {
			return nil, err
		}
		dets = a.filter.Apply(videoevents.FromVision(raw))
	}

	return annotate(frame, dets, a.cfg.getWidth(), a.cfg.getHeight())
}

// annotate resizes img to width x height and draws dets, given in img coordinates.
func annotate(img image.Image, dets []videoevents.Detection, width, height int) (image.Image, error) {
	resized := imaging.Resize(img, width, height, imaging.Linear)
	if len(dets) == 0 {
		return resized, nil
	}

	mat, err := imageToMat(resized)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, d := range dets {
		gocv.Rectangle(&mat, scaleBox(d.Box, img.Bounds(), width, height), boxColor, boxThickness)
	}

	return mat.ToImage()
}

// scaleBox maps box from the src image onto a width x height image.
func scaleBox(box, src image.Rectangle, width, height int) image.Rectangle {
	rx := float64(width) / float64(src.Dx())
	ry := float64(height) / float64(src.Dy())
	return image.Rect(
		int(float64(box.Min.X-src.Min.X)*rx),
		int(float64(box.Min.Y-src.Min.Y)*ry),
		int(float64(box.Max.X-src.Min.X)*rx),
		int(float64(box.Max.Y-src.Min.Y)*ry),
	)
}

// imageToMat copies img into a BGR gocv.Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			mat.SetUCharAt(y, x*3, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}

	return mat, nil
}
