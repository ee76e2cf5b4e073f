package annotate

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"

	"videoevents"
)

func gray(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	return img
}

func TestScaleBox(t *testing.T) {
	src := image.Rect(0, 0, 2560, 1440)
	got := scaleBox(image.Rect(100, 200, 300, 400), src, 1280, 720)
	test.That(t, got, test.ShouldResemble, image.Rect(50, 100, 150, 200))

	offset := image.Rect(10, 10, 110, 60)
	got = scaleBox(image.Rect(10, 10, 60, 35), offset, 200, 100)
	test.That(t, got, test.ShouldResemble, image.Rect(0, 0, 100, 50))
}

func TestAnnotateResizes(t *testing.T) {
	out, err := annotate(gray(64, 48), nil, 32, 24)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 32)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 24)
}

func TestAnnotateDrawsBoxes(t *testing.T) {
	dets := []videoevents.Detection{{Label: "Person", Score: 0.9, Box: image.Rect(20, 20, 100, 80)}}
	out, err := annotate(gray(160, 120), dets, 80, 60)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 80)

	// box lands at (10,10)-(50,40) after scaling
	r, g, b, _ := out.At(10, 25).RGBA()
	test.That(t, r>>8, test.ShouldEqual, uint32(50))
	test.That(t, g>>8, test.ShouldEqual, uint32(200))
	test.That(t, b>>8, test.ShouldEqual, uint32(50))

	// inside the box is untouched
	r, _, _, _ = out.At(30, 25).RGBA()
	test.That(t, r>>8, test.ShouldEqual, uint32(128))
}

func TestConfig(t *testing.T) {
	cfg := &Config{}
	test.That(t, cfg.getWidth(), test.ShouldEqual, 1280)
	test.That(t, cfg.getHeight(), test.ShouldEqual, 720)
	test.That(t, cfg.getDrawBBoxes(), test.ShouldBeTrue)

	_, err := cfg.Validate("")
	test.That(t, err, test.ShouldNotBeNil)
	deps, err := (&Config{Camera: "cam", VisionService: "vis"}).Validate("")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"cam", "vis"})
}
