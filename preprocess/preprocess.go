// Package preprocess converts camera frames into the network's fixed input
// tensor layout: letterboxed to the input size, scaled to [0,1] and laid out
// channel-planar (NCHW).
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/harborwatch/maritime-scene-service/tensor"
)

// InputError reports a caller-supplied batch with the wrong rank or shape.
// It is raised before any compute is attempted.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return "input: " + e.Msg }

// letterbox border color, matching the gray the detector was trained with.
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox resizes img to fit within width x height preserving aspect ratio
// and pads the border instead of stretching. Smaller frames are scaled up, so
// the gain/pad arithmetic the box rescaler undoes holds in both directions.
func Letterbox(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	scale := math.Min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	fw := int(math.Round(float64(b.Dx()) * scale))
	fh := int(math.Round(float64(b.Dy()) * scale))
	fitted := imaging.Resize(img, fw, fh, imaging.Linear)
	canvas := imaging.New(width, height, padColor)
	return imaging.PasteCenter(canvas, fitted)
}

// ToNCHW writes img into dst as three channel planes scaled to [0,1].
// dst must hold 3*w*h values. Rows are split across goroutines the same way
// the RGB planes are filled during tensor preparation.
func ToNCHW(img image.Image, width, height int, dst []float32) {
	channelSize := width * height
	b := img.Bounds()

	var wg sync.WaitGroup
	wg.Add(3)
	for c := 0; c < 3; c++ {
		go func(channel int) {
			defer wg.Done()
			offset := channel * channelSize
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
					var v uint32
					switch channel {
					case 0:
						v = r
					case 1:
						v = g
					case 2:
						v = bl
					}
					dst[offset+y*width+x] = float32(v>>8) / 255.0
				}
			}
		}(c)
	}
	wg.Wait()
}

// BatchTensor letterboxes every frame and stacks them into one NCHW batch
// tensor of shape (len(frames), 3, height, width).
func BatchTensor(frames []image.Image, width, height int) (*tensor.Tensor, error) {
	if len(frames) == 0 {
		return nil, &InputError{Msg: "empty frame batch"}
	}
	batch := tensor.New(len(frames), 3, height, width)
	frameSize := 3 * width * height
	for i, frame := range frames {
		if frame == nil {
			return nil, &InputError{Msg: fmt.Sprintf("frame %d is nil", i)}
		}
		boxed := Letterbox(frame, width, height)
		ToNCHW(boxed, width, height, batch.Data()[i*frameSize:(i+1)*frameSize])
	}
	return batch, nil
}

// CheckBatch validates a prepared batch tensor against the engine's expected
// input geometry before any compute is attempted.
func CheckBatch(t *tensor.Tensor, batch, height, width int) error {
	if t == nil {
		return &InputError{Msg: "nil batch tensor"}
	}
	if t.Rank() != 4 {
		return &InputError{Msg: fmt.Sprintf("batch must have rank 4 (n,c,h,w), got %d", t.Rank())}
	}
	if t.Dim(0) != batch || t.Dim(1) != 3 || t.Dim(2) != height || t.Dim(3) != width {
		return &InputError{Msg: fmt.Sprintf("batch shape %v, want [%d 3 %d %d]", t.Shape(), batch, height, width)}
	}
	return nil
}
