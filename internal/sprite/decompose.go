package sprite

import (
	"fmt"
	"image"

	"respack/internal/imaging"
)

// DefaultMaxFrameSize is the atlas tile limit frames are clamped against.
const DefaultMaxFrameSize = 2048

// Options steer frame extraction.
type Options struct {
	// Padding is added to each frame's width and height.
	Padding int
	// MaxFrameSize clamps frames whose width or height reaches it.
	MaxFrameSize int
}

// Decomposition is the result of splitting a layered image.
type Decomposition struct {
	Width   int
	Height  int
	Frames  []Rect
	Images  []*image.NRGBA
	Clamped []int
}

// Decompose splits layers into frames. Layer 0 sets the sprite size and
// every later layer becomes one frame cropped to that size. A single layer
// is used twice so there is always at least one frame.
func Decompose(layers []imaging.Layer, opts Options) (*Decomposition, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("number of layers is too low")
	}
	if len(layers) == 1 {
		layers = []imaging.Layer{layers[0], layers[0]}
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}

	base := layers[0].Image.Bounds()
	d := &Decomposition{
		Width:  base.Dx(),
		Height: base.Dy(),
		Frames: make([]Rect, 0, len(layers)-1),
		Images: make([]*image.NRGBA, 0, len(layers)-1),
	}

	for k, layer := range layers[1:] {
		d.Images = append(d.Images, imaging.Crop(layer.Image, d.Width, d.Height))

		x, y := layer.Page.Offset()
		r := Rect{X: x, Y: y, Dx: layer.Page.Width, Dy: layer.Page.Height}
		if r.Dx >= opts.MaxFrameSize || r.Dy >= opts.MaxFrameSize {
			r.Dx, r.Dy = d.Width, d.Height
			d.Clamped = append(d.Clamped, k)
		}
		r.Dx += opts.Padding
		r.Dy += opts.Padding
		d.Frames = append(d.Frames, r)
	}
	return d, nil
}
