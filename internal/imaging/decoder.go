package imaging

import (
	"fmt"
	"image"
	"image/png"

	"respack/internal/errors"

	"github.com/oov/psd"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
)

// LayeredDecoder returns every layer of a source image in order. Layer 0 is
// the flattened canvas; the rest are the individual layers.
type LayeredDecoder interface {
	DecodeLayers(fs afero.Fs, name string) ([]Layer, error)
}

// PSDDecoder reads Photoshop documents.
type PSDDecoder struct{}

func (PSDDecoder) DecodeLayers(fs afero.Fs, name string) ([]Layer, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, errors.Decode(name, err)
	}
	defer f.Close()

	doc, _, err := psd.Decode(f, &psd.DecodeOptions{})
	if err != nil {
		return nil, errors.Decode(name, err)
	}

	var layers []Layer
	if doc.Picker != nil {
		layers = append(layers, Layer{Image: doc.Picker, Page: GeometryFromRect(doc.Config.Rect)})
	}
	layers = appendPSDLayers(layers, doc.Layer)
	return layers, nil
}

// appendPSDLayers flattens layer groups depth first, keeping only layers
// that carry pixels.
func appendPSDLayers(dst []Layer, src []psd.Layer) []Layer {
	for i := range src {
		l := &src[i]
		if len(l.Layer) > 0 {
			dst = appendPSDLayers(dst, l.Layer)
		}
		if !l.HasImage() || l.Picker == nil {
			continue
		}
		dst = append(dst, Layer{Image: l.Picker, Page: GeometryFromRect(l.Rect)})
	}
	return dst
}

// Crop returns the top-left width x height region of img, rebased to the
// origin. The region is clipped to img's bounds.
func Crop(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	if width > b.Dx() {
		width = b.Dx()
	}
	if height > b.Dy() {
		height = b.Dy()
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Copy(dst, image.Point{}, img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Min.Y+height), draw.Src, nil)
	return dst
}

// SubImage copies the region r of img into a new origin-based image.
func SubImage(img image.Image, r image.Rectangle) *image.NRGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, r, draw.Src, nil)
	return dst
}

// LoadImage decodes a PNG from fs.
func LoadImage(fs afero.Fs, name string) (image.Image, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, errors.Decode(name, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Decode(name, err)
	}
	return img, nil
}

// WritePNG encodes img to name, truncating any existing file.
func WritePNG(fs afero.Fs, name string, img image.Image) error {
	f, err := fs.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return f.Close()
}
