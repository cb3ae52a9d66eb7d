package sprite

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"respack/internal/errors"
	"respack/internal/imaging"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDecoder returns canned layers keyed by path.
type stubDecoder map[string][]imaging.Layer

func (s stubDecoder) DecodeLayers(_ afero.Fs, name string) ([]imaging.Layer, error) {
	layers, ok := s[name]
	if !ok {
		return nil, errors.Decode(name, fmt.Errorf("no such stub"))
	}
	return layers, nil
}

func layerAt(x, y, w, h int) imaging.Layer {
	r := image.Rect(x, y, x+w, y+h)
	return imaging.Layer{Image: image.NewNRGBA(r), Page: imaging.GeometryFromRect(r)}
}

func TestDecomposeThreeLayers(t *testing.T) {
	layers := []imaging.Layer{layerAt(0, 0, 64, 64), layerAt(3, 4, 64, 64), layerAt(-2, 7, 64, 64)}

	d, err := Decompose(layers, Options{Padding: 1})
	require.NoError(t, err)

	assert.Equal(t, 64, d.Width)
	assert.Equal(t, 64, d.Height)
	assert.Equal(t, []Rect{{X: 3, Y: 4, Dx: 65, Dy: 65}, {X: -2, Y: 7, Dx: 65, Dy: 65}}, d.Frames)
	assert.Len(t, d.Images, 2)
	assert.Empty(t, d.Clamped)
}

func TestDecomposeSingleLayerDuplicates(t *testing.T) {
	d, err := Decompose([]imaging.Layer{layerAt(0, 0, 32, 16)}, Options{Padding: 1})
	require.NoError(t, err)

	require.Len(t, d.Frames, 1)
	assert.Equal(t, Rect{Dx: 33, Dy: 17}, d.Frames[0])
}

func TestDecomposeNoLayers(t *testing.T) {
	_, err := Decompose(nil, Options{})
	assert.Error(t, err)
}

func TestDecomposeClampsOversizedFrames(t *testing.T) {
	layers := []imaging.Layer{layerAt(0, 0, 100, 80), layerAt(0, 0, 300, 40), layerAt(5, 5, 50, 50)}

	d, err := Decompose(layers, Options{Padding: 2, MaxFrameSize: 256})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, d.Clamped)
	assert.Equal(t, Rect{X: 0, Y: 0, Dx: 102, Dy: 82}, d.Frames[0])
	assert.Equal(t, Rect{X: 5, Y: 5, Dx: 52, Dy: 52}, d.Frames[1])
	assert.Equal(t, image.Rect(0, 0, 100, 40), d.Images[0].Bounds(), "crop never exceeds sprite size")
}

func TestDecomposeClampsAtExactLimit(t *testing.T) {
	layers := []imaging.Layer{layerAt(0, 0, 10, 10), layerAt(0, 0, 10, DefaultMaxFrameSize)}
	d, err := Decompose(layers, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, d.Clamped)
	assert.Equal(t, Rect{Dx: 10, Dy: 10}, d.Frames[0])
}

func TestFramePath(t *testing.T) {
	base := vpath.FromCanonical("/gfx/$process/ui/button")
	assert.Equal(t, "/gfx/$process/ui/button0.png", FramePath(base, 0).String())
	assert.Equal(t, "/gfx/$process/ui/button12.png", FramePath(base, 12).String())
}

var processDir = vpath.FromCanonical("/gfx/$process/ui/")

func TestLoaderFromLayered(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(processDir.String(), 0755))

	decoder := stubDecoder{
		"/gfx/ui/hero.psd": {layerAt(0, 0, 64, 64), layerAt(1, 2, 64, 64), layerAt(8, 9, 64, 64)},
	}
	loader := NewLoader(fs, decoder, nil)

	def, err := loader.FromLayered(processDir, vpath.FromCanonical("/gfx/ui/hero.psd"), Options{Padding: 1})
	require.NoError(t, err)

	assert.Equal(t, "/gfx/$process/ui/hero.txt", def.Filename.String())
	assert.Equal(t, 64, def.SpriteWidth)
	assert.Equal(t, 2, def.FrameCount())
	assert.Equal(t, []Rect{{X: 1, Y: 2, Dx: 65, Dy: 65}, {X: 8, Y: 9, Dx: 65, Dy: 65}}, def.Frames)

	for i, p := range def.FramePaths {
		assert.Equal(t, fmt.Sprintf("/gfx/$process/ui/hero%d.png", i), p.String())
		img, err := imaging.LoadImage(fs, p.String())
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
	}
}

func TestLoaderFromLayeredDecodeFailure(t *testing.T) {
	loader := NewLoader(afero.NewMemMapFs(), stubDecoder{}, nil)
	_, err := loader.FromLayered(processDir, vpath.FromCanonical("/gfx/ui/broken.psd"), Options{})
	assert.True(t, errors.Is(err, errors.ErrorTypeDecode))

	loader = NewLoader(afero.NewMemMapFs(), stubDecoder{"/gfx/ui/empty.psd": nil}, nil)
	_, err = loader.FromLayered(processDir, vpath.FromCanonical("/gfx/ui/empty.psd"), Options{})
	assert.True(t, errors.Is(err, errors.ErrorTypeDecode))
}

func writeStrip(t *testing.T, fs afero.Fs, name string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetNRGBA(x, 0, color.NRGBA{R: uint8(x), A: 255})
	}
	require.NoError(t, imaging.WritePNG(fs, name, img))
}

func TestLoaderFromPNG(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(processDir.String(), 0755))
	writeStrip(t, fs, "/gfx/ui/lightmap.png", 40, 20)

	def, err := NewLoader(fs, nil, nil).FromPNG(processDir, vpath.FromCanonical("/gfx/ui/lightmap.png"))
	require.NoError(t, err)

	assert.Equal(t, []Rect{{Dx: 40, Dy: 20}}, def.Frames)
	assert.Equal(t, "/gfx/$process/ui/lightmap0.png", def.FramePaths[0].String())
	exists, _ := afero.Exists(fs, def.FramePaths[0].String())
	assert.True(t, exists)
}

func TestLoaderFromPNGDef(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(processDir.String(), 0755))
	writeStrip(t, fs, "/gfx/ui/coin.png", 40, 10)
	require.NoError(t, afero.WriteFile(fs, "/gfx/ui/coin.pngdef", []byte("4\n"), 0644))

	def, err := NewLoader(fs, nil, nil).FromPNGDef(processDir, vpath.FromCanonical("/gfx/ui/coin.pngdef"), Options{Padding: 1})
	require.NoError(t, err)

	assert.Equal(t, 10, def.SpriteWidth)
	assert.Equal(t, 10, def.SpriteHeight)
	require.Equal(t, 4, def.FrameCount())
	assert.Equal(t, Rect{Dx: 11, Dy: 11}, def.Frames[3])

	third, err := imaging.LoadImage(fs, def.FramePaths[2].String())
	require.NoError(t, err)
	r, _, _, _ := third.At(0, 0).RGBA()
	assert.Equal(t, uint32(20*0x101), r, "frame 2 starts at source column 20")
}

func TestLoaderFromPNGDefErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeStrip(t, fs, "/gfx/ui/coin.png", 4, 4)
	loader := NewLoader(fs, nil, nil)

	for name, content := range map[string]string{
		"/gfx/ui/coin.pngdef": "zero",
		"/gfx/ui/x.pngdef":    "2",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
		_, err := loader.FromPNGDef(processDir, vpath.FromCanonical(name), Options{})
		assert.True(t, errors.Is(err, errors.ErrorTypeDecode), name)
	}

	require.NoError(t, afero.WriteFile(fs, "/gfx/ui/coin.pngdef", []byte("9"), 0644))
	_, err := loader.FromPNGDef(processDir, vpath.FromCanonical("/gfx/ui/coin.pngdef"), Options{})
	assert.True(t, errors.Is(err, errors.ErrorTypeDecode))
}

func TestParseFrameCount(t *testing.T) {
	n, err := parseFrameCount("  3 extra tokens")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"", "-1", "0", "abc"} {
		_, err := parseFrameCount(bad)
		assert.Error(t, err, bad)
	}
}
