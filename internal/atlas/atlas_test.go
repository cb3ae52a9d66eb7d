package atlas

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"respack/internal/imaging"
	"respack/internal/sprite"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	excludeDir = vpath.FromCanonical("/gfx/")
	outputDir  = vpath.FromCanonical("/data/gfx/ui/")
)

// makeDef writes n solid frames of w x h into the process directory and
// returns a definition padded by one pixel, like the layered path does.
func makeDef(t *testing.T, fs afero.Fs, name string, n, w, h int, c color.NRGBA) *sprite.Definition {
	t.Helper()
	base := vpath.FromCanonical("/gfx/$process/ui/" + name)
	def := &sprite.Definition{
		Filename:     vpath.FromCanonical(base.String() + ".txt"),
		SpriteWidth:  w,
		SpriteHeight: h,
	}
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, c)
			}
		}
		p := sprite.FramePath(base, i)
		require.NoError(t, imaging.WritePNG(fs, p.String(), img))
		def.Frames = append(def.Frames, sprite.Rect{X: i, Y: 2 * i, Dx: w + 1, Dy: h + 1})
		def.FramePaths = append(def.FramePaths, p)
	}
	return def
}

func TestShelfLayout(t *testing.T) {
	items := []item{
		{def: 0, frame: 0, w: 60, h: 20},
		{def: 0, frame: 1, w: 60, h: 40},
		{def: 1, frame: 0, w: 30, h: 40},
	}

	slots, pages, err := shelfLayout(items, 100)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	byKey := map[string]slot{}
	for _, s := range slots {
		byKey[fmt.Sprintf("%d/%d", s.def, s.frame)] = s
	}
	assert.Equal(t, [2]int{0, 0}, [2]int{byKey["0/1"].x, byKey["0/1"].y})
	assert.Equal(t, [2]int{60, 0}, [2]int{byKey["1/0"].x, byKey["1/0"].y})
	assert.Equal(t, [2]int{0, 40}, [2]int{byKey["0/0"].x, byKey["0/0"].y})
	assert.Equal(t, pageSize{w: 90, h: 60}, pages[0])
}

func TestShelfLayoutOverflowsToNewPage(t *testing.T) {
	items := []item{{w: 64, h: 64}, {frame: 1, w: 64, h: 64}, {frame: 2, w: 64, h: 64}}

	slots, pages, err := shelfLayout(items, 100)
	require.NoError(t, err)
	assert.Len(t, pages, 3)
	for i, s := range slots {
		assert.Equal(t, i, s.page)
		assert.Zero(t, s.x)
		assert.Zero(t, s.y)
	}
}

func TestShelfLayoutRejectsHugeFrame(t *testing.T) {
	_, _, err := shelfLayout([]item{{w: 101, h: 5}}, 100)
	assert.Error(t, err)
}

func TestTextureDims(t *testing.T) {
	w, h := textureDims(pageSize{w: 90, h: 33}, false)
	assert.Equal(t, [2]int{128, 64}, [2]int{w, h})

	w, h = textureDims(pageSize{w: 90, h: 33}, true)
	assert.Equal(t, [2]int{128, 128}, [2]int{w, h})

	w, h = textureDims(pageSize{w: 1, h: 1}, false)
	assert.Equal(t, [2]int{1, 1}, [2]int{w, h})
}

func TestPackCombined(t *testing.T) {
	fs := afero.NewMemMapFs()
	red := color.NRGBA{R: 255, A: 255}
	hero := makeDef(t, fs, "hero", 2, 64, 64, red)
	coin := makeDef(t, fs, "coin", 1, 16, 16, color.NRGBA{B: 255, A: 255})

	packer := NewShelfPacker(fs, nil)
	require.NoError(t, packer.PackCombined(excludeDir, outputDir, []*sprite.Definition{hero, coin}))

	page, err := imaging.LoadImage(fs, "/data/gfx/ui/texture0.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 128), page.Bounds())
	r, _, _, a := page.At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), a)

	desc, err := afero.ReadFile(fs, "/data/gfx/ui/hero.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(desc)), "\n")
	assert.Equal(t, []string{"1", "texture0", "64 64", "2", "0 0 65 65 0 0 0", "65 0 65 65 1 2 0"}, lines)

	coinDesc, err := afero.ReadFile(fs, "/data/gfx/ui/coin.txt")
	require.NoError(t, err)
	assert.Contains(t, string(coinDesc), "130 0 17 17 0 0 0")

	raw, err := afero.ReadFile(fs, "/data/gfx/ui/texture.json")
	require.NoError(t, err)
	var doc jsonAtlas
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Textures, 1)
	assert.Equal(t, "texture0.png", doc.Textures[0].Image)
	assert.Equal(t, "../data/gfx/ui/", doc.Meta.Source)
	assert.Len(t, doc.Textures[0].Frames, 3)

	f := doc.Textures[0].Frames["hero/1"]
	assert.Equal(t, jsonRect{X: 65, Y: 0, W: 65, H: 65}, f.Frame)
	assert.Equal(t, jsonRect{X: 1, Y: 2, W: 65, H: 65}, f.SpriteSourceSize)
	assert.Equal(t, jsonSize{W: 64, H: 64}, f.SourceSize)
}

func TestPackSeparate(t *testing.T) {
	fs := afero.NewMemMapFs()
	hero := makeDef(t, fs, "hero", 1, 8, 8, color.NRGBA{G: 255, A: 255})
	coin := makeDef(t, fs, "coin", 3, 4, 4, color.NRGBA{B: 255, A: 255})

	packer := NewShelfPacker(fs, nil)
	require.NoError(t, packer.PackSeparate(excludeDir, outputDir, []*sprite.Definition{hero, coin}))

	for _, name := range []string{"hero0.png", "hero.json", "hero.txt", "coin0.png", "coin.json", "coin.txt"} {
		exists, err := afero.Exists(fs, "/data/gfx/ui/"+name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	exists, _ := afero.Exists(fs, "/data/gfx/ui/texture0.png")
	assert.False(t, exists)

	desc, err := afero.ReadFile(fs, "/data/gfx/ui/coin.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(desc), "1\ncoin0\n4 4\n3\n"))
}

func TestPackSquarePages(t *testing.T) {
	fs := afero.NewMemMapFs()
	lm := makeDef(t, fs, "lightmap", 1, 100, 20, color.NRGBA{A: 255})

	packer := NewShelfPacker(fs, nil)
	packer.SquareOnly = true
	require.NoError(t, packer.PackCombined(excludeDir, outputDir, []*sprite.Definition{lm}))

	page, err := imaging.LoadImage(fs, "/data/gfx/ui/texture0.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 128, 128), page.Bounds())
}

func TestPackErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	packer := NewShelfPacker(fs, nil)

	assert.NoError(t, packer.PackCombined(excludeDir, outputDir, nil))

	broken := &sprite.Definition{
		Filename: vpath.FromCanonical("/gfx/$process/ui/broken.txt"),
		Frames:   []sprite.Rect{{Dx: 4, Dy: 4}},
	}
	assert.Error(t, packer.PackCombined(excludeDir, outputDir, []*sprite.Definition{broken}))

	missing := &sprite.Definition{
		Filename:   vpath.FromCanonical("/gfx/$process/ui/missing.txt"),
		Frames:     []sprite.Rect{{Dx: 4, Dy: 4}},
		FramePaths: []vpath.Path{vpath.FromCanonical("/gfx/$process/ui/missing0.png")},
	}
	assert.Error(t, packer.PackCombined(excludeDir, outputDir, []*sprite.Definition{missing}))

	packer.MaxTextureSize = 32
	big := makeDef(t, fs, "big", 1, 40, 10, color.NRGBA{A: 255})
	assert.Error(t, packer.PackCombined(excludeDir, outputDir, []*sprite.Definition{big}))

	assert.Panics(t, func() {
		packer.PackCombined(excludeDir, vpath.FromCanonical("/data/file"), []*sprite.Definition{big})
	})
}
