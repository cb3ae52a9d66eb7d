package atlas

import (
	"fmt"
	"image"

	"respack/internal/imaging"
	"respack/internal/sprite"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// DefaultTextureSize is the largest page edge.
const DefaultTextureSize = 2048

// combinedName prefixes pages shared by every sprite of a directory.
const combinedName = "texture"

// Packer places a directory's sprites into textures under outputDir.
type Packer interface {
	// PackCombined puts every frame of every definition into one set of pages.
	PackCombined(excludeDir, outputDir vpath.Path, defs []*sprite.Definition) error
	// PackSeparate gives each definition its own pages.
	PackSeparate(excludeDir, outputDir vpath.Path, defs []*sprite.Definition) error
}

// ShelfPacker is a Packer using shelf layout.
type ShelfPacker struct {
	fs     afero.Fs
	logger *zap.Logger

	// MaxTextureSize caps page width and height.
	MaxTextureSize int
	// SquareOnly forces square pages (lightmaps).
	SquareOnly bool
}

func NewShelfPacker(fs afero.Fs, logger *zap.Logger) *ShelfPacker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShelfPacker{fs: fs, logger: logger, MaxTextureSize: DefaultTextureSize}
}

func (p *ShelfPacker) PackCombined(excludeDir, outputDir vpath.Path, defs []*sprite.Definition) error {
	if len(defs) == 0 {
		return nil
	}
	return p.pack(excludeDir, outputDir, combinedName, defs)
}

func (p *ShelfPacker) PackSeparate(excludeDir, outputDir vpath.Path, defs []*sprite.Definition) error {
	for _, def := range defs {
		if err := p.pack(excludeDir, outputDir, def.Filename.Basename(), []*sprite.Definition{def}); err != nil {
			return err
		}
	}
	return nil
}

// pack lays out defs, renders pages named <name><i>.png, and writes one
// descriptor per definition plus <name>.json.
func (p *ShelfPacker) pack(excludeDir, outputDir vpath.Path, name string, defs []*sprite.Definition) error {
	if !outputDir.IsDirectory() {
		panic(fmt.Sprintf("atlas: output %q is not a directory path", outputDir))
	}

	source, err := outputDir.RelativeTo(excludeDir)
	if err != nil {
		return fmt.Errorf("locating output: %w", err)
	}

	var items []item
	for d, def := range defs {
		if len(def.FramePaths) != len(def.Frames) {
			return fmt.Errorf("sprite %s has %d frames but %d frame images", def.Filename, len(def.Frames), len(def.FramePaths))
		}
		for f, r := range def.Frames {
			items = append(items, item{def: d, frame: f, w: r.Dx, h: r.Dy})
		}
	}

	limit := p.MaxTextureSize
	if limit <= 0 {
		limit = DefaultTextureSize
	}
	slots, used, err := shelfLayout(items, limit)
	if err != nil {
		return err
	}

	pages := make([]*image.NRGBA, len(used))
	textures := make([]string, len(used))
	jsonPages := make([]jsonTexturePage, len(used))
	for i, u := range used {
		w, h := textureDims(u, p.SquareOnly)
		pages[i] = image.NewNRGBA(image.Rect(0, 0, w, h))
		textures[i] = fmt.Sprintf("%s%d", name, i)
		jsonPages[i] = jsonTexturePage{
			Image:  textures[i] + ".png",
			Size:   jsonSize{W: w, H: h},
			Frames: make(map[string]jsonFrame),
		}
	}

	placed := make([][]placedFrame, len(defs))
	for d, def := range defs {
		placed[d] = make([]placedFrame, len(def.Frames))
	}

	for _, s := range slots {
		def := defs[s.def]
		r := def.Frames[s.frame]

		img, err := imaging.LoadImage(p.fs, def.FramePaths[s.frame].String())
		if err != nil {
			return err
		}
		dst := image.Rect(s.x, s.y, s.x+s.w, s.y+s.h)
		draw.Draw(pages[s.page], dst, img, img.Bounds().Min, draw.Src)

		placed[s.def][s.frame] = placedFrame{Texture: s.page, X: s.x, Y: s.y, Rect: r}
		jsonPages[s.page].Frames[frameName(def, s.frame)] = jsonFrame{
			Frame:            jsonRect{X: s.x, Y: s.y, W: r.Dx, H: r.Dy},
			Trimmed:          r.Dx != def.SpriteWidth || r.Dy != def.SpriteHeight,
			SpriteSourceSize: jsonRect{X: r.X, Y: r.Y, W: r.Dx, H: r.Dy},
			SourceSize:       jsonSize{W: def.SpriteWidth, H: def.SpriteHeight},
		}
	}

	for i, page := range pages {
		if err := imaging.WritePNG(p.fs, outputDir.Join(textures[i]+".png").String(), page); err != nil {
			return err
		}
	}

	for d, def := range defs {
		out := outputDir.Join(def.Filename.Filename()).String()
		if err := afero.WriteFile(p.fs, out, writeDescriptor(textures, def, placed[d]), 0644); err != nil {
			return fmt.Errorf("writing descriptor %s: %w", out, err)
		}
	}

	data, err := buildJSON(source, jsonPages)
	if err != nil {
		return fmt.Errorf("encoding atlas: %w", err)
	}
	if err := afero.WriteFile(p.fs, outputDir.Join(name+".json").String(), data, 0644); err != nil {
		return fmt.Errorf("writing atlas: %w", err)
	}

	p.logger.Debug("packed atlas",
		zap.String("output", outputDir.String()),
		zap.String("name", name),
		zap.Int("sprites", len(defs)),
		zap.Int("frames", len(items)),
		zap.Int("pages", len(pages)),
	)
	return nil
}
