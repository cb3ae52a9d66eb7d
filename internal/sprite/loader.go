package sprite

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"respack/internal/errors"
	"respack/internal/imaging"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Loader builds Definitions from source files, writing frame PNGs into the
// process directory.
type Loader struct {
	fs      afero.Fs
	decoder imaging.LayeredDecoder
	logger  *zap.Logger
}

func NewLoader(fs afero.Fs, decoder imaging.LayeredDecoder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{fs: fs, decoder: decoder, logger: logger}
}

// FromLayered decodes a layered source and writes one PNG per frame.
func (l *Loader) FromLayered(processDir, source vpath.Path, opts Options) (*Definition, error) {
	layers, err := l.decoder.DecodeLayers(l.fs, source.String())
	if err != nil {
		return nil, err
	}

	d, err := Decompose(layers, opts)
	if err != nil {
		return nil, errors.Decode(source.String(), err)
	}

	for _, k := range d.Clamped {
		r := d.Frames[k]
		l.logger.Warn("frame is bigger than max texture size, reduced to sprite size; results not guaranteed",
			zap.String("path", source.String()),
			zap.Int("layer", k),
			zap.Int("max_texture_size", opts.MaxFrameSize),
			zap.Int("width", r.Dx-opts.Padding),
			zap.Int("height", r.Dy-opts.Padding),
		)
	}

	base := processDir.Join(source.Basename())
	def := &Definition{
		Filename:     descriptorPath(base),
		SpriteWidth:  d.Width,
		SpriteHeight: d.Height,
		Frames:       d.Frames,
	}
	for i, img := range d.Images {
		framePath := FramePath(base, i)
		if err := imaging.WritePNG(l.fs, framePath.String(), img); err != nil {
			return nil, err
		}
		def.FramePaths = append(def.FramePaths, framePath)
	}
	return def, nil
}

// FromPNG wraps a plain PNG as a single-frame sprite. The image is copied to
// the process directory unchanged.
func (l *Loader) FromPNG(processDir, source vpath.Path) (*Definition, error) {
	img, err := imaging.LoadImage(l.fs, source.String())
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	base := processDir.Join(source.Basename())
	framePath := FramePath(base, 0)
	if err := imaging.WritePNG(l.fs, framePath.String(), img); err != nil {
		return nil, err
	}

	return &Definition{
		Filename:     descriptorPath(base),
		SpriteWidth:  b.Dx(),
		SpriteHeight: b.Dy(),
		Frames:       []Rect{{Dx: b.Dx(), Dy: b.Dy()}},
		FramePaths:   []vpath.Path{framePath},
	}, nil
}

// FromPNGDef reads a .pngdef whose first token is a frame count and splits
// the sibling .png into that many equal-width frames.
func (l *Loader) FromPNGDef(processDir, source vpath.Path, opts Options) (*Definition, error) {
	data, err := afero.ReadFile(l.fs, source.String())
	if err != nil {
		return nil, errors.Decode(source.String(), err)
	}

	count, err := parseFrameCount(string(data))
	if err != nil {
		return nil, errors.Decode(source.String(), err)
	}

	img, err := imaging.LoadImage(l.fs, source.ReplaceExtension(".png").String())
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	frameWidth := b.Dx() / count
	if frameWidth == 0 {
		return nil, errors.Decode(source.String(), fmt.Errorf("%d frames do not fit in width %d", count, b.Dx()))
	}

	base := processDir.Join(source.Basename())
	def := &Definition{
		Filename:     descriptorPath(base),
		SpriteWidth:  frameWidth,
		SpriteHeight: b.Dy(),
	}
	for i := 0; i < count; i++ {
		x := b.Min.X + i*frameWidth
		frame := imaging.SubImage(img, image.Rect(x, b.Min.Y, x+frameWidth, b.Max.Y))

		framePath := FramePath(base, i)
		if err := imaging.WritePNG(l.fs, framePath.String(), frame); err != nil {
			return nil, err
		}
		def.Frames = append(def.Frames, Rect{Dx: frameWidth + opts.Padding, Dy: b.Dy() + opts.Padding})
		def.FramePaths = append(def.FramePaths, framePath)
	}
	return def, nil
}

func parseFrameCount(content string) (int, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing frame count")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parsing frame count: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("frame count must be positive, got %d", n)
	}
	return n, nil
}

// descriptorPath appends .txt to an extensionless process path. Basenames
// may contain dots, so ReplaceExtension cannot be used here.
func descriptorPath(base vpath.Path) vpath.Path {
	return vpath.FromCanonical(base.String() + ".txt")
}
