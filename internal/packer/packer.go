// Package packer walks a source graphics tree and rebuilds texture atlases
// for the directories whose contents changed since the last run.
package packer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"respack/internal/atlas"
	"respack/internal/change"
	"respack/internal/digest"
	"respack/internal/flags"
	"respack/internal/imaging"
	"respack/internal/sprite"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProcessDirName mirrors the source tree and holds every cache artifact.
const ProcessDirName = "$process"

// Guard selects which tree the top-level digest covers.
type Guard string

const (
	GuardInput  Guard = "input"
	GuardOutput Guard = "output"
)

// Options configure a ResourcePacker.
type Options struct {
	MaxTextureSize  int
	Lightmaps       bool
	ClearProcessDir bool
	Guard           Guard
}

// ResourcePacker rebuilds atlases for a graphics tree. It is not safe for
// concurrent use; one walk runs at a time.
type ResourcePacker struct {
	fs       afero.Fs
	logger   *zap.Logger
	tracker  *change.Tracker
	loader   *sprite.Loader
	atlas    atlas.Packer
	flags    *flags.Registry
	observer Observer
	tracer   trace.Tracer
	opts     Options

	hasher  *digest.Hasher
	decoder imaging.LayeredDecoder

	inputPath  vpath.Path
	outputPath vpath.Path
	excludeDir vpath.Path
	gfxDirName string
	force      bool
	state      State
	report     *Report
}

type Option func(*ResourcePacker)

func WithObserver(o Observer) Option {
	return func(p *ResourcePacker) { p.observer = o }
}

// WithAtlasPacker replaces the default ShelfPacker.
func WithAtlasPacker(a atlas.Packer) Option {
	return func(p *ResourcePacker) { p.atlas = a }
}

func WithDecoder(d imaging.LayeredDecoder) Option {
	return func(p *ResourcePacker) { p.decoder = d }
}

func WithHasher(h *digest.Hasher) Option {
	return func(p *ResourcePacker) { p.hasher = h }
}

func WithFlags(r *flags.Registry) Option {
	return func(p *ResourcePacker) { p.flags = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *ResourcePacker) { p.tracer = t }
}

func WithOptions(o Options) Option {
	return func(p *ResourcePacker) { p.opts = o }
}

// New creates a packer over fs.
func New(fs afero.Fs, logger *zap.Logger, opts ...Option) *ResourcePacker {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ResourcePacker{
		fs:       fs,
		logger:   logger,
		observer: NopObserver{},
		opts:     Options{MaxTextureSize: atlas.DefaultTextureSize, Guard: GuardInput},
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.opts.MaxTextureSize <= 0 {
		p.opts.MaxTextureSize = atlas.DefaultTextureSize
	}
	if p.opts.Guard == "" {
		p.opts.Guard = GuardInput
	}
	if p.hasher == nil {
		p.hasher = digest.NewHasher(fs)
	}
	if p.decoder == nil {
		p.decoder = imaging.PSDDecoder{}
	}
	if p.flags == nil {
		p.flags = flags.NewRegistry()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("respack/packer")
	}
	if p.atlas == nil {
		shelf := atlas.NewShelfPacker(fs, logger)
		shelf.MaxTextureSize = p.opts.MaxTextureSize
		if p.opts.Lightmaps {
			shelf.SquareOnly = true
			shelf.MaxTextureSize = atlas.DefaultTextureSize
		}
		p.atlas = shelf
	}

	p.tracker = change.NewTracker(fs, p.hasher, logger)
	p.loader = sprite.NewLoader(fs, p.decoder, logger)
	return p
}

// Init sets the input and output roots. Both must be directory paths.
func (p *ResourcePacker) Init(input, output vpath.Path) {
	if !input.IsDirectory() || !output.IsDirectory() {
		panic(fmt.Sprintf("packer: Init requires directory paths, got %q and %q", input, output))
	}
	p.inputPath = input
	p.outputPath = output
	p.excludeDir = input.Join("../")
}

// ExcludeDir is the parent of the input root; $process/ lives under it.
func (p *ResourcePacker) ExcludeDir() vpath.Path { return p.excludeDir }

// State returns the state of the directory currently being processed.
func (p *ResourcePacker) State() State { return p.state }

// PackResources runs the top-level guard and then walks the whole tree.
// The returned error is non-nil only when ctx was canceled.
func (p *ResourcePacker) PackResources(ctx context.Context) (*Report, error) {
	if p.inputPath.IsEmpty() {
		panic("packer: PackResources called before Init")
	}

	ctx, span := p.tracer.Start(ctx, "packer.PackResources", trace.WithAttributes(
		attribute.String("input", p.inputPath.String()),
		attribute.String("output", p.outputPath.String()),
	))
	defer span.End()

	p.logger.Debug("packing resources",
		zap.String("input", p.inputPath.String()),
		zap.String("output", p.outputPath.String()),
		zap.String("exclude", p.excludeDir.String()),
	)

	p.force = false
	p.report = &Report{
		Input:     p.inputPath.String(),
		Output:    p.outputPath.String(),
		StartedAt: time.Now(),
	}
	p.gfxDirName = strings.ToLower(p.inputPath.LastDirectoryName())

	processDir := p.excludeDir.Join(ProcessDirName + "/")
	if err := p.fs.MkdirAll(processDir.String(), 0755); err != nil {
		p.logger.Error("creating process directory", zap.String("path", processDir.String()), zap.Error(err))
	}

	guarded := p.guardTarget()
	if p.tracker.DigestChangedDir(processDir, guarded, p.gfxDirName+".md5", true) == change.Changed {
		p.logger.Info("gfx not available or changed, performing full repack", zap.String("guard", string(p.opts.Guard)))
		p.force = true

		if err := p.fs.RemoveAll(p.outputPath.String()); err != nil {
			p.logger.Error("removing output directory", zap.String("path", p.outputPath.String()), zap.Error(err))
		} else {
			p.logger.Debug("removed output directory", zap.String("path", p.outputPath.String()))
		}
	}
	p.report.FullRepack = p.force
	span.SetAttributes(attribute.Bool("full_repack", p.force))
	p.observer.OnStart(p.inputPath, p.outputPath, p.force)

	err := p.RecursiveWalk(ctx, p.inputPath, p.outputPath)

	// Re-store so the next run compares against the tree this run produced.
	p.tracker.StoreDigest(processDir, p.guardTarget(), p.gfxDirName+".md5", true)

	p.report.FinishedAt = time.Now()
	if err != nil {
		p.report.Canceled = true
		span.RecordError(err)
	}
	p.observer.OnFinish(p.report)
	return p.report, err
}

func (p *ResourcePacker) guardTarget() vpath.Path {
	if p.opts.Guard == GuardOutput {
		return p.outputPath
	}
	return p.inputPath
}

// ProcessFlags loads the whitespace separated flags in flagsPath into the
// registry. Malformed tokens are logged and kept.
func (p *ResourcePacker) ProcessFlags(flagsPath vpath.Path) {
	data, err := afero.ReadFile(p.fs, flagsPath.String())
	if err != nil {
		p.logger.Error("failed to open flags file", zap.String("path", flagsPath.String()), zap.Error(err))
		return
	}

	tokens, malformed := flags.ParseTokens(string(data))
	if p.flags.Verbose {
		for _, tok := range tokens {
			p.logger.Debug("flag token", zap.String("token", tok))
		}
	}
	for _, tok := range malformed {
		p.logger.Warn("incorrect flag", zap.String("flag", tok), zap.String("path", flagsPath.String()))
	}
	p.flags.SetFlags(tokens)
}

func (p *ResourcePacker) setState(dir vpath.Path, s State) {
	p.state = s
	p.observer.OnState(dir, s)
}
