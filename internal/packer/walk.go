package packer

import (
	"context"
	"os"
	"strings"
	"time"

	"respack/internal/change"
	"respack/internal/flags"
	"respack/internal/sprite"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RecursiveWalk packs inputDir into outputDir and then descends into its
// subdirectories. Failures stay inside the directory they happen in; only
// context cancellation is returned.
func (p *ResourcePacker) RecursiveWalk(ctx context.Context, inputDir, outputDir vpath.Path) error {
	if !inputDir.IsDirectory() || !outputDir.IsDirectory() {
		panic("packer: RecursiveWalk requires directory paths, got " + inputDir.String() + " and " + outputDir.String())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "packer.RecursiveWalk", trace.WithAttributes(
		attribute.String("input", inputDir.String()),
	))
	defer span.End()

	started := time.Now()
	p.setState(inputDir, StateIdle)

	processDir := p.processDirFor(inputDir)
	if err := p.fs.MkdirAll(processDir.String(), 0755); err != nil {
		p.logger.Error("creating process directory", zap.String("path", processDir.String()), zap.Error(err))
	}
	if p.opts.ClearProcessDir {
		p.deleteDirectoryFiles(processDir)
	}
	if err := p.fs.MkdirAll(outputDir.String(), 0755); err != nil {
		p.logger.Error("creating output directory", zap.String("path", outputDir.String()), zap.Error(err))
	}

	entries, err := afero.ReadDir(p.fs, inputDir.String())
	if err != nil {
		p.logger.Error("listing input directory", zap.String("path", inputDir.String()), zap.Error(err))
	}

	p.setState(inputDir, StateScanningFlags)
	p.flags.Clear()
	for _, entry := range entries {
		if !entry.IsDir() && entry.Name() == flags.Filename {
			p.ProcessFlags(inputDir.Join(flags.Filename))
			break
		}
	}

	p.setState(inputDir, StateDetectingChange)
	modified := p.force
	if p.tracker.DirChanged(processDir, inputDir) == change.Changed {
		modified = true
	}

	result := DirResult{
		Input:  inputDir.String(),
		Output: outputDir.String(),
		Status: StatusUnchanged,
		Flags:  p.flags.String(),
	}

	if modified {
		p.setState(inputDir, StateRepacking)
		result.Status = StatusRepacked
		if err := p.repack(ctx, entries, inputDir, outputDir, processDir, &result); err != nil {
			return err
		}
	} else {
		p.setState(inputDir, StateUnchanged)
	}

	result.Duration = time.Since(started)
	span.SetAttributes(attribute.String("status", string(result.Status)), attribute.Int("definitions", result.Definitions))
	p.report.Dirs = append(p.report.Dirs, result)
	p.observer.OnDirDone(result)

	p.flags.Clear()
	p.setState(inputDir, StateRecursingChildren)
	for _, entry := range entries {
		if !entry.IsDir() || skipDir(entry.Name()) {
			continue
		}
		childIn := inputDir.Join(entry.Name() + "/")
		childOut := outputDir.Join(entry.Name() + "/")
		if err := p.RecursiveWalk(ctx, childIn, childOut); err != nil {
			return err
		}
	}

	p.setState(inputDir, StateDone)
	return nil
}

// repack rebuilds outputDir from the files in inputDir. A file that fails to
// load marks the directory failed and stops packing it.
func (p *ResourcePacker) repack(ctx context.Context, entries []os.FileInfo, inputDir, outputDir, processDir vpath.Path, result *DirResult) error {
	p.deleteDirectoryFiles(outputDir)

	opts := sprite.Options{Padding: flags.Padding(p.flags), MaxFrameSize: p.opts.MaxTextureSize}
	var defs []*sprite.Definition

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}

		source := inputDir.Join(entry.Name())
		switch {
		case source.EqualsExtension(".psd"):
			def, err := p.loader.FromLayered(processDir, source, opts)
			if err != nil {
				p.logger.Error("processing layered image, skipping directory",
					zap.String("path", source.String()), zap.Error(err))
				result.Status = StatusFailed
				result.Error = err.Error()
				result.Definitions = len(defs)
				return nil
			}
			defs = append(defs, def)

		case p.opts.Lightmaps && source.EqualsExtension(".png"):
			def, err := p.loader.FromPNG(processDir, source)
			if err != nil {
				p.logger.Warn("loading png", zap.String("path", source.String()), zap.Error(err))
				continue
			}
			defs = append(defs, def)

		case source.EqualsExtension(".pngdef"):
			def, err := p.loader.FromPNGDef(processDir, source, opts)
			if err != nil {
				p.logger.Warn("loading pngdef", zap.String("path", source.String()), zap.Error(err))
				continue
			}
			defs = append(defs, def)
		}
	}

	result.Definitions = len(defs)
	if len(defs) == 0 {
		return nil
	}

	var err error
	if p.flags.IsSet(flags.Split) {
		err = p.atlas.PackSeparate(p.excludeDir, outputDir, defs)
	} else {
		err = p.atlas.PackCombined(p.excludeDir, outputDir, defs)
	}
	if err != nil {
		p.logger.Error("packing textures", zap.String("output", outputDir.String()), zap.Error(err))
		result.Status = StatusFailed
		result.Error = err.Error()
	}
	return nil
}

// processDirFor mirrors inputDir under <exclude>/$process/.
func (p *ResourcePacker) processDirFor(inputDir vpath.Path) vpath.Path {
	rel, err := inputDir.RelativeTo(p.excludeDir)
	if err != nil {
		panic("packer: " + err.Error())
	}
	return p.excludeDir.Join(ProcessDirName + "/" + rel)
}

// deleteDirectoryFiles removes the regular files directly inside dir.
func (p *ResourcePacker) deleteDirectoryFiles(dir vpath.Path) {
	entries, err := afero.ReadDir(p.fs, dir.String())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := dir.Join(entry.Name()).String()
		if err := p.fs.Remove(name); err != nil {
			p.logger.Warn("removing file", zap.String("path", name), zap.Error(err))
		}
	}
}

func skipDir(name string) bool {
	return name == ProcessDirName || name == ".svn" || strings.HasPrefix(name, ".")
}
