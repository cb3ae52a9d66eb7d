// Package service assembles a configured packer with its history and
// digest memo. The CLI and the daemon both go through it.
package service

import (
	"context"
	"fmt"
	"path/filepath"

	"respack/internal/config"
	"respack/internal/digest"
	"respack/internal/errors"
	"respack/internal/flags"
	"respack/internal/history"
	"respack/internal/logging"
	"respack/internal/packer"
	"respack/internal/vpath"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Service struct {
	Config   *config.Config
	Logger   *logging.Logger
	Resolver *vpath.Resolver
	FS       afero.Fs
	History  *history.Store // nil without a database

	memo    *digest.Memo
	verbose bool
}

type Option func(*Service)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Service) { s.FS = fs }
}

// WithVerbose makes the packer log every flag token it reads.
func WithVerbose(on bool) Option {
	return func(s *Service) { s.verbose = on }
}

// New wires a Service. db may be nil, in which case runs are not recorded
// and the digest memo is disabled.
func New(cfg *config.Config, logger *logging.Logger, db *badger.DB, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Service{
		Config:   cfg,
		Logger:   logger,
		Resolver: NewResolver(cfg),
		FS:       afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if db != nil {
		store, err := history.NewStore(db)
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		s.History = store

		if cfg.HashMemo {
			memo, err := digest.NewMemo(db, 0)
			if err != nil {
				return nil, fmt.Errorf("opening digest memo: %w", err)
			}
			s.memo = memo
		}
	}
	return s, nil
}

// NewResolver builds the path resolver described by cfg.
func NewResolver(cfg *config.Config) *vpath.Resolver {
	var opts []vpath.Option
	if cfg.ProjectRoot != "" {
		opts = append(opts, vpath.WithProjectRoot(cfg.ProjectRoot))
	}
	if cfg.FrameworkDir != "" {
		opts = append(opts, vpath.WithFrameworkPath(vpath.FrameworkLookup(cfg.FrameworkDir)))
	}
	if cfg.DocumentsDir != "" {
		opts = append(opts, vpath.WithDocumentsPath(vpath.DirectoryLookup(cfg.DocumentsDir)))
	}
	return vpath.NewResolver(opts...)
}

// OpenDB opens the badger state directory.
func OpenDB(cfg *config.Config) (*badger.DB, error) {
	dir, err := filepath.Abs(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening state directory %s: %w", dir, err)
	}
	return db, nil
}

// Dir resolves raw, which may carry a virtual root, into an on-disk
// directory path.
func (s *Service) Dir(raw string) (vpath.Path, error) {
	if raw == "" {
		return vpath.Path{}, errors.InvalidArgument("directory cannot be empty", nil)
	}
	resolved := s.Resolver.Resolve(s.Resolver.Dir(raw))
	if vpath.SchemeOf(vpath.FromCanonical(resolved)) != vpath.SchemeNone {
		return vpath.Path{}, errors.InvalidArgument("no root configured for virtual path", map[string]string{"path": raw})
	}
	return vpath.FromCanonical(resolved).MakeDirectory(), nil
}

// NewPacker returns a packer configured from the service config.
func (s *Service) NewPacker(observer packer.Observer) *packer.ResourcePacker {
	reg := flags.NewRegistry()
	reg.Verbose = s.verbose

	hashOpts := []digest.Option{}
	if s.memo != nil {
		hashOpts = append(hashOpts, digest.WithMemo(s.memo))
	}

	return packer.New(s.FS, s.Logger.Logger,
		packer.WithObserver(observer),
		packer.WithFlags(reg),
		packer.WithHasher(digest.NewHasher(s.FS, hashOpts...)),
		packer.WithOptions(packer.Options{
			MaxTextureSize:  s.Config.MaxTextureSize,
			Lightmaps:       s.Config.Lightmaps,
			ClearProcessDir: s.Config.ClearProcessDir,
			Guard:           packer.Guard(s.Config.Guard),
		}),
	)
}

// Pack runs one full pass over input and records it. run is nil when no
// history is attached.
func (s *Service) Pack(ctx context.Context, input, output vpath.Path, observer packer.Observer) (*packer.Report, *history.Run, error) {
	if observer == nil {
		observer = packer.NopObserver{}
	}
	p := s.NewPacker(observer)
	p.Init(input, output)

	report, err := p.PackResources(ctx)
	if s.History == nil {
		return report, nil, err
	}

	run, recErr := s.History.Record(report)
	if recErr != nil {
		s.Logger.Error("recording run", zap.Error(recErr))
		return report, nil, err
	}
	if s.Config.HistoryKeep > 0 {
		if _, pruneErr := s.History.Prune(s.Config.HistoryKeep); pruneErr != nil {
			s.Logger.Warn("pruning history", zap.Error(pruneErr))
		}
	}
	return report, run, err
}
