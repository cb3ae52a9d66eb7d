package main

import (
	"context"
	"fmt"

	"respack/internal/config"
	"respack/internal/logging"
	"respack/internal/service"
	"respack/internal/telemetry"
	"respack/internal/vpath"
	"respack/internal/watch"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// packFlags override config values when set on the command line.
type packFlags struct {
	extended        bool
	noHistory       bool
	lightmaps       bool
	clearProcessDir bool
	guard           string
	maxTextureSize  int
}

func (f *packFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.extended, "extended", "e", false, "Print definitions and flags for each packed directory")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not open the state directory or record the run")
	cmd.Flags().BoolVar(&f.lightmaps, "lightmaps", false, "Pack every .png as its own square lightmap sprite")
	cmd.Flags().BoolVar(&f.clearProcessDir, "clear-process-dir", false, "Delete cached frames before each directory is checked")
	cmd.Flags().StringVar(&f.guard, "guard", "input", "Tree covered by the top-level digest (input, output)")
	cmd.Flags().IntVar(&f.maxTextureSize, "max-texture-size", 2048, "Largest atlas page and frame size in pixels")
}

func (f *packFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("lightmaps") {
		cfg.Lightmaps = f.lightmaps
	}
	if cmd.Flags().Changed("clear-process-dir") {
		cfg.ClearProcessDir = f.clearProcessDir
	}
	if cmd.Flags().Changed("guard") {
		cfg.Guard = f.guard
	}
	if cmd.Flags().Changed("max-texture-size") {
		cfg.MaxTextureSize = f.maxTextureSize
	}
	return cfg.Validate()
}

// packEnv is everything a pack or watch command holds open.
type packEnv struct {
	svc    *service.Service
	logger *logging.Logger
	input  vpath.Path
	output vpath.Path
	close  func()
}

func openPackEnv(ctx context.Context, cmd *cobra.Command, f *packFlags, input, output string) (*packEnv, error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, err
	}

	closers := []func(){func() { logger.Sync() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	shutdown, err := telemetry.Setup(ctx, "respack")
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		closers = append(closers, func() { shutdown(context.Background()) })
	}

	var db *badger.DB
	if !f.noHistory {
		db, err = service.OpenDB(cfg)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { db.Close() })
	}

	svc, err := service.New(cfg, logger, db, service.WithVerbose(verbose))
	if err != nil {
		closeAll()
		return nil, err
	}

	in, err := svc.Dir(input)
	if err != nil {
		closeAll()
		return nil, err
	}
	out, err := svc.Dir(output)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &packEnv{svc: svc, logger: logger, input: in, output: out, close: closeAll}, nil
}

func newPackCmd() *cobra.Command {
	var f packFlags
	cmd := &cobra.Command{
		Use:   "pack <input-dir> <output-dir>",
		Short: "Repack every changed directory once",
		Long: `Pack walks input-dir and rebuilds the atlases of every directory whose
files changed since the last run. Directories may use ~res:/ and ~doc:/ roots.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			env, err := openPackEnv(ctx, cmd, &f, args[0], args[1])
			if err != nil {
				return err
			}
			defer env.close()

			report, run, err := env.svc.Pack(ctx, env.input, env.output, newConsoleObserver(cmd.OutOrStdout(), f.extended))
			if err != nil {
				return fmt.Errorf("pack interrupted: %w", err)
			}
			if run != nil {
				env.logger.Debug("run recorded", zap.String("id", run.ID))
			}
			if n := failedDirs(report); n > 0 {
				return fmt.Errorf("%d directories failed to pack", n)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	var f packFlags
	cmd := &cobra.Command{
		Use:   "watch <input-dir> <output-dir>",
		Short: "Pack once, then repack whenever input-dir changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			env, err := openPackEnv(ctx, cmd, &f, args[0], args[1])
			if err != nil {
				return err
			}
			defer env.close()

			obs := newConsoleObserver(cmd.OutOrStdout(), f.extended)
			w, err := watch.New(env.input.String(), func(ctx context.Context) error {
				_, _, err := env.svc.Pack(ctx, env.input, env.output, obs)
				return err
			}, env.logger.Logger,
				watch.WithDebounce(env.svc.Config.Watch.Debounce.Duration),
				watch.WithRunOnStart(true),
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", env.input)
			return w.Run(ctx)
		},
	}
	f.register(cmd)
	return cmd
}
