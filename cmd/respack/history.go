package main

import (
	"fmt"

	"respack/client"
	"respack/internal/history"
	"respack/internal/service"

	"github.com/spf13/cobra"
)

// withHistory opens the state directory for the duration of fn.
func withHistory(fn func(*history.Store) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := service.OpenDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := history.NewStore(db)
	if err != nil {
		return err
	}
	return fn(store)
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded pack runs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store *history.Store) error {
				runs, err := store.List(limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show every directory of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store *history.Store) error {
				run, err := store.Get(args[0])
				if err != nil {
					return err
				}
				printRunDetail(cmd.OutOrStdout(), run)
				return nil
			})
		},
	}

	var keep int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(store *history.Store) error {
				removed, err := store.Prune(keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", removed)
				return nil
			})
		},
	}
	pruneCmd.Flags().IntVar(&keep, "keep", 10, "Number of runs to keep")

	historyCmd.AddCommand(listCmd, showCmd, pruneCmd)
	return historyCmd
}

func newStatusCmd() *cobra.Command {
	var server string
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask a running daemon for its health and latest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if server == "" {
				cfg, _, err := setup()
				if err != nil {
					return err
				}
				server = "http://" + cfg.Addr()
			}

			c := client.New(server)
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("daemon at %s: %w", server, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon at %s is healthy\n", server)

			runs, err := c.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Daemon base URL (default from config server.host and server.port)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of runs to show")
	return cmd
}
