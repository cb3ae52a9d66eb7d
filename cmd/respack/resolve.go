package main

import (
	"fmt"

	"respack/internal/service"
	"respack/internal/vpath"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var relativeTo string
	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Show how paths normalize and where virtual roots point",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			r := service.NewResolver(cfg)
			out := cmd.OutOrStdout()

			var base vpath.Path
			if relativeTo != "" {
				base = vpath.FromCanonical(r.Resolve(r.Dir(relativeTo))).MakeDirectory()
			}

			for _, raw := range args {
				p := r.New(raw)
				resolved := vpath.FromCanonical(r.Resolve(p))

				fmt.Fprintf(out, "%s\n", raw)
				fmt.Fprintf(out, "  canonical: %s\n", p)
				fmt.Fprintf(out, "  resolved:  %s\n", resolved)
				if virtual, ok := r.FrameworkPath(resolved); ok {
					fmt.Fprintf(out, "  virtual:   %s\n", virtual)
				}
				if !base.IsEmpty() {
					rel, err := resolved.RelativeTo(base)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  relative:  %s\n", rel)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&relativeTo, "relative-to", "", "Also print each path relative to this directory")
	return cmd
}
