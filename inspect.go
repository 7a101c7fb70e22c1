package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"novelshelf/framework"
	"novelshelf/framework/engine"
	"novelshelf/internal/config"
)

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the navigation table",
		RunE: func(cmd *cobra.Command, args []string) error {
			routeEngine, err := newEngine(config.Load(), nil, nil)
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), routeEngine)
		},
	}
}

func printRoutes(out io.Writer, routeEngine *engine.Engine) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tNAME\tKIND\tTARGET")
	for _, summary := range routeEngine.Router().Routes() {
		name := summary.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n",
			strings.Repeat("  ", summary.Depth), summary.Pattern, name, summary.Kind, summary.Redirect)
	}
	return tw.Flush()
}

func resolveCmd() *cobra.Command {
	var guarded bool

	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Resolve paths against the navigation table",
		Long: `Resolve each path the way a navigation would: follow redirects, run guards
and load the view chain.

Examples:
  novelshelf resolve /dashboard /novel/abc123
  novelshelf resolve --guard /tasks`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cfg.AuthGuard = cfg.AuthGuard || guarded
			routeEngine, err := newEngine(cfg, nil, nil)
			if err != nil {
				return err
			}
			return resolvePaths(cmd.Context(), cmd.OutOrStdout(), routeEngine, args)
		},
	}

	cmd.Flags().BoolVar(&guarded, "guard", false, "Install the auth guard for an anonymous reader")

	return cmd
}

func resolvePaths(ctx context.Context, out io.Writer, routeEngine *engine.Engine, paths []string) error {
	for _, target := range paths {
		nav, err := routeEngine.Resolve(ctx, framework.Location{}, target)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", target, err)
		}

		fmt.Fprintf(out, "%s\n", target)
		for _, hop := range nav.Redirects {
			fmt.Fprintf(out, "  redirect  %s\n", hop)
		}
		fmt.Fprintf(out, "  view      %s (%s)\n", nav.To.Name, nav.To.FullPath)
		if line := formatPairs(nav.To.Params); line != "" {
			fmt.Fprintf(out, "  params    %s\n", line)
		}
		if line := formatPairs(nav.Props); line != "" {
			fmt.Fprintf(out, "  props     %s\n", line)
		}
	}
	return nil
}

func formatPairs(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values[key])
	}
	return strings.Join(pairs, " ")
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return
			}

			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", commit)
			fmt.Fprintf(out, "Built:      %s\n", date)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
