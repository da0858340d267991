package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/irusland/pyroto/core/build"
	"github.com/irusland/pyroto/core/formatter"
	"github.com/spf13/cobra"
)

var (
	inspectFormat   string
	inspectColumns  []string
	inspectNoHeader bool
	inspectLimit    int
)

var inspectCmd = &cobra.Command{
	Use:               "inspect",
	PersistentPreRunE: applyFormatEnv,
	Short: "Show the symbol table, module summaries or build history",
	Long: `Inspect what pyroto knows about the schema tree.

Examples:
  pyroto inspect symbols
  pyroto inspect modules --format json
  pyroto inspect modules client.echo
  pyroto inspect runs --limit 5 --format yaml`,
}

var inspectSymbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Print every registered symbol and its owning module",
	RunE:  runInspectSymbols,
}

var inspectModulesCmd = &cobra.Command{
	Use:   "modules [module]",
	Short: "Print the modules a build generates, without writing them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspectModules,
}

var inspectRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Print recorded builds, newest first",
	RunE:  runInspectRuns,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectSymbolsCmd, inspectModulesCmd, inspectRunsCmd)

	inspectCmd.PersistentFlags().StringVarP(&inspectFormat, "format", "o", "",
		"output format ("+strings.Join(formatter.List(), ", ")+"); defaults to $PYROTO_FORMAT or table")
	inspectCmd.PersistentFlags().StringSliceVar(&inspectColumns, "columns", nil, "columns to show")
	inspectCmd.PersistentFlags().BoolVar(&inspectNoHeader, "no-header", false, "omit the table header")
	inspectRunsCmd.Flags().IntVar(&inspectLimit, "limit", 20, "number of runs")
}

// applyFormatEnv makes PYROTO_FORMAT the default output format.
func applyFormatEnv(cmd *cobra.Command, args []string) error {
	name := os.Getenv("PYROTO_FORMAT")
	if name == "" {
		return nil
	}
	if err := formatter.SetDefault(name); err != nil {
		return fmt.Errorf("PYROTO_FORMAT: %w", err)
	}
	return nil
}

func inspectFormatter() (formatter.Formatter, formatter.FormatOptions, error) {
	opts := formatter.FormatOptions{Columns: inspectColumns, NoHeader: inspectNoHeader}
	if inspectFormat == "" {
		return formatter.Default(), opts, nil
	}
	f, ok := formatter.Get(inspectFormat)
	if !ok {
		return nil, formatter.FormatOptions{}, fmt.Errorf("unknown format %q (available: %s)",
			inspectFormat, strings.Join(formatter.List(), ", "))
	}
	return f, opts, nil
}

func runInspectSymbols(cmd *cobra.Command, args []string) error {
	f, opts, err := inspectFormatter()
	if err != nil {
		return err
	}
	app, err := newApp(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	plan, err := app.Pipeline.Plan()
	if err != nil {
		return err
	}

	symbols := build.Symbols(plan.Table)
	rows := make([]map[string]any, len(symbols))
	for i, s := range symbols {
		rows[i] = s.Row()
	}
	listing := formatter.Listing{Kind: "symbols", Columns: []string{"symbol", "kind", "module", "name"}}
	if err := f.FormatList(cmd.OutOrStdout(), listing, rows, opts); err != nil {
		return err
	}

	if len(plan.Failed) > 0 {
		modules := make([]string, 0, len(plan.Failed))
		for m := range plan.Failed {
			modules = append(modules, m)
		}
		sort.Strings(modules)
		for _, m := range modules {
			f.FormatError(cmd.ErrOrStderr(), plan.Failed[m])
		}
		return fmt.Errorf("%d module(s) failed registration", len(plan.Failed))
	}
	return nil
}

func runInspectModules(cmd *cobra.Command, args []string) error {
	f, opts, err := inspectFormatter()
	if err != nil {
		return err
	}
	app, err := newApp(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Pipeline.Config()
	cfg.DryRun = true
	app.Pipeline.UpdateConfig(cfg)

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := app.Pipeline.Run(ctx)
	if res == nil {
		return err
	}

	listing := formatter.Listing{Kind: "modules", Columns: []string{"module", "status", "declarations", "imports", "bytes"}}

	if len(args) == 1 {
		rep, ok := res.Module(args[0])
		if !ok {
			f.FormatRecord(cmd.OutOrStdout(), listing, nil, opts)
			return fmt.Errorf("module %q not found", args[0])
		}
		listing.Columns = append(listing.Columns, "source", "error")
		if ferr := f.FormatRecord(cmd.OutOrStdout(), listing, rep.Row(), opts); ferr != nil {
			return ferr
		}
		if rep.Status == build.StatusFailed {
			return fmt.Errorf("module %s failed", rep.Module)
		}
		return nil
	}

	rows := make([]map[string]any, len(res.Modules))
	for i, m := range res.Modules {
		rows[i] = m.Row()
	}
	if ferr := f.FormatList(cmd.OutOrStdout(), listing, rows, opts); ferr != nil {
		return ferr
	}
	return err
}

func runInspectRuns(cmd *cobra.Command, args []string) error {
	f, opts, err := inspectFormatter()
	if err != nil {
		return err
	}
	app, err := newApp(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	runs, err := app.Runs(ctx, inspectLimit)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(runs))
	for i, r := range runs {
		rows[i] = map[string]any{
			"id":        r.ID,
			"started":   r.StartedAt,
			"duration":  r.FinishedAt.Sub(r.StartedAt),
			"generated": r.Generated,
			"skipped":   r.Skipped,
			"failed":    r.Failed,
		}
	}
	listing := formatter.Listing{Kind: "runs", Columns: []string{"id", "started", "duration", "generated", "skipped", "failed"}}
	return f.FormatList(cmd.OutOrStdout(), listing, rows, opts)
}
