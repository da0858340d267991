package main

import (
	"fmt"
	"io"
	"time"

	"github.com/irusland/pyroto/config"
	"github.com/irusland/pyroto/core/build"
	"github.com/spf13/cobra"
)

var (
	generateSource  string
	generateOutput  string
	generatePackage string
	generateNoCache bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the Python package once",
	Long: `Parse every .proto file below the source directory, register all
declared symbols, then generate one Python module per schema file.

A module that fails (unknown or duplicate symbol, unsupported construct) is
reported and skipped; the others are still written. A syntax error in any
schema aborts the build before anything is written.

Examples:
  pyroto generate
  pyroto generate --source proto --output gen --package client
  pyroto generate --no-cache`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateSource, "source", "", "schema directory (overrides source.dir)")
	generateCmd.Flags().StringVar(&generateOutput, "output", "", "output directory (overrides output.dir)")
	generateCmd.Flags().StringVar(&generatePackage, "package", "", "dotted module prefix (overrides output.package)")
	generateCmd.Flags().BoolVar(&generateNoCache, "no-cache", false, "regenerate every module")
}

func applyGenerateFlags(c *config.Config) {
	if generateSource != "" {
		c.Source.Dir = generateSource
	}
	if generateOutput != "" {
		c.Output.Dir = generateOutput
	}
	if generatePackage != "" {
		c.Output.Package = generatePackage
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	app, err := newApp(applyGenerateFlags)
	if err != nil {
		return err
	}
	defer app.Close()
	app.SetForce(generateNoCache)

	ctx, stop := signalContext(cmd)
	defer stop()

	res, err := app.Build(ctx)
	if res == nil {
		return err
	}

	printResult(cmd.OutOrStdout(), res)
	if err != nil {
		if res.Failed > 0 {
			return fmt.Errorf("%d module(s) failed", res.Failed)
		}
		return err
	}
	return nil
}

func printResult(w io.Writer, res *build.Result) {
	for _, m := range res.Modules {
		switch m.Status {
		case build.StatusFailed:
			fmt.Fprintf(w, "  %s %s: %s\n", crossMark, m.Module, m.Error)
		case build.StatusGenerated:
			fmt.Fprintf(w, "  %s %s -> %s\n", checkMark, m.Module, m.OutputPath)
		}
	}
	fmt.Fprintf(w, "\n%d generated, %d unchanged, %d failed in %s\n",
		res.Generated, res.Skipped, res.Failed, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
}
