package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse all schemas and check the symbol table",
	Long: `Validate the schema tree without generating anything.

Checks:
  - configuration loads and is valid
  - every .proto file parses
  - no symbol is declared by two modules (strict mode)

Examples:
  pyroto validate
  pyroto validate --config ci/pyroto.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	app, err := newApp(nil)
	if err != nil {
		fmt.Fprintf(out, "  %s Configuration valid\n", crossMark)
		return err
	}
	defer app.Close()
	fmt.Fprintf(out, "  %s Configuration valid\n", checkMark)

	plan, err := app.Pipeline.Plan()
	if err != nil {
		fmt.Fprintf(out, "  %s Schemas parse\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Schemas parse (%d files)\n", checkMark, len(plan.Units)+len(plan.Failed))

	if len(plan.Failed) == 0 {
		fmt.Fprintf(out, "  %s Symbols registered (%d)\n", checkMark, plan.Table.Len())
		return nil
	}

	fmt.Fprintf(out, "  %s Symbols registered (%d)\n", crossMark, plan.Table.Len())
	modules := make([]string, 0, len(plan.Failed))
	for m := range plan.Failed {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		fmt.Fprintf(out, "      %v\n", plan.Failed[m])
	}
	return fmt.Errorf("%d module(s) failed registration", len(plan.Failed))
}
