package main

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then rebuild whenever a schema or the config changes",
	Long: `Run a build and keep watching the source tree. Changes to .proto files
are debounced and trigger an incremental rebuild; unchanged modules are
served from the cache.

The config file is reloaded on write or SIGHUP. Output and generation
settings apply to the next build; the source directory needs a restart.

Examples:
  pyroto watch
  pyroto watch --source proto --output gen`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&generateSource, "source", "", "schema directory (overrides source.dir)")
	watchCmd.Flags().StringVar(&generateOutput, "output", "", "output directory (overrides output.dir)")
	watchCmd.Flags().StringVar(&generatePackage, "package", "", "dotted module prefix (overrides output.package)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := newApp(applyGenerateFlags)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	return app.Watch(ctx)
}
