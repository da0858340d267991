package main

import (
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server",
	Long: `Start an HTTP server for inspecting the generated package.

Routes:
  GET  /healthz
  GET  /_symbols            symbol table
  GET  /_modules            modules of the last build
  GET  /_modules/{module}   generated Python source
  POST /_build              run a build
  GET  /metrics             Prometheus metrics

Examples:
  pyroto serve
  pyroto serve --addr :8089 --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides serve.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "rebuild on schema changes while serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApp(nil)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	return app.Serve(ctx, serveAddr, serveWatch)
}
