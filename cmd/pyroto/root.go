package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/irusland/pyroto/bootstrap"
	"github.com/irusland/pyroto/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string

	// metricsRegistry is nil for the global Prometheus registry.
	metricsRegistry *prometheus.Registry
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pyroto",
	Short: "Compile protobuf schemas into a typed Python client library",
	Long: `pyroto turns a tree of .proto files into Python modules: dataclasses for
messages, enums for enums and async client classes for services.

Quick start:
  pyroto generate            # build proto/ into gen/
  pyroto watch               # rebuild on every change

Inspection:
  pyroto inspect symbols     # the symbol table
  pyroto inspect modules     # what a build would generate
  pyroto serve               # preview server`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path (optional)")
	rootCmd.SilenceErrors = true
}

// newApp wires the application; configure applies command-line flags on
// top of the file and environment.
func newApp(configure func(*config.Config)) (*bootstrap.App, error) {
	return bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Configure:  configure,
		Registry:   metricsRegistry,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
