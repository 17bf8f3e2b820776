package main

import (
	"fmt"
	"os"

	"github.com/cuemby/serverkit/pkg/config"
	"github.com/cuemby/serverkit/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func initLogging() {
	level := log.InfoLevel
	if resolver, err := newResolver(); err == nil && resolver.Bool(config.Debug) {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
}

func main() {
	initLogging()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "serverkit",
	Short: "serverkit - ephemeral object-storage server provisioning and supervision",
	Long: `serverkit resolves, downloads, and supervises a local copy of an
S3-compatible server binary for use in integration tests.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"serverkit version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(reapCmd)
}
