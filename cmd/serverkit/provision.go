package main

import (
	"context"
	"fmt"

	"github.com/cuemby/serverkit/pkg/config"
	"github.com/cuemby/serverkit/pkg/download"
	"github.com/cuemby/serverkit/pkg/log"
	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Download and cache the server binary without starting it",
	Long: `provision resolves the configured version for this host and
downloads it into the cache if it isn't already there. It is meant to
be wired up as a package install hook: it always exits 0, even on
failure, so that installation is never blocked by a flaky mirror.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolver, err := newResolver(); err != nil {
			fmt.Printf("serverkit: provision skipped: %v\n", err)
		} else if resolver.Bool(config.DisablePostinstall) {
			fmt.Println("serverkit: provision skipped: disabled via DISABLE_POSTINSTALL")
		} else {
			req, opts := buildRequest(resolver)
			path, err := download.NewDownloader().Provision(context.Background(), req, opts)
			if err != nil {
				log.Errorf("provision failed", err)
				fmt.Printf("serverkit: provision failed: %v\n", err)
			} else {
				fmt.Printf("serverkit: binary ready at %s\n", path)
			}
		}
		return nil
	},
}
