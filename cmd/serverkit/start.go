package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/serverkit/pkg/supervisor"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Resolve, provision, and run a supervised instance in the foreground",
	Long: `start is a manual driver for the supervisor, useful for exercising
the provisioning and readiness pipeline outside of a test binary. It
prints the instance's URI once ready and blocks until interrupted,
then shuts the instance down cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		dataPath, _ := cmd.Flags().GetString("data-path")

		resolver, err := newResolver()
		if err != nil {
			return fmt.Errorf("resolve configuration: %w", err)
		}
		req, downloadOpts := buildRequest(resolver)

		s := supervisor.NewSupervisor(downloadOpts)
		if err := s.Create(context.Background(), supervisor.Options{
			Port:     port,
			DataPath: dataPath,
			Request:  req,
		}); err != nil {
			return fmt.Errorf("start instance: %w", err)
		}

		fmt.Printf("serverkit: instance running at %s\n", s.URI("", ""))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("serverkit: shutting down...")
		return s.Stop(context.Background(), supervisor.CleanupOptions{DoCleanup: true})
	},
}

func init() {
	startCmd.Flags().Int("port", 0, "Port to bind (0 picks any free port)")
	startCmd.Flags().String("data-path", "", "Data directory (empty creates a temp dir)")
}
