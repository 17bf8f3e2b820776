package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/serverkit/pkg/supervisor"
	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:    "reap PARENT_PID SERVER_PID",
	Short:  "Internal: poll a parent and server pid, killing the server if the parent dies",
	Args:   cobra.ExactArgs(2),
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		parentPID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid parent pid %q: %w", args[0], err)
		}
		serverPID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid server pid %q: %w", args[1], err)
		}

		supervisor.RunReaper(parentPID, serverPID)
		return nil
	},
}
