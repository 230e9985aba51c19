// Package ctl implements the dispatchctl command line client. It talks
// to a running dispatchsyncd over its surface socket; nothing here
// touches the backend directly.
package ctl

import (
	"github.com/spf13/cobra"
)

// Execute runs the dispatchctl CLI.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dispatchctl",
		Short:         "Inspect and drive a running dispatchsyncd",
		Long:          "dispatchctl sends commands to the dispatchsyncd surface socket: conversation state, unread counts, sending and marking messages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	cmd.PersistentFlags().String("socket", "", "Surface socket address (default: from config)")
	cmd.PersistentFlags().Bool("json", false, "Machine-readable JSON output")

	cmd.AddCommand(
		newStatusCmd(),
		newCountsCmd(),
		newThreadsCmd(),
		newHistoryCmd(),
		newSendCmd(),
		newRetryCmd(),
		newDiscardCmd(),
		newReadCmd(),
		newFocusCmd(),
		newUnfocusCmd(),
		newTailCmd(),
		newEventsCmd(),
		newContextCmd(),
	)

	return cmd
}
