package ctl

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <thread> <client-temp-id>",
		Short: "Retry a failed message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{
				Cmd:          "retry",
				ThreadID:     models.ThreadID(strings.TrimSpace(args[0])),
				ClientTempID: strings.TrimSpace(args[1]),
			})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var msg models.Message
			if err := json.Unmarshal(result, &msg); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d\n", msg.ID)
			return nil
		},
	}
}

func newDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <thread> <client-temp-id>",
		Short: "Discard a failed message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			if _, err := client.roundTrip(request{
				Cmd:          "discard",
				ThreadID:     models.ThreadID(strings.TrimSpace(args[0])),
				ClientTempID: strings.TrimSpace(args[1]),
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "discarded")
			return nil
		},
	}
}
