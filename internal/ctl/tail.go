package ctl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail [thread]",
		Short: "Stream events as they happen",
		Long:  "Stream synchronization events from the daemon. With a thread argument only that thread's events are shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var threadID models.ThreadID
			if len(args) > 0 {
				threadID = models.ThreadID(args[0])
			}
			types, _ := cmd.Flags().GetStringSlice("type")
			jsonOutput, _ := cmd.Flags().GetBool("json")

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			return client.stream(request{ThreadID: threadID, EventTypes: types}, func(event *models.Event) bool {
				if jsonOutput {
					data, err := json.Marshal(event)
					if err != nil {
						return true
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return true
				}
				printEvent(cmd, event)
				return true
			})
		},
	}

	cmd.Flags().StringSlice("type", nil, "Only stream these event types (repeatable)")
	return cmd
}

func printEvent(cmd *cobra.Command, event *models.Event) {
	stamp := event.Timestamp.Local().Format(time.Stamp)
	thread := string(event.ThreadID)
	if thread == "" {
		thread = "-"
	}

	detail := ""
	switch event.Type {
	case models.EventTypeUnreadChanged:
		var payload models.UnreadChangedPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			detail = fmt.Sprintf("thread=%d global=%d", payload.Count, payload.Global)
		}
	case models.EventTypeMessageReceived:
		var payload models.MessageReceivedPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			detail = payload.Message.Body
			if payload.Action != nil {
				detail = fmt.Sprintf("%s (action: %s ride %d)", detail, payload.Action.Kind, payload.Action.RideID)
			}
		}
	case models.EventTypeMessageFailed:
		var payload models.MessageFailedPayload
		if json.Unmarshal(event.Payload, &payload) == nil {
			detail = payload.Error
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-18s  %-12s  %s\n", stamp, event.Type, thread, detail)
}
