package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/models"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [thread] [message]",
		Short: "Send a message to a driver thread",
		Long:  "Send a message. With no message argument the body is read from stdin. The thread defaults to the selected context.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, body, err := resolveSendArgs(cmd, args)
			if err != nil {
				return err
			}

			rideID, _ := cmd.Flags().GetInt64("ride")

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{
				Cmd:      "send",
				ThreadID: threadID,
				Body:     body,
				RideID:   rideID,
			})
			if err != nil {
				// A failed send still left the message in the thread; say
				// so instead of pretending nothing happened.
				var failed models.Message
				if len(result) > 0 && json.Unmarshal(result, &failed) == nil && failed.ClientTempID != "" {
					return fmt.Errorf("send failed (kept as %s, retry with 'dispatchctl retry'): %w", failed.ClientTempID, err)
				}
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

	cmd.Flags().Int64("ride", 0, "Ride id to attach as context")
	return cmd
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read [thread]",
		Short: "Mark a thread's messages as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := resolveThread(cmd, args)
			if err != nil {
				return err
			}

			client, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}

			result, err := client.roundTrip(request{Cmd: "read", ThreadID: threadID})
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printRawJSON(cmd, result)
			}

			var marked struct {
				Marked []int64 `json:"marked"`
			}
			if err := json.Unmarshal(result, &marked); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d read\n", len(marked.Marked))
			return nil
		},
	}
}

func newFocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "focus [thread]",
		Short: "Focus a thread (suppresses its global badge contribution)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runFocus(cmd, args, "focus") },
	}
	cmd.Flags().String("surface", "chat-modal", "Surface kind (notification-panel, chat-modal, list-badge-context)")
	return cmd
}

func newUnfocusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unfocus [thread]",
		Short: "Withdraw focus from a thread",
		Args:  cobra.MaximumNArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runFocus(cmd, args, "unfocus") },
	}
	cmd.Flags().String("surface", "chat-modal", "Surface kind (notification-panel, chat-modal, list-badge-context)")
	return cmd
}

func runFocus(cmd *cobra.Command, args []string, wireCmd string) error {
	threadID, err := resolveThread(cmd, args)
	if err != nil {
		return err
	}
	surface, _ := cmd.Flags().GetString("surface")

	client, err := newDaemonClient(cmd)
	if err != nil {
		return err
	}

	if _, err := client.roundTrip(request{Cmd: wireCmd, ThreadID: threadID, Surface: surface}); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func resolveSendArgs(cmd *cobra.Command, args []string) (models.ThreadID, string, error) {
	switch len(args) {
	case 2:
		return models.ThreadID(strings.TrimSpace(args[0])), args[1], nil
	case 1:
		// One argument: thread from context, argument is the body.
		threadID, err := resolveThread(cmd, nil)
		if err == nil {
			return threadID, args[0], nil
		}
		// No context set: argument must be the thread, body from stdin.
		body, rerr := readStdinBody()
		if rerr != nil {
			return "", "", rerr
		}
		if body == "" {
			return "", "", err
		}
		return models.ThreadID(strings.TrimSpace(args[0])), body, nil
	default:
		threadID, err := resolveThread(cmd, nil)
		if err != nil {
			return "", "", err
		}
		body, err := readStdinBody()
		if err != nil {
			return "", "", err
		}
		if body == "" {
			return "", "", fmt.Errorf("message body is required")
		}
		return threadID, body, nil
	}
}

func readStdinBody() (string, error) {
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
