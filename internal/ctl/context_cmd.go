package ctl

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ridewire/dispatchsync/internal/config"
	"github.com/ridewire/dispatchsync/internal/models"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or change the selected thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := config.DefaultContextStore().Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctx.String())
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <thread>",
		Short: "Select a thread for subsequent commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			threadID := strings.TrimSpace(args[0])
			if threadID == "" {
				return fmt.Errorf("thread id is required")
			}

			store := config.DefaultContextStore()
			ctx, err := store.Load()
			if err != nil {
				return err
			}
			ctx.SetThread(threadID, label)
			if err := store.Save(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ctx.String())
			return nil
		},
	}
	set.Flags().String("label", "", "Display label for the thread")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear the selected thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DefaultContextStore().Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "context cleared")
			return nil
		},
	}

	cmd.AddCommand(set, clear)
	return cmd
}

// resolveThread picks the thread from the first positional argument or
// falls back to the saved context.
func resolveThread(cmd *cobra.Command, args []string) (models.ThreadID, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return models.ThreadID(strings.TrimSpace(args[0])), nil
	}

	ctx, err := config.DefaultContextStore().Load()
	if err != nil {
		return "", err
	}
	if ctx.IsEmpty() {
		return "", fmt.Errorf("no thread given and no context set (use 'dispatchctl context set <thread>')")
	}
	return models.ThreadID(ctx.ThreadID), nil
}
