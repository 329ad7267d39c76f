package main

import (
	"errors"

	"github.com/spf13/cobra"

	"tailor/internal/notifications"
	"tailor/internal/services"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return services.Wrap(services.ErrConfiguration, "test-notify", "check config",
					"notifications.ntfy_topic is not set", errors.New("no ntfy topic"))
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Test notification sent to %s", cfg.Notifications.NtfyTopic)
		},
	}
}
