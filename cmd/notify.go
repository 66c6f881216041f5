/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/internal/logging"
	"github.com/takemehome/accounts/internal/mq"
	"github.com/takemehome/accounts/internal/notify"
)

// notifyCmd consumes account events and sends the emails they call for.
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Consumes account events and delivers verification emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel)

		if cfg.MQ.Backend == "memory" {
			return errors.New("notify needs a shared MQ_BACKEND (rabbitmq or pubsub); the memory backend runs inside the server")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ, logger)
		if err != nil {
			return err
		}
		defer queue.Close()

		notifier := notify.New(notify.LogMailer{Logger: logger}, logger)
		logger.Info("notifier consuming", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		if err := queue.SubscribeEvents(ctx, notifier.Handle); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume account events: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
