package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/wsclient"
)

var (
	watchURL         string
	watchToken       string
	watchBaseDelay   time.Duration
	watchMaxAttempts int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a user's live events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		if watchURL == "" {
			watchURL = fmt.Sprintf("ws://localhost:%d/ws", cfg.Port)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := json.NewEncoder(cmd.OutOrStdout())
		client := wsclient.New(watchURL, wsclient.Options{
			Token:        watchToken,
			PingInterval: cfg.PingInterval(),
			BaseDelay:    watchBaseDelay,
			MaxAttempts:  watchMaxAttempts,
			OnState: func(s wsclient.State) {
				log.Info("connection state", zap.Stringer("state", s))
			},
		}, log)

		err = client.Run(ctx, func(ev events.Event) {
			out.Encode(ev.Envelope())
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "websocket endpoint (default ws://localhost:<port>/ws)")
	watchCmd.Flags().StringVar(&watchToken, "token", os.Getenv("TUNEDL_TOKEN"), "access token")
	watchCmd.Flags().DurationVar(&watchBaseDelay, "retry-delay", time.Second, "delay before the first reconnect")
	watchCmd.Flags().IntVar(&watchMaxAttempts, "max-retries", 5, "reconnect attempts before giving up")
	rootCmd.AddCommand(watchCmd)
}
