package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/tracker"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var trackerAddr string

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "runs the peer-chat tracker",
	Long:  `runs the tracker peers use to find each other and exchange connection offers`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := tracker.NewServer(tracker.Config{
			Addr:   lo.Ternary(trackerAddr != "", trackerAddr, cfg.ListenAddr),
			Logger: logger.NewWithLevel(cfg.LogLevel),
		})
		if err != nil {
			return err
		}

		err = srv.Start(ctx)
		_ = srv.Shutdown()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	trackerCmd.Flags().StringVar(&trackerAddr, "addr", "", "UDP address to listen on (overrides PEERCHAT_LISTEN_ADDR)")
}
