package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rudransh-shrivastava/peer-chat/internal/archive"
	"github.com/rudransh-shrivastava/peer-chat/internal/chat"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/rudransh-shrivastava/peer-chat/internal/room/webrtc"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var chatFlags struct {
	room     string
	name     string
	password string
	appID    string
	tracker  string
	archive  string
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "join a chat room",
	Long:  `join a chat room and talk to everyone in it, type /peers, /info or /quit`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewWithLevel(cfg.LogLevel)
		log.SetOutput(cmd.ErrOrStderr())

		tr, err := webrtc.New(webrtc.Config{
			TrackerAddr: lo.Ternary(chatFlags.tracker != "", chatFlags.tracker, cfg.TrackerAddr),
			STUNServers: cfg.STUNServers,
			Logger:      log,
		})
		if err != nil {
			return err
		}

		session, err := chat.NewSession(chat.Config{
			AppID:    lo.Ternary(chatFlags.appID != "", chatFlags.appID, cfg.AppID),
			RoomID:   chatFlags.room,
			UserName: lo.Ternary(chatFlags.name != "", chatFlags.name, defaultUserName()),
			Password: chatFlags.password,
		}, chat.Options{Transport: tr, Logger: log})
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		archivePath := lo.Ternary(chatFlags.archive != "", chatFlags.archive, cfg.ArchivePath)
		if archivePath != "" {
			arc, err := archive.Open(archivePath)
			if err != nil {
				return err
			}

			// Record ends when the session closes its subscriptions.
			recorded := make(chan struct{})
			recording := session.Subscribe()
			go func() {
				defer close(recorded)
				if err := arc.Record(context.Background(), chatFlags.room, recording); err != nil {
					log.WithError(err).Error("Archive stopped recording")
				}
			}()
			defer func() {
				_ = session.Close()
				<-recorded
				_ = arc.Close()
			}()
		}

		// subscribed before connecting so early joins are shown
		sub := session.Subscribe()
		defer sub.Close()

		if err := connectWithSpinner(ctx, session, chatFlags.room, cmd.ErrOrStderr()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "joined room %s as %s\n", chatFlags.room, session.Info().UserName)

		return runChat(ctx, session, sub, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.room, "room", "", "room to join")
	chatCmd.Flags().StringVar(&chatFlags.name, "name", "", "display name (defaults to $USER)")
	chatCmd.Flags().StringVar(&chatFlags.password, "password", "", "shared room password")
	chatCmd.Flags().StringVar(&chatFlags.appID, "app-id", "", "application namespace (overrides PEERCHAT_APP_ID)")
	chatCmd.Flags().StringVar(&chatFlags.tracker, "tracker", "", "tracker address (overrides PEERCHAT_TRACKER_ADDR)")
	chatCmd.Flags().StringVar(&chatFlags.archive, "archive", "", "sqlite file to record the conversation in")
	_ = chatCmd.MarkFlagRequired("room")
}

func defaultUserName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "anonymous"
}

func connectWithSpinner(ctx context.Context, session *chat.Session, roomID string, out io.Writer) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("connecting to "+roomID),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan error, 1)
	go func() { done <- session.Connect(ctx) }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			_ = bar.Finish()
			return err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}
