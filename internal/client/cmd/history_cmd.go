package cmd

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/peer-chat/internal/archive"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	archive string
	room    string
	limit   int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "print recorded messages",
	Long:  `print the messages recorded by "chat --archive", or the recorded rooms when --room is not given`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := lo.Ternary(historyFlags.archive != "", historyFlags.archive, cfg.ArchivePath)
		if path == "" {
			return errors.New("no archive given, use --archive or PEERCHAT_ARCHIVE_PATH")
		}

		arc, err := archive.Open(path)
		if err != nil {
			return err
		}
		defer arc.Close()

		out := cmd.OutOrStdout()
		if historyFlags.room == "" {
			rooms, err := arc.Rooms(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rooms {
				fmt.Fprintln(out, r)
			}
			return nil
		}

		msgs, err := arc.Messages(cmd.Context(), historyFlags.room, historyFlags.limit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Fprintln(out, formatMessage(m))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.archive, "archive", "", "sqlite file written by chat (overrides PEERCHAT_ARCHIVE_PATH)")
	historyCmd.Flags().StringVar(&historyFlags.room, "room", "", "room to print")
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 50, "latest messages to print, 0 for all")
}
