package cmd

import (
	"github.com/rudransh-shrivastava/peer-chat/internal/config"
	"github.com/rudransh-shrivastava/peer-chat/internal/logger"
	"github.com/spf13/cobra"
)

// cfg is filled from the environment before any subcommand runs. Flags
// override it.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          `peer-chat`,
	Long:         `peer-chat is a peer to peer group chat over WebRTC data channels`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.NewLogger().Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(trackerCmd)
}
