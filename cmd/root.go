package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/roomrelay/internal/logging"
	"github.com/BioHazard786/roomrelay/internal/ui"
	"github.com/BioHazard786/roomrelay/internal/version"
)

var (
	flagConfigPath string
	flagLogFormat  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomrelay",
	Short: "Room-based WebRTC signaling relay and chat client",
	Long: `roomrelay runs a WebSocket signaling relay that groups connections into
rooms and forwards WebRTC offers and answers between them. The same binary
can join a room as a client and chat with the other members over direct
peer-to-peer data channels.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The relay reports what it is doing; client commands stay quiet
		// unless LOG_LEVEL says otherwise.
		level := slog.LevelError
		if cmd.Name() == serveCmd.Name() {
			level = slog.LevelInfo
		}
		if _, err := logging.Init(level, flagLogFormat); err != nil {
			return NewError("configure logging", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", logging.FormatText, "Log format: text or json (env: LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd, joinCmd, roomsCmd, versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
