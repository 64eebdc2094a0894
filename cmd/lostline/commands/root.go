// Package commands implements the LostLine CLI commands using cobra.
package commands

import (
	"os"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mquintal/lostline/pkg/lostline/bot"
)

// NewRootCmd creates the CLI root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lostline",
		Short: "LostLine - lost-and-found intake over messaging",
		Long: `LostLine runs a conversational lost-and-found intake bot behind a
Twilio messaging webhook (and optionally a direct WhatsApp channel).

Examples:
  lostline serve
  lostline chat
  lostline setup
  lostline sessions list`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newHealthCmd(),
		newSessionsCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves the config path flag and loads configuration plus the
// API key chain (keyring, env, config).
func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*bot.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := bot.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	bot.ResolveAPIKey(cfg, logger)
	return cfg, nil
}

// newLogger builds the slog logger per config and the verbose flag.
func newLogger(cmd *cobra.Command, cfg *bot.Config) *slog.Logger {
	level := cfg.LogLevel()
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
