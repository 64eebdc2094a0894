package commands

import (
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/mquintal/lostline/pkg/lostline/bot"
)

// newSetupCmd creates the `lostline setup` command: an interactive form
// that writes an initial config file and stores the LLM API key in the OS
// keyring rather than on disk.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run configuration",
		RunE:  runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg := bot.DefaultConfig()

	var enableWhatsApp bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Company name").
				Description("Shown to users in greetings and prompts.").
				Value(&cfg.Company.Name),
			huh.NewInput().
				Title("Company description").
				Description("One or two sentences used in prompts and the company-info reply.").
				Value(&cfg.Company.Description),
			huh.NewInput().
				Title("Product or service name").
				Value(&cfg.Company.Product),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&cfg.Gateway.Address),
			huh.NewInput().
				Title("SQLite database path").
				Value(&cfg.Storage.Path),
			huh.NewConfirm().
				Title("Enable the direct WhatsApp channel?").
				Value(&enableWhatsApp),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	cfg.WhatsApp.Enabled = enableWhatsApp

	// API key goes to the OS keyring, never into the YAML file.
	fmt.Print("LLM API key (empty to skip, input hidden): ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	if key := string(keyBytes); key != "" {
		if bot.KeyringAvailable() {
			if err := bot.StoreKeyring("api_key", key); err != nil {
				return fmt.Errorf("storing API key in keyring: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
		} else {
			fmt.Println("OS keyring unavailable; export LOSTLINE_API_KEY instead.")
		}
	}

	path, _ := cmd.Root().PersistentFlags().GetString("config")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Printf("Configuration written to %s. Start the service with `lostline serve`.\n", path)
	return nil
}
