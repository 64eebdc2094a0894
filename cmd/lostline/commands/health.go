package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `lostline health` command, which queries a
// running service's /health endpoint and prints the capability flags.
func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running LostLine service",
		RunE:  runHealth,
	}
	cmd.Flags().String("url", "", "base URL of the service (defaults to the configured gateway address)")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	baseURL, _ := cmd.Flags().GetString("url")
	if baseURL == "" {
		cfg, err := loadConfig(cmd, slog.Default())
		if err != nil {
			return err
		}
		addr := cfg.Gateway.Address
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		baseURL = "http://" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/health")
	if err != nil {
		return fmt.Errorf("service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status        string `json:"status"`
		UptimeSeconds int    `json:"uptime_seconds"`
		Capabilities  struct {
			LLM       bool `json:"llm"`
			Messaging bool `json:"messaging"`
			Vision    bool `json:"vision"`
		} `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}

	fmt.Printf("status:    %s (up %ds)\n", health.Status, health.UptimeSeconds)
	fmt.Printf("llm:       %s\n", onOff(health.Capabilities.LLM))
	fmt.Printf("messaging: %s\n", onOff(health.Capabilities.Messaging))
	fmt.Printf("vision:    %s\n", onOff(health.Capabilities.Vision))
	return nil
}

func onOff(b bool) string {
	if b {
		return "configured"
	}
	return "not configured"
}
