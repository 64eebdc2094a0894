package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"log/slog"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/mquintal/lostline/pkg/lostline/bot"
	"github.com/mquintal/lostline/pkg/lostline/storage"
)

// newChatCmd creates the `lostline chat` command: a local console
// conversation against the same orchestrator the channels use. Useful for
// trying flows without a messaging account.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the intake bot from the terminal",
		Long: `Open a local console conversation with the intake bot. State is kept
in the regular session store under the "console" identity, so "reset"
works the same way it does over messaging.`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, slog.Default())
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := storage.Open(cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var llm bot.LanguageModel
	if cfg.API.Configured() {
		llm = bot.NewLLMClient(cfg.API, logger)
	}

	sessions := bot.NewSessionStore(store, logger)
	classifier := bot.NewClassifier(llm, cfg.Company.Keywords(), cfg.API.Timeout, logger)
	responder := bot.NewResponder(llm, store, nil, cfg.Company, cfg.API.Timeout, logger)
	b := bot.New(sessions, classifier, responder, logger)

	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("LostLine console chat. Type a message, or /quit to exit.")

	ctx := context.Background()
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		reply, err := b.HandleMessage(ctx, bot.InboundMessage{
			Channel: "console",
			From:    "console:operator",
			Body:    line,
		})
		if err != nil {
			return err
		}
		fmt.Printf("bot> %s\n", reply)
	}
}
