package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mquintal/lostline/pkg/lostline/bot"
	"github.com/mquintal/lostline/pkg/lostline/channels"
	"github.com/mquintal/lostline/pkg/lostline/channels/whatsapp"
	"github.com/mquintal/lostline/pkg/lostline/gateway"
	"github.com/mquintal/lostline/pkg/lostline/notify"
	"github.com/mquintal/lostline/pkg/lostline/scheduler"
	"github.com/mquintal/lostline/pkg/lostline/storage"
)

// newServeCmd creates the `lostline serve` command that starts the service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and messaging channels",
		Long: `Start LostLine as a long-running service: the Twilio webhook gateway,
the optional direct WhatsApp channel, and the maintenance scheduler.

Examples:
  lostline serve
  lostline serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, slog.Default())
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ──
	store, err := storage.Open(cfg.Storage.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// ── Capabilities ──
	var llm bot.LanguageModel
	if cfg.API.Configured() {
		llm = bot.NewLLMClient(cfg.API, logger)
	} else {
		logger.Warn("language model not configured, running with deterministic fallbacks only")
	}

	var notifier bot.Notifier
	if cfg.Notify.Discord.Configured() {
		discord, err := notify.NewDiscord(cfg.Notify.Discord.Token, cfg.Notify.Discord.ChannelID, logger)
		if err != nil {
			logger.Warn("discord notifications unavailable", "error", err)
		} else {
			defer discord.Close()
			notifier = discord
		}
	}

	// ── Bot ──
	sessions := bot.NewSessionStore(store, logger)
	classifier := bot.NewClassifier(llm, cfg.Company.Keywords(), cfg.API.Timeout, logger)
	responder := bot.NewResponder(llm, store, notifier, cfg.Company, cfg.API.Timeout, logger)
	b := bot.New(sessions, classifier, responder, logger)

	// ── Gateway ──
	gw := gateway.New(b, store, cfg.Gateway, gateway.Capabilities{
		LLM:       cfg.API.Configured(),
		Messaging: cfg.Gateway.Twilio.Configured() || cfg.WhatsApp.Enabled,
		Vision:    cfg.Vision.Configured(),
	}, logger)
	if err := gw.Start(ctx); err != nil {
		return err
	}

	// ── Direct WhatsApp channel (optional) ──
	if cfg.WhatsApp.Enabled {
		dbPath := cfg.WhatsApp.DatabasePath
		if dbPath == "" {
			dbPath = cfg.Storage.Path
		}
		wa := whatsapp.New(whatsapp.Config{
			DatabasePath:    dbPath,
			RespondToGroups: cfg.WhatsApp.RespondToGroups,
		}, logger)
		if err := wa.Connect(ctx); err != nil {
			logger.Error("whatsapp channel failed to start", "error", err)
		} else {
			defer wa.Disconnect()
			go pumpChannel(ctx, wa, b, logger)
		}
	}

	// ── Maintenance scheduler ──
	sched := scheduler.New(scheduler.Config{
		Schedule:       cfg.Maintenance.Schedule,
		UnclaimedAfter: time.Duration(cfg.Maintenance.UnclaimedAfterDays) * 24 * time.Hour,
		SessionTTL:     time.Duration(cfg.Maintenance.SessionTTLDays) * 24 * time.Hour,
	}, store, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	logger.Info("lostline running",
		"gateway", cfg.Gateway.Address,
		"whatsapp", cfg.WhatsApp.Enabled,
		"llm", cfg.API.Configured(),
	)

	// ── Wait for shutdown ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return gw.Stop(shutdownCtx)
}

// pumpChannel forwards incoming channel messages through the orchestrator
// and sends the replies back on the same channel.
func pumpChannel(ctx context.Context, ch channels.Channel, b *bot.Bot, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			reply, err := b.HandleMessage(ctx, bot.InboundMessage{
				Channel:     msg.Channel,
				From:        msg.From,
				ProfileName: msg.FromName,
				Body:        msg.Content,
				MediaRefs:   msg.MediaRefs,
			})
			if err != nil {
				logger.Warn("dropping message without sender", "channel", msg.Channel)
				continue
			}
			if err := ch.Send(ctx, msg.From, reply); err != nil {
				logger.Error("failed to send reply", "channel", msg.Channel, "to", msg.From, "error", err)
			}
		}
	}
}
