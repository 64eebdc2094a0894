// bot.go is the orchestrator. One call to HandleMessage runs the full
// request lifecycle for a single inbound message: load session, reset
// detection, media ingestion, classification, reduction, response
// generation, history bookkeeping, persistence.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

// resetPattern short-circuits classification entirely and rebuilds the
// session, preserving only identity fields.
var resetPattern = regexp.MustCompile(`(?i)\b(reset|restart|start over|clear|begin again|new chat)\b`)

// apologyReply is emitted when anything inside the pipeline fails. It goes
// out with a success status so the upstream channel does not retry.
const apologyReply = "Sorry, something went wrong on our side. Please send your message again in a moment."

// ErrMissingSender is returned for payloads without a sender address. This
// is the only error HandleMessage surfaces; everything else is absorbed into
// the apology reply.
var ErrMissingSender = errors.New("inbound message has no sender address")

// InboundMessage is a channel-agnostic inbound message.
type InboundMessage struct {
	// Channel names the source ("twilio", "whatsapp", "console").
	Channel string

	// From is the channel-native sender address, used for the session key
	// and for replies.
	From string

	// ProfileName is the sender's display name, when the channel carries one.
	ProfileName string

	// Body is the message text.
	Body string

	// MediaRefs are references to media received with the message.
	MediaRefs []string
}

// Bot wires the conversational core together.
type Bot struct {
	sessions   *SessionStore
	classifier *Classifier
	responder  *Responder
	logger     *slog.Logger
}

// New assembles the orchestrator from its collaborators.
func New(sessions *SessionStore, classifier *Classifier, responder *Responder, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		sessions:   sessions,
		classifier: classifier,
		responder:  responder,
		logger:     logger.With("component", "bot"),
	}
}

// HandleMessage processes one inbound message and returns the reply text.
// The only error it returns is ErrMissingSender, raised before any session
// logic runs; every other failure yields the apology reply so the channel
// can answer with a success status.
func (b *Bot) HandleMessage(ctx context.Context, msg InboundMessage) (reply string, err error) {
	if strings.TrimSpace(msg.From) == "" {
		return "", ErrMissingSender
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling message", "channel", msg.Channel, "panic", r)
			reply, err = apologyReply, nil
		}
	}()

	session, err := b.sessions.GetOrCreate(ctx, msg.From, msg.ProfileName)
	if err != nil {
		b.logger.Error("failed to load session", "from", msg.From, "error", err)
		return apologyReply, nil
	}

	if resetPattern.MatchString(msg.Body) {
		session = session.Reset()
		reply = "Okay, we're starting fresh! How can I help you today?"
		b.finish(ctx, session, msg)
		return reply, nil
	}

	for _, ref := range msg.MediaRefs {
		session.AddMedia(ref)
	}

	c := b.classifier.Classify(ctx, msg.Body, session)
	b.logger.Debug("intent classified",
		"intent", c.Intent, "confidence", c.Confidence, "source", c.Source,
		"flow", session.Flow)

	Reduce(session, c, msg.Body)

	reply = b.responder.Generate(ctx, msg.Body, session)

	session.AppendHistory(RoleUser, msg.Body)
	session.AppendHistory(RoleAssistant, reply)

	b.finish(ctx, session, msg)
	return reply, nil
}

// finish updates the inbound timestamp and persists the session. Persistence
// is best effort: the reply already computed is sent regardless, and a save
// failure is only logged.
func (b *Bot) finish(ctx context.Context, session *Session, msg InboundMessage) {
	session.Touch()
	if err := b.sessions.Save(ctx, session); err != nil {
		b.logger.Error("failed to persist session",
			"identity", session.UserIdentity, "channel", msg.Channel, "error", err)
	}
}

// ResetSession rebuilds the session for a raw address, preserving identity
// fields. Used by the administrative reset endpoint and the sessions CLI.
// Returns false when no session exists for the address.
func (b *Bot) ResetSession(ctx context.Context, rawAddress string) (bool, error) {
	session, err := b.sessions.Get(ctx, rawAddress)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}
	if err := b.sessions.Save(ctx, session.Reset()); err != nil {
		return false, err
	}
	return true, nil
}

// Sessions exposes the session store for read-only surfaces (gateway, CLI).
func (b *Bot) Sessions() *SessionStore { return b.sessions }
