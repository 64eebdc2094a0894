// Package whatsapp implements an optional direct WhatsApp channel for
// LostLine using whatsmeow, the native Go WhatsApp Web API library. It lets
// the intake bot run against a linked WhatsApp account without the Twilio
// webhook in front.
//
// Addresses are presented to the orchestrator as "whatsapp:+<digits>" so a
// user who talks to the bot through Twilio's WhatsApp bridge and through the
// direct channel lands on the same session.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"log/slog"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the device store.

	"github.com/mquintal/lostline/pkg/lostline/channels"
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// DatabasePath is the SQLite file for the whatsmeow device session
	// (tables prefixed whatsmeow_).
	DatabasePath string

	// RespondToGroups enables handling group messages. Lost-and-found intake
	// is a DM flow, so this defaults to off.
	RespondToGroups bool
}

// WhatsApp implements channels.Channel over whatsmeow.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	messages chan *channels.IncomingMessage

	connected      atomic.Bool
	messagesClosed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect opens the device store and connects to WhatsApp Web. On first run
// there is no linked device; the QR code is logged for pairing and login
// completes in the background so the server can start immediately.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.DatabasePath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating device store: %w", err)
	}

	device, err := container.GetFirstDevice(w.ctx)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked-devices list.
	store.SetOSInfo("LostLine", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		w.logger.Info("whatsapp: no linked device, QR pairing required")
		qrChan, _ := w.client.GetQRChannel(w.ctx)
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("connecting for pairing: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					w.logger.Info("whatsapp: scan this QR code with the WhatsApp app", "code", evt.Code)
				case "success":
					w.logger.Info("whatsapp: paired successfully")
				default:
					w.logger.Warn("whatsapp: pairing event", "event", evt.Event)
				}
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	w.connected.Store(true)
	w.logger.Info("whatsapp: connected", "jid", w.client.Store.ID.String())
	return nil
}

// Disconnect closes the connection and the message stream.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("whatsapp: disconnected")
	return nil
}

// Send delivers a text reply to an address in "whatsapp:+<digits>" form (a
// bare number or full JID also works).
func (w *WhatsApp) Send(ctx context.Context, to string, text string) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	_, err = w.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the incoming message stream.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected reports the connection state.
func (w *WhatsApp) IsConnected() bool { return w.connected.Load() }

// handleEvent dispatches whatsmeow events.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessage(evt)
	case *events.Connected:
		w.connected.Store(true)
		w.logger.Info("whatsapp: connected")
	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("whatsapp: disconnected, auto-reconnect will retry")
	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Error("whatsapp: logged out, re-pairing required")
	}
}

// handleMessage converts an incoming WhatsApp message into the unified form.
func (w *WhatsApp) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	if evt.Info.IsGroup && !w.cfg.RespondToGroups {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      "whatsapp:+" + evt.Info.Sender.User,
		FromName:  evt.Info.PushName,
		Type:      channels.MessageText,
		Timestamp: evt.Info.Timestamp,
	}

	switch {
	case evt.Message.GetConversation() != "":
		msg.Content = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		msg.Content = evt.Message.ExtendedTextMessage.GetText()
	case evt.Message.ImageMessage != nil:
		msg.Type = channels.MessageImage
		msg.Content = evt.Message.ImageMessage.GetCaption()
		// The image itself stays on WhatsApp's servers; the message ID is
		// the reference the intake pipeline stores.
		msg.MediaRefs = []string{"whatsapp:media:" + string(evt.Info.ID)}
	default:
		// Unsupported content types are ignored.
		return
	}

	if w.messagesClosed.Load() {
		return
	}
	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("whatsapp: message buffer full, dropping message", "from", msg.From)
	}
}

// parseJID converts "whatsapp:+15551234567", "+15551234567", "15551234567",
// or a full JID into types.JID.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "whatsapp:"))
	if s == "" {
		return types.JID{}, fmt.Errorf("empty address")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
