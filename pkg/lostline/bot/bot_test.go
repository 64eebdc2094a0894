package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// memoryPersister is an in-memory SessionPersister for orchestrator tests.
type memoryPersister struct {
	sessions map[string]*Session
	loadErr  error
	saveErr  error
	saves    int
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{sessions: make(map[string]*Session)}
}

func (m *memoryPersister) Load(_ context.Context, identity string) (*Session, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.sessions[identity], nil
}

func (m *memoryPersister) Save(_ context.Context, s *Session) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sessions[s.UserIdentity] = s
	return nil
}

func (m *memoryPersister) List(_ context.Context) ([]SessionMeta, error) {
	metas := make([]SessionMeta, 0, len(m.sessions))
	for _, s := range m.sessions {
		metas = append(metas, SessionMeta{Identity: s.UserIdentity, Flow: s.Flow})
	}
	return metas, nil
}

func (m *memoryPersister) Close() error { return nil }

func newTestBot(p SessionPersister, llm LanguageModel, writer ReportWriter) *Bot {
	sessions := NewSessionStore(p, nil)
	classifier := NewClassifier(llm, testCompany.Keywords(), 0, nil)
	responder := NewResponder(llm, writer, nil, testCompany, 0, nil)
	return New(sessions, classifier, responder, nil)
}

func TestHandleMessage_MissingSender(t *testing.T) {
	t.Parallel()

	b := newTestBot(newMemoryPersister(), nil, nil)
	_, err := b.HandleMessage(context.Background(), InboundMessage{Channel: "twilio", Body: "hi"})
	if !errors.Is(err, ErrMissingSender) {
		t.Errorf("err = %v, want ErrMissingSender", err)
	}
}

func TestHandleMessage_FullReportConversation(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	writer := &fakeReportWriter{}
	b := newTestBot(p, nil, writer)
	ctx := context.Background()

	send := func(body string) string {
		t.Helper()
		reply, err := b.HandleMessage(ctx, InboundMessage{
			Channel: "twilio",
			From:    "whatsapp:+15551234567",
			Body:    body,
		})
		if err != nil {
			t.Fatalf("HandleMessage(%q): %v", body, err)
		}
		return reply
	}

	if reply := send("I lost my wallet"); !strings.Contains(strings.ToLower(reply), "describe") {
		t.Errorf("reply %q should ask for a description", reply)
	}
	if reply := send("a black leather wallet"); !strings.Contains(strings.ToLower(reply), "name") {
		t.Errorf("reply %q should ask for a name", reply)
	}
	if reply := send("Maya Chen"); !strings.Contains(strings.ToLower(reply), "phone") {
		t.Errorf("reply %q should ask for a phone number", reply)
	}
	if reply := send("5551234567"); !strings.Contains(strings.ToLower(reply), "where") {
		t.Errorf("reply %q should ask for a location", reply)
	}
	final := send("the terminal 2 food court")

	if !referencePattern.MatchString(final) {
		t.Errorf("final reply %q carries no reference code", final)
	}
	if writer.calls != 1 {
		t.Fatalf("report written %d times, want 1", writer.calls)
	}
	rep := writer.lastRep
	if rep.Description != "a black leather wallet" {
		t.Errorf("description = %q", rep.Description)
	}
	if rep.Name != "Maya Chen" {
		t.Errorf("name = %q", rep.Name)
	}
	if rep.Phone != "+15551234567" {
		t.Errorf("phone = %q", rep.Phone)
	}
	if rep.Location != "the terminal 2 food court" {
		t.Errorf("location = %q", rep.Location)
	}
	if rep.Status != StatusPending {
		t.Errorf("status = %q, want %q", rep.Status, StatusPending)
	}

	stored := p.sessions[NormalizeIdentity("whatsapp:+15551234567")]
	if stored == nil {
		t.Fatal("session not persisted")
	}
	if len(stored.History) != 10 {
		t.Errorf("history length = %d, want 10 (5 turns)", len(stored.History))
	}
}

func TestHandleMessage_Reset(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	b := newTestBot(p, nil, nil)
	ctx := context.Background()
	msg := InboundMessage{Channel: "twilio", From: "whatsapp:+15551234567"}

	msg.Body = "I lost my wallet"
	if _, err := b.HandleMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	msg.Body = "actually, let's start over"
	reply, err := b.HandleMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "starting fresh") {
		t.Errorf("reset reply = %q", reply)
	}

	stored := p.sessions[NormalizeIdentity(msg.From)]
	if stored.Report != nil || len(stored.History) != 0 {
		t.Error("reset must drop the report and history")
	}
	if stored.Flow != FlowInitialGreeting {
		t.Errorf("flow after reset = %q", stored.Flow)
	}
}

func TestHandleMessage_ResetPhrases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want bool
	}{
		{"reset", true},
		{"RESTART", true},
		{"can we start over?", true},
		{"please clear everything", true},
		{"new chat", true},
		{"begin again", true},
		{"I lost my reset button", true}, // word-boundary match, false positives accepted
		{"restarting my phone didn't help", false},
		{"I lost my wallet", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			t.Parallel()
			if got := resetPattern.MatchString(tt.body); got != tt.want {
				t.Errorf("resetPattern(%q) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}
}

func TestHandleMessage_LoadFailureApologizes(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	p.loadErr = errors.New("database locked")
	b := newTestBot(p, nil, nil)

	reply, err := b.HandleMessage(context.Background(), InboundMessage{
		Channel: "twilio", From: "whatsapp:+15551234567", Body: "hi",
	})
	if err != nil {
		t.Fatalf("load failures must not surface: %v", err)
	}
	if reply != apologyReply {
		t.Errorf("reply = %q, want the apology", reply)
	}
}

func TestHandleMessage_SaveFailureStillReplies(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	p.saveErr = errors.New("disk full")
	b := newTestBot(p, nil, nil)

	reply, err := b.HandleMessage(context.Background(), InboundMessage{
		Channel: "twilio", From: "whatsapp:+15551234567", Body: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply == apologyReply || reply == "" {
		t.Errorf("reply = %q, a save failure must not cost the user their reply", reply)
	}
}

func TestHandleMessage_MediaIngestion(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	b := newTestBot(p, nil, nil)
	ctx := context.Background()
	from := "whatsapp:+15551234567"

	if _, err := b.HandleMessage(ctx, InboundMessage{Channel: "twilio", From: from, Body: "I lost my wallet"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.HandleMessage(ctx, InboundMessage{
		Channel:   "twilio",
		From:      from,
		Body:      "here's a photo of it",
		MediaRefs: []string{"twilio:https://api.twilio.com/media/123"},
	}); err != nil {
		t.Fatal(err)
	}

	stored := p.sessions[NormalizeIdentity(from)]
	if len(stored.Media) != 1 {
		t.Fatalf("media log length = %d", len(stored.Media))
	}
	if stored.Report == nil || len(stored.Report.Images) != 1 {
		t.Error("media during the lost-item flow should attach to the report")
	}
}

func TestResetSession(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	b := newTestBot(p, nil, nil)
	ctx := context.Background()

	found, err := b.ResetSession(ctx, "whatsapp:+15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("reset of an unknown session should report not found")
	}

	if _, err := b.HandleMessage(ctx, InboundMessage{Channel: "twilio", From: "whatsapp:+15551234567", Body: "I lost my wallet"}); err != nil {
		t.Fatal(err)
	}

	found, err = b.ResetSession(ctx, "whatsapp:+15551234567")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("session should exist")
	}
	stored := p.sessions[NormalizeIdentity("whatsapp:+15551234567")]
	if stored.Report != nil || stored.Flow != FlowInitialGreeting {
		t.Error("session was not reset")
	}
}

func TestHandleMessage_ProfileNameFillsOnce(t *testing.T) {
	t.Parallel()

	p := newMemoryPersister()
	b := newTestBot(p, nil, nil)
	ctx := context.Background()
	from := "whatsapp:+15551234567"

	if _, err := b.HandleMessage(ctx, InboundMessage{Channel: "twilio", From: from, ProfileName: "Maya", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.HandleMessage(ctx, InboundMessage{Channel: "twilio", From: from, ProfileName: "Someone Else", Body: "hello"}); err != nil {
		t.Fatal(err)
	}

	stored := p.sessions[NormalizeIdentity(from)]
	if stored.DisplayName != "Maya" {
		t.Errorf("DisplayName = %q, the first profile name must stick", stored.DisplayName)
	}
}
