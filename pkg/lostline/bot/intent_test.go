package bot

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeModel is the canned LanguageModel used across the package tests.
type fakeModel struct {
	reply string
	err   error
	calls int
	last  CompletionRequest
}

func (f *fakeModel) Complete(_ context.Context, req CompletionRequest) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestClassify_Rules(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, []string{"FindersKeep"}, 0, nil)

	tests := []struct {
		name       string
		text       string
		flow       Flow
		wantIntent Intent
		wantSource string
	}{
		{"lost keyword", "I lost my wallet", "", IntentReportLostItem, "rules"},
		{"missing keyword", "my keys are missing", "", IntentReportLostItem, "rules"},
		{"cant find", "I can't find my phone", "", IntentReportLostItem, "rules"},
		{"description during report flow", "a black leather wallet with a zipper", FlowLostItemReport, IntentProvideItemDescription, "rules"},
		{"help word not taken as description", "help", FlowLostItemReport, IntentGeneralQuery, "default"},
		{"company keyword", "tell me about your company", "", IntentLearnAboutCompany, "rules"},
		{"brand keyword", "what is finderskeep?", "", IntentLearnAboutCompany, "rules"},
		{"exact greeting", "hi", "", IntentGreeting, "rules"},
		{"greeting with case and spaces", "  Hello  ", "", IntentGreeting, "rules"},
		{"phone while collecting contact", "9876543210", FlowCollectingContact, IntentProvidePhone, "rules"},
		{"intl phone while collecting contact", "+442079460958", FlowCollectingContact, IntentProvidePhone, "rules"},
		{"email while collecting contact", "maya@example.com", FlowCollectingContact, IntentProvideEmail, "rules"},
		{"name while collecting contact", "Maya Chen", FlowCollectingContact, IntentProvideName, "rules"},
		{"no rule and no model", "what's the weather like", "", IntentGeneralQuery, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSession("whatsapp:+15551234567", "")
			s.Flow = tt.flow
			got := c.Classify(context.Background(), tt.text, s)
			if got.Intent != tt.wantIntent {
				t.Errorf("intent = %q, want %q", got.Intent, tt.wantIntent)
			}
			if got.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", got.Source, tt.wantSource)
			}
		})
	}
}

func TestClassify_LocationAfterNameCollected(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, 0, nil)
	s := NewSession("whatsapp:+15551234567", "")
	s.Flow = FlowCollectingContact
	s.EnsureReport()
	s.Report.Description = "black wallet"
	s.Report.Name = "Maya Chen"
	s.Report.Phone = "+15551234567"

	got := c.Classify(context.Background(), "terminal 2 food court", s)
	if got.Intent != IntentProvideLocation {
		t.Errorf("intent = %q, want %q", got.Intent, IntentProvideLocation)
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, 0, nil)
	s := NewSession("whatsapp:+15551234567", "")
	s.Flow = FlowLostItemReport

	// The lost-keyword rule outranks the description rule.
	got := c.Classify(context.Background(), "I lost my umbrella too", s)
	if got.Intent != IntentReportLostItem {
		t.Errorf("intent = %q, want %q", got.Intent, IntentReportLostItem)
	}
}

func TestClassify_ContactShapesRequireContactFlow(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil, nil, 0, nil)
	s := NewSession("whatsapp:+15551234567", "")

	// Outside collecting_contact_info a bare number falls to the default.
	got := c.Classify(context.Background(), "9876543210", s)
	if got.Intent != IntentGeneralQuery {
		t.Errorf("intent = %q, want %q", got.Intent, IntentGeneralQuery)
	}
}

func TestClassify_LLMFallback(t *testing.T) {
	t.Parallel()

	t.Run("model answer in the closed set", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{reply: "goodbye"}
		c := NewClassifier(m, nil, time.Second, nil)
		s := NewSession("whatsapp:+15551234567", "")

		got := c.Classify(context.Background(), "see ya", s)
		if got.Intent != IntentGoodbye || got.Source != "llm" {
			t.Errorf("got %+v, want goodbye via llm", got)
		}
		if m.last.Temperature != 0 || m.last.MaxTokens != 20 {
			t.Errorf("classification sampling = temp %v / %d tokens", m.last.Temperature, m.last.MaxTokens)
		}
	})

	t.Run("model answer with quoting noise", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{reply: ` "Goodbye." `}
		c := NewClassifier(m, nil, time.Second, nil)
		s := NewSession("whatsapp:+15551234567", "")

		got := c.Classify(context.Background(), "see ya", s)
		if got.Intent != IntentGoodbye {
			t.Errorf("intent = %q, want %q", got.Intent, IntentGoodbye)
		}
	})

	t.Run("unknown label falls to default", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{reply: "sarcasm"}
		c := NewClassifier(m, nil, time.Second, nil)
		s := NewSession("whatsapp:+15551234567", "")

		got := c.Classify(context.Background(), "see ya", s)
		if got.Intent != IntentGeneralQuery || got.Source != "default" {
			t.Errorf("got %+v, want general_query via default", got)
		}
	})

	t.Run("model error falls to default", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{err: errors.New("upstream down")}
		c := NewClassifier(m, nil, time.Second, nil)
		s := NewSession("whatsapp:+15551234567", "")

		got := c.Classify(context.Background(), "see ya", s)
		if got.Intent != IntentGeneralQuery || got.Source != "default" {
			t.Errorf("got %+v, want general_query via default", got)
		}
	})

	t.Run("rules win before the model is consulted", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{reply: "goodbye"}
		c := NewClassifier(m, nil, time.Second, nil)
		s := NewSession("whatsapp:+15551234567", "")

		c.Classify(context.Background(), "hi", s)
		if m.calls != 0 {
			t.Errorf("model called %d times for a rule-matched message", m.calls)
		}
	})
}
