// responder.go produces the outbound reply text. The primary path asks the
// language model with a dynamically constructed system prompt; the fallback
// path is a deterministic template engine keyed by the current flow that asks
// for exactly the next missing report field. Generate never fails: any
// internal problem degrades to the fallback, which is pure string formatting.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sampling parameters for the response-generation call. Classification uses
// its own, tighter parameters (see intent.go).
const (
	responseTemperature = 0.7
	responseMaxTokens   = 300
	promptHistoryWindow = 6
)

// Responder generates outbound message text.
type Responder struct {
	llm     LanguageModel
	reports ReportWriter
	notify  Notifier
	company CompanyConfig
	timeout time.Duration
	logger  *slog.Logger

	// now is swappable for deterministic reference codes in tests.
	now func() time.Time
}

// NewResponder builds a responder. llm, reports, and notify may each be nil;
// a nil llm forces the deterministic path, a nil reports writer skips
// persistence (logged), and a nil notifier skips staff alerts.
func NewResponder(llm LanguageModel, reports ReportWriter, notify Notifier, company CompanyConfig, timeout time.Duration, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Responder{
		llm:     llm,
		reports: reports,
		notify:  notify,
		company: company,
		timeout: timeout,
		logger:  logger.With("component", "responder"),
		now:     time.Now,
	}
}

// Generate returns the reply for one inbound message. It never returns an
// error; the deterministic fallback absorbs every failure. Note the fallback
// also advances the flow when it asks for the next missing field, so both
// paths stay consistent on flow values.
func (r *Responder) Generate(ctx context.Context, text string, s *Session) string {
	// Report completion is handled deterministically even when a model is
	// available, so the reference code and confirmation wording are stable.
	if s.Report != nil && s.Report.Complete() {
		return r.finalizeReport(ctx, s)
	}

	if r.llm != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		reply, err := r.llm.Complete(cctx, CompletionRequest{
			System:      r.systemPrompt(s),
			History:     s.RecentHistory(promptHistoryWindow),
			User:        text,
			MaxTokens:   responseMaxTokens,
			Temperature: responseTemperature,
		})
		cancel()
		if err == nil && reply != "" {
			return reply
		}
		if err != nil {
			r.logger.Warn("model generation failed, using fallback", "error", err)
		}
	}

	return r.fallbackReply(ctx, s)
}

// systemPrompt embeds the company description, the fixed behavioral policy,
// and a state-specific block describing the flow and collected fields.
func (r *Responder) systemPrompt(s *Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the lost-and-found assistant for %s. %s\n\n",
		r.company.Name, r.company.Description)

	b.WriteString("Policy: stay on the topic of lost items and the company's ")
	b.WriteString("services. Be brief and empathetic. Ask at most one question ")
	b.WriteString("per reply. Never answer with lists.\n\n")

	fmt.Fprintf(&b, "Conversation stage: %s.\n", s.Flow)
	if s.DisplayName != "" {
		fmt.Fprintf(&b, "The user's name is %s.\n", s.DisplayName)
	}

	if rep := s.Report; rep != nil {
		b.WriteString("Lost-item report collected so far:\n")
		if rep.Description != "" {
			fmt.Fprintf(&b, "- description: %s\n", rep.Description)
		}
		if rep.Name != "" {
			fmt.Fprintf(&b, "- name: %s\n", rep.Name)
		}
		if rep.Phone != "" {
			fmt.Fprintf(&b, "- phone: %s\n", rep.Phone)
		}
		if rep.Location != "" {
			fmt.Fprintf(&b, "- location: %s\n", rep.Location)
		}
		if rep.TimeLost != "" {
			fmt.Fprintf(&b, "- time lost: %s\n", rep.TimeLost)
		}
		if missing := rep.MissingField(); missing != "" {
			fmt.Fprintf(&b, "Next field to collect: %s. Ask for it.\n", missing)
		}
	}

	return b.String()
}

// fallbackReply is the deterministic template engine. It cannot fail.
func (r *Responder) fallbackReply(ctx context.Context, s *Session) string {
	switch s.Flow {
	case FlowLostItemReport, FlowCollectingContact:
		return r.reportStepReply(ctx, s)
	case FlowCompanyInfo:
		return fmt.Sprintf("%s: %s How else can I help you today?",
			r.company.Name, r.company.Description)
	case FlowHelp:
		return "I can help you report a lost item or tell you about " +
			r.company.Name + ". Just describe what you lost and I'll take it from there."
	case FlowVerification:
		return "Thanks! Your claim is being verified by our team. We'll message you here as soon as it's done."
	default:
		name := s.DisplayName
		if name == "" {
			return "Hi! I'm the " + r.company.Name + " lost-and-found assistant. Did you lose something? Tell me about it and I'll file a report."
		}
		return fmt.Sprintf("Hi %s! Did you lose something? Tell me about it and I'll file a report.", name)
	}
}

// reportStepReply asks for the next missing field in the fixed order
// description → name → phone → location, advancing the flow alongside, and
// finalizes the report once everything is collected.
func (r *Responder) reportStepReply(ctx context.Context, s *Session) string {
	rep := s.EnsureReport()

	switch rep.MissingField() {
	case "description":
		s.Flow = FlowLostItemReport
		return "I'm sorry to hear you lost something. Could you describe the item for me? Any details help: color, brand, what was inside."
	case "name":
		s.Flow = FlowCollectingContact
		return "Got it, thank you. What's your name?"
	case "phone":
		s.Flow = FlowCollectingContact
		return "Thanks! What's the best phone number to reach you on?"
	case "location":
		return "Almost done. Where do you think you lost it?"
	}

	return r.finalizeReport(ctx, s)
}

// finalizeReport assigns the reference code once, marks the report PENDING,
// persists it, and returns the confirmation. Repeated evaluation of a
// completed report never regenerates the code or refiles the report.
func (r *Responder) finalizeReport(ctx context.Context, s *Session) string {
	rep := s.Report

	if rep.ReferenceNumber == "" {
		rep.ReferenceNumber = ReferenceCode(r.now())
		rep.Status = StatusPending

		if r.reports != nil {
			if err := r.reports.WriteReport(ctx, s.UserIdentity, rep); err != nil {
				// The user still gets their reference code; the report can be
				// recovered from the session record.
				r.logger.Error("failed to persist lost-item report",
					"identity", s.UserIdentity, "reference", rep.ReferenceNumber, "error", err)
			}
		}
		if r.notify != nil {
			r.notify.ReportFiled(s.UserIdentity, rep)
		}
		r.logger.Info("lost-item report filed",
			"identity", s.UserIdentity, "reference", rep.ReferenceNumber)
	}

	return fmt.Sprintf("Your lost-item report is filed! Your reference code is %s. "+
		"We'll contact you at %s if your item turns up.",
		rep.ReferenceNumber, rep.Phone)
}
