// handlers.go implements the gateway endpoints.
package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mquintal/lostline/pkg/lostline/bot"
	"github.com/mquintal/lostline/pkg/lostline/channels/twilio"
)

// handleWebhook is the Twilio messaging webhook. A missing sender address is
// rejected with 400 before any session logic runs; every other failure comes
// back as the bot's apology reply with a 200 so Twilio does not retry. Only
// a failure to render the reply itself surfaces as a 500.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inbound, err := twilio.ParseWebhook(r)
	if err != nil {
		http.Error(w, "malformed webhook payload", http.StatusBadRequest)
		return
	}

	if g.cfg.Twilio.ValidateSignature && g.cfg.Twilio.Configured() {
		if !twilio.ValidateSignature(r, g.cfg.Twilio.AuthToken, requestURL(r)) {
			g.logger.Warn("webhook signature validation failed", "from", inbound.From)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	reply, err := g.bot.HandleMessage(r.Context(), bot.InboundMessage{
		Channel:     "twilio",
		From:        inbound.From,
		ProfileName: inbound.ProfileName,
		Body:        inbound.Body,
		MediaRefs:   inbound.MediaURLs,
	})
	if err != nil {
		// Only ErrMissingSender escapes the orchestrator.
		http.Error(w, "missing sender address", http.StatusBadRequest)
		return
	}

	body, err := twilio.RenderReply(reply)
	if err != nil {
		g.logger.Error("failed to render TwiML reply", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// handleReset resets a session to defaults, preserving identity, name, and
// first-contact time. Accepts GET or POST with a `phone` query parameter.
func (g *Gateway) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		g.writeError(w, "phone parameter is required", http.StatusBadRequest)
		return
	}

	ok, err := g.bot.ResetSession(r.Context(), phone)
	if err != nil {
		g.logger.Error("session reset failed", "phone", phone, "error", err)
		g.writeError(w, "failed to reset session", http.StatusInternalServerError)
		return
	}
	if !ok {
		g.writeError(w, "no session found for that number", http.StatusBadRequest)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "session reset",
	})
}

// handleReports lists filed lost-item reports, newest first.
func (g *Gateway) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reports, err := g.store.ListReports(r.Context())
	if err != nil {
		g.logger.Error("failed to list reports", "error", err)
		g.writeError(w, "failed to list reports", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(reports),
		"reports": reports,
	})
}

// handleSessions lists session metadata, most recently active first.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessions, err := g.bot.Sessions().List(r.Context())
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.writeError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// handleHealth reports which external capabilities are configured.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(g.startedAt).Seconds()),
		"capabilities":   g.caps,
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	g.writeJSON(w, code, map[string]string{"error": msg})
}

// requestURL reconstructs the public URL Twilio signed against.
func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
