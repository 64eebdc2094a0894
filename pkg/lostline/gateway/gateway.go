// Package gateway provides the HTTP surface of LostLine: the Twilio
// messaging webhook, the administrative endpoints, and the health check.
package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mquintal/lostline/pkg/lostline/bot"
	"github.com/mquintal/lostline/pkg/lostline/storage"
)

// Capabilities are the configured-or-not flags reported by /health.
type Capabilities struct {
	LLM       bool `json:"llm"`
	Messaging bool `json:"messaging"`
	Vision    bool `json:"vision"`
}

// Gateway is the HTTP server.
type Gateway struct {
	bot       *bot.Bot
	store     *storage.Store
	cfg       bot.GatewayConfig
	caps      Capabilities
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Gateway.
func New(b *bot.Bot, store *storage.Store, cfg bot.GatewayConfig, caps Capabilities, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8086"
	}
	return &Gateway{
		bot:    b,
		store:  store,
		cfg:    cfg,
		caps:   caps,
		logger: logger.With("component", "gateway"),
	}
}

// Start begins serving in a background goroutine.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:              g.cfg.Address,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Warn when the admin surface has no token and the bind address is not
	// loopback, since anyone on the network could reset sessions.
	if g.cfg.AdminTokenHash == "" {
		host, _, _ := net.SplitHostPort(g.cfg.Address)
		ip := net.ParseIP(host)
		if host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			g.logger.Warn("SECURITY: admin endpoints have no token and the gateway is bound to a non-loopback address",
				"address", g.cfg.Address)
		}
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.cfg.Address)
	return nil
}

// Stop gracefully shuts down the server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

// Handler returns the assembled route table. Exposed so tests can drive the
// gateway through httptest without binding a port.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/webhook/twilio", g.handleWebhook)
	mux.HandleFunc("/admin/reset", g.adminAuth(g.handleReset))
	mux.HandleFunc("/admin/reports", g.adminAuth(g.handleReports))
	mux.HandleFunc("/admin/sessions", g.adminAuth(g.handleSessions))
	return g.securityHeaders(mux)
}

// securityHeaders adds standard security headers to all responses.
func (g *Gateway) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// adminAuth checks the bearer token against the bcrypt hash in config.
// An empty hash disables the check (loopback-only deployments).
func (g *Gateway) adminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.cfg.AdminTokenHash != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" ||
				bcrypt.CompareHashAndPassword([]byte(g.cfg.AdminTokenHash), []byte(token)) != nil {
				g.writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}
