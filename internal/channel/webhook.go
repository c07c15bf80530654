package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSink receives Telegram updates decoded by the webhook server.
type UpdateSink interface {
	HandleUpdate(update tgbotapi.Update)
}

// SweepRunner triggers one delivery sweep.
type SweepRunner interface {
	Run(ctx context.Context) (int, error)
}

// WebhookServer is the HTTP trigger surface: a webhook endpoint receiving
// Telegram updates, a sweep endpoint for external schedulers, and optional
// metrics exposition.
type WebhookServer struct {
	host   string
	port   int
	path   string
	secret string

	sink    UpdateSink
	sweeper SweepRunner
	metrics http.HandlerFunc // optional
	logger  *slog.Logger
	server  *http.Server
}

type WebhookServerConfig struct {
	Host    string
	Port    int
	Path    string // webhook URL path (default: /webhook)
	Secret  string // expected X-Telegram-Bot-Api-Secret-Token value
	Sink    UpdateSink
	Sweeper SweepRunner
	Metrics http.HandlerFunc
	Logger  *slog.Logger
}

func NewWebhookServer(cfg WebhookServerConfig) *WebhookServer {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	return &WebhookServer{
		host:    cfg.Host,
		port:    cfg.Port,
		path:    cfg.Path,
		secret:  cfg.Secret,
		sink:    cfg.Sink,
		sweeper: cfg.Sweeper,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

func (w *WebhookServer) Name() string { return "webhook" }

// Handler returns the route table; exposed separately for httptest.
func (w *WebhookServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleWebhook)
	mux.HandleFunc("/sweep", w.handleSweep)
	if w.metrics != nil {
		mux.HandleFunc("/metrics", w.metrics)
	}
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (w *WebhookServer) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.host, w.port),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.server.Addr, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

// corsHeaders answers the browser preflight the hosting platform sends.
func corsHeaders(rw http.ResponseWriter) {
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// handleWebhook accepts one Telegram update. Anything that is not a usable
// text message — malformed JSON, other update kinds — is acknowledged with
// 200 and no work: transport noise must never fault the handler.
func (w *WebhookServer) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	corsHeaders(rw)
	if r.Method == http.MethodOptions {
		rw.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if w.secret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB max
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		w.logger.Debug("unparseable webhook body ignored", "err", err)
		writeOK(rw)
		return
	}

	w.sink.HandleUpdate(update)
	writeOK(rw)
}

// handleSweep triggers one delivery sweep and reports the result.
func (w *WebhookServer) handleSweep(rw http.ResponseWriter, r *http.Request) {
	corsHeaders(rw)
	if r.Method == http.MethodOptions {
		rw.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	delivered, err := w.sweeper.Run(r.Context())
	if err != nil {
		w.logger.Error("sweep trigger failed", "err", err)
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(rw).Encode(map[string]string{"error": "sweep failed"})
		return
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]any{
		"delivered_count": delivered,
		"checked_at":      time.Now().Format(time.RFC3339),
	})
}

func writeOK(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}
