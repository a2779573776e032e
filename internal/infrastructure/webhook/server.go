// Package webhook receives GitHub issue events and dispatches them to the
// intake and rebalance workflows.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"
	maxPayloadBytes = 5 << 20

	defaultJobTimeout = 5 * time.Minute
)

// Handlers are invoked for issue events. Nil handlers acknowledge and ignore.
type Handlers struct {
	Opened func(ctx context.Context, number int) error
	Closed func(ctx context.Context) error
}

type issuesEvent struct {
	Action string `json:"action"`
	Issue  struct {
		Number int `json:"number"`
	} `json:"issue"`
}

// Option configures a Router.
type Option func(*webhookHandler)

// WithJobTimeout bounds each dispatched handler. Non-positive values keep the default.
func WithJobTimeout(d time.Duration) Option {
	return func(h *webhookHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Router serves /health and /webhook. Issue handlers run in the background
// after the delivery is acknowledged, detached from the request so a client
// that stops waiting cannot cancel them halfway.
type Router struct {
	*chi.Mux
	hooks *webhookHandler
}

// Wait blocks until every dispatched handler has returned.
func (r *Router) Wait() {
	r.hooks.jobs.Wait()
}

// NewRouter builds the chi router serving /health and /webhook. An empty
// secret disables signature checks.
func NewRouter(secret string, h Handlers, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	wh := &webhookHandler{secret: []byte(secret), handlers: h, logger: logger, timeout: defaultJobTimeout}
	for _, opt := range opts {
		opt(wh)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/webhook", wh.serve)

	return &Router{Mux: r, hooks: wh}
}

type webhookHandler struct {
	secret   []byte
	handlers Handlers
	logger   *slog.Logger
	timeout  time.Duration
	jobs     sync.WaitGroup
}

func (h *webhookHandler) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	if len(h.secret) > 0 && !validSignature(h.secret, body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("webhook signature mismatch", "delivery", r.Header.Get(deliveryHeader))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event := r.Header.Get(eventHeader)
	logger := h.logger.With("event", event, "delivery", r.Header.Get(deliveryHeader))

	switch event {
	case "ping":
		w.WriteHeader(http.StatusNoContent)
		return
	case "issues":
	default:
		logger.Debug("ignoring event")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var payload issuesEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	number := payload.Issue.Number
	var job func(context.Context) error
	switch {
	case payload.Action == "opened" && h.handlers.Opened != nil:
		job = func(ctx context.Context) error { return h.handlers.Opened(ctx, number) }
	case payload.Action == "closed" && h.handlers.Closed != nil:
		job = h.handlers.Closed
	default:
		logger.Debug("ignoring issue action", "action", payload.Action)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	h.dispatch(r.Context(), logger.With("action", payload.Action, "issue", number), job)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "action": payload.Action})
}

// dispatch runs job on a context that keeps the request's values but not its
// cancellation, bounded by the job timeout. Errors are logged.
func (h *webhookHandler) dispatch(parent context.Context, logger *slog.Logger, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), h.timeout)
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		defer cancel()

		started := time.Now()
		if err := job(ctx); err != nil {
			logger.Error("webhook handler failed", "elapsed", time.Since(started), "error", err)
			return
		}
		logger.Info("webhook handled", "elapsed", time.Since(started))
	}()
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Serve runs an HTTP server until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
