package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v55/github"

	"github.com/rancher/cherry-pick-bot/internal/event"
)

// Server receives GitHub webhooks and runs the cherry-pick flow for each delivery.
// Deliveries are handled one at a time so two replays never race on the same scratch ref.
type Server struct {
	runner *Runner
	secret []byte
	addr   string
	grace  time.Duration
	log    *slog.Logger

	mu sync.Mutex
}

type webhookResponse struct {
	Delivery string           `json:"delivery,omitempty"`
	Event    string           `json:"event"`
	Status   string           `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Targets  []targetResponse `json:"targets,omitempty"`
}

type targetResponse struct {
	Branch string `json:"branch"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	PR     string `json:"pr,omitempty"`
}

// NewServer returns a webhook server driven by runner's configuration.
func NewServer(runner *Runner) *Server {
	return &Server{
		runner: runner,
		secret: []byte(runner.cfg.WebhookSecret),
		addr:   runner.cfg.ListenAddr,
		grace:  runner.cfg.ShutdownTimeout,
		log:    runner.log,
	}
}

// Handler routes /webhook and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight deliveries.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.log != nil {
			s.log.Info("webhook server listening", "addr", s.addr)
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()

	if s.log != nil {
		s.log.Info("shutting down webhook server", "grace", s.grace)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown webhook server: %w", err)
	}
	return nil
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := github.ValidatePayload(r, s.secret)
	if err != nil {
		if s.log != nil {
			s.log.Warn("rejected webhook delivery", "error", err)
		}
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	name := github.WebHookType(r)
	resp := webhookResponse{Delivery: github.DeliveryID(r), Event: name}
	log := s.log
	if log != nil {
		log = log.With("delivery", resp.Delivery, "event", name)
	}

	if name == "ping" {
		resp.Status = "pong"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ev, err := event.Parse(name, payload)
	if err != nil {
		if errors.Is(err, event.ErrUnsupportedEvent) {
			resp.Status = "ignored"
			resp.Reason = "unsupported event"
			writeJSON(w, http.StatusAccepted, resp)
			return
		}
		if log != nil {
			log.Warn("malformed webhook payload", "error", err)
		}
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	// GitHub may drop the connection before a long replay completes; the run carries on.
	outcome, err := s.runner.Handle(context.WithoutCancel(r.Context()), ev)
	s.mu.Unlock()

	switch {
	case errors.Is(err, ErrIgnored):
		resp.Status = "ignored"
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		if log != nil {
			log.Error("webhook delivery failed", "error", err)
		}
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	resp.Status = "processed"
	resp.Reason = outcome.Result.SkippedReason
	for _, t := range outcome.Result.Targets {
		tr := targetResponse{Branch: t.Target.Branch, Status: string(t.Status), Reason: t.Reason}
		if t.CreatedPR != nil {
			tr.PR = t.CreatedPR.URL
		}
		resp.Targets = append(resp.Targets, tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
