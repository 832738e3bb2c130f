// Package webhook receives signed GitHub events and feeds them into the
// orchestrator without blocking the HTTP response.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"pr-review-hub/internal/metrics"
)

const processTimeout = 5 * time.Minute

// Handler verifies, acknowledges and asynchronously processes webhook
// deliveries. A semaphore bounds in-flight processing; at capacity the
// delivery is rejected with 429 so GitHub redelivers later.
type Handler struct {
	ingest  *Ingest
	secret  string
	maxBody int64
	sem     chan struct{}
	wg      sync.WaitGroup
}

func NewHandler(ingest *Ingest, secret string, concurrency int, maxBody int64) *Handler {
	if concurrency < 1 {
		concurrency = 4
	}
	if maxBody < 1 {
		maxBody = 2 << 20
	}
	return &Handler{
		ingest:  ingest,
		secret:  secret,
		maxBody: maxBody,
		sem:     make(chan struct{}, concurrency),
	}
}

// WaitForCompletion blocks until all in-flight deliveries finish.
func (h *Handler) WaitForCompletion() {
	h.wg.Wait()
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeResponse(w http.ResponseWriter, code int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResponse(w, http.StatusMethodNotAllowed, response{Status: "error", Message: "method not allowed"})
		return
	}
	event := r.Header.Get("X-GitHub-Event")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read body failed", "error", err)
		metrics.WebhookRequests.WithLabelValues(event, "error_read").Inc()
		writeResponse(w, http.StatusBadRequest, response{Status: "error", Message: "error reading request body"})
		return
	}

	// Fail closed: no secret configured means no delivery is trusted.
	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(body, signature, h.secret) {
		slog.Warn("invalid webhook signature", "event", event)
		metrics.WebhookRequests.WithLabelValues(event, "invalid").Inc()
		writeResponse(w, http.StatusUnauthorized, response{Status: "error", Message: "invalid signature"})
		return
	}

	if !utf8.Valid(body) {
		slog.Warn("request body is not valid utf-8")
		metrics.WebhookRequests.WithLabelValues(event, "invalid").Inc()
		writeResponse(w, http.StatusBadRequest, response{Status: "error", Message: "invalid encoding"})
		return
	}

	// Check capacity before spawning the goroutine to prevent a leak.
	select {
	case h.sem <- struct{}{}:
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer func() { <-h.sem }()
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panic recovered in webhook processing",
						"panic", rec,
						"stack", string(debug.Stack()))
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
			defer cancel()

			if err := h.ingest.Dispatch(ctx, event, body); err != nil {
				slog.Error("webhook processing failed",
					"event", event,
					"error", err,
					"payload_preview", truncateForLog(scrubPayload(body), 500))
			}
		}()

		metrics.WebhookRequests.WithLabelValues(event, "accepted").Inc()
		writeResponse(w, http.StatusOK, response{Status: "success"})

	default:
		slog.Warn("webhook concurrency limit, delivery dropped", "event", event)
		metrics.WebhookRequests.WithLabelValues(event, "dropped").Inc()
		writeResponse(w, http.StatusTooManyRequests, response{Status: "error", Message: "server busy, please retry later"})
	}
}
