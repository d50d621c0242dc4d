package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/soenlit/health-buddy/internal/ingest"
)

// WebhookHandler Health Auto Export webhook 接收
type WebhookHandler struct {
	queue        ingest.Queue
	token        []byte
	maxBodyBytes int64
	logger       *zap.Logger
}

func NewWebhookHandler(queue ingest.Queue, token string, maxBodyBytes int64, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		queue:        queue,
		token:        []byte(token),
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Receive authorizes, queues the body and answers 202 without waiting for the write.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	// 先鉴权，未通过时不读取 body
	token := []byte(r.URL.Query().Get("token"))
	if subtle.ConstantTimeCompare(token, h.token) != 1 {
		h.logger.Warn("Rejected webhook with invalid token", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, http.StatusForbidden, errorBody("Invalid token. Who the hell are you?"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("body is not valid JSON"))
		return
	}

	job := ingest.NewJob(body)
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("Failed to enqueue webhook payload",
			zap.String("job_id", job.ID),
			zap.Int("bytes", len(body)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("ingest queue unavailable, retry later"))
		return
	}

	h.logger.Info("Accepted webhook payload", zap.String("job_id", job.ID), zap.Int("bytes", len(body)))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"job_id": job.ID,
	})
}
