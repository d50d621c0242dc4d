package httpapi

import (
	"net/http"
	"time"
)

// HealthHandler liveness probe
type HealthHandler struct {
	now func() time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": h.now().Format(time.RFC3339Nano),
	})
}
