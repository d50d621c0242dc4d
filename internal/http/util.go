package httpapi

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody {status:"error", detail}
func errorBody(detail string) map[string]string {
	return map[string]string{"status": "error", "detail": detail}
}
