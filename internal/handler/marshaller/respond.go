package marshaller

import (
	"encoding/json"
	"net/http"
)

// Status is the body of every non-event response of the socket endpoint.
type Status struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, code int, err error) {
	WriteJSON(w, code, Status{Status: "error", Error: err.Error()})
}
