package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/centromex/shopping-buddy/internal/apperr"
)

// ErrorPayload is the body of every failed response.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error ErrorPayload `json:"error"`
}

// writeError maps err to its status code and stable kind.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errorResponse{
		Error: ErrorPayload{Kind: apperr.Kind(err), Message: apperr.Reason(err)},
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: ErrorPayload{Kind: "bad_request", Message: message},
	})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
