package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/docuflow/docuflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a FlowError onto an HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	if ferr, ok := err.(*schema.FlowError); ok {
		body := map[string]any{"error": ferr.Message, "code": ferr.Code}
		if len(ferr.Details) > 0 {
			body["details"] = ferr.Details
		}
		writeJSON(w, httpStatus(ferr.Code), body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": err.Error(), "code": schema.ErrCodeStore,
	})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": msg, "code": schema.ErrCodeValidation,
	})
}

func httpStatus(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeUnknownNodeKind:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound, schema.ErrCodeInvalidToken:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeAlreadyProcessed, schema.ErrCodeNotWaiting, schema.ErrCodeInvalidTransition:
		return http.StatusConflict
	case schema.ErrCodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
