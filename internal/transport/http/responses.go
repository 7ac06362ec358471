package httptransport

import (
	"encoding/json"
	"net/http"

	dErrors "sentra/pkg/domain-errors"
)

var errDateOrder = dErrors.New(dErrors.CodeInvalidInput, "dateFrom must not be after dateTo")

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation so every handler produces
// the same JSON envelope. Cross-tenant denials surface as a generic 403; the
// status mapping itself keeps that collapse.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":             string(code),
		"error_description": dErrors.MessageOf(err),
	})
}

// writeNotFound is the shared shape for both genuinely missing resources and
// resources the caller may not see.
func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":             string(dErrors.CodeNotFound),
		"error_description": "resource not found",
	})
}
