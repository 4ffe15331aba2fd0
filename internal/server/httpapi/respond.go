package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeBadRequest reports a malformed request that never reached the
// service layer (bad query param, unparseable JSON body, and so on).
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps the shared error taxonomy to an HTTP status and writes a
// small JSON error body. Unrecognized errors map to 500 without leaking
// their message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]string{"error": common.Kind(err)}
	if status == http.StatusInternalServerError {
		body["error"] = "internal"
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrNameConflict), errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrQuotaExceeded), errors.Is(err, common.ErrOversizeStream):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrSizeMismatch), errors.Is(err, common.ErrBadChunkSet):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrProviderTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrProviderFatal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
