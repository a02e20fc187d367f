package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zonecp/zonecp/internal/core/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders a domain error. Validation errors mirror the request
// shape: bulk requests get a positional array, single objects a field map.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				map[string]string{"detail": "request body too large"})
			return
		}
		h.log.Error("unclassified error", "error", err)
		writeJSON(w, http.StatusInternalServerError,
			map[string]string{"detail": "internal error"})
		return
	}

	status, ok := statusByKind[derr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if derr.Kind == domain.KindThrottled && derr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(derr.RetryAfter))
	}

	switch {
	case derr.Items != nil:
		writeJSON(w, status, derr.Items)
	case derr.Fields != nil && !derr.Fields.Empty():
		writeJSON(w, status, derr.Fields)
	default:
		detail := derr.Detail
		if detail == "" {
			detail = string(derr.Kind)
		}
		writeJSON(w, status, map[string]string{"detail": detail})
	}
}

// decodeJSON reads the request body into dst, mapping size and syntax
// problems to the right kinds.
func (h *Handler) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.E(domain.KindPayloadTooLarge, "request body too large")
		}
		return domain.E(domain.KindValidation, "malformed JSON body")
	}
	return nil
}
