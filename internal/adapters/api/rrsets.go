package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/services"
	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

// perDomainWriteScope throttles RRset mutations per zone; the bucket keys
// the window to the domain name.
const perDomainWriteScope = "dns_api_per_domain_expensive"

func (h *Handler) listRRsets(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	d, err := h.domains.Get(r.Context(), creds.User, r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.paginateRRsets(w, r, d)
}

func (h *Handler) getRRset(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	d, err := h.domains.Get(r.Context(), creds.User, r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	subname := pathSubname(r.PathValue("subname"))
	rrType := domain.NormalizeRRsetType(r.PathValue("type"))
	rs, err := h.rrsets.Get(r.Context(), d, subname, rrType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

// bulkRRsets handles PUT, PATCH and POST on the rrsets collection. A single
// JSON object is accepted as a one-element batch.
func (h *Handler) bulkRRsets(mode services.BulkMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		creds := credentialsFrom(r.Context())
		d, err := h.domains.Get(r.Context(), creds.User, r.PathValue("name"))
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.limiter.Allow(r.Context(), perDomainWriteScope, creds.User.ID.String(), d.Name); err != nil {
			metrics.ThrottledTotal.WithLabelValues(perDomainWriteScope).Inc()
			h.writeError(w, err)
			return
		}
		inputs, err := decodeRRsetInputs(r.Body)
		if err != nil {
			h.writeError(w, err)
			return
		}
		policies, err := h.auth.Policies(r.Context(), creds.Token)
		if err != nil {
			h.writeError(w, err)
			return
		}
		results, err := h.rrsets.Apply(r.Context(), d, policies, mode, inputs)
		if err != nil {
			h.writeError(w, err)
			return
		}
		status := http.StatusOK
		if mode == services.ModeCreate {
			status = http.StatusCreated
		}
		writeJSON(w, status, results)
	}
}

func decodeRRsetInputs(body io.Reader) ([]services.RRsetInput, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, domain.E(domain.KindPayloadTooLarge, "request body too large")
		}
		return nil, domain.E(domain.KindValidation, "could not read request body")
	}
	var inputs []services.RRsetInput
	if err := json.Unmarshal(raw, &inputs); err == nil {
		return inputs, nil
	}
	var one services.RRsetInput
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, domain.E(domain.KindValidation, "malformed JSON body")
	}
	return []services.RRsetInput{one}, nil
}

// pathSubname maps the URL form of a subname to its stored form; "@" and
// ".." both denote the zone apex.
func pathSubname(s string) string {
	if s == "@" || s == ".." {
		return ""
	}
	return s
}
