package api

import (
	"net/http"

	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

type createDomainRequest struct {
	Name string `json:"name"`
}

func (h *Handler) listDomains(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	domains, err := h.domains.List(r.Context(), creds.User)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domains)
}

func (h *Handler) createDomain(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	if err := h.limiter.Allow(r.Context(), "zone_create", creds.User.ID.String(), ""); err != nil {
		metrics.ThrottledTotal.WithLabelValues("zone_create").Inc()
		h.writeError(w, err)
		return
	}
	var req createDomainRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	d, err := h.domains.Create(r.Context(), creds.User, creds.Token, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) getDomain(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	d, err := h.domains.Get(r.Context(), creds.User, r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDomain(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	if err := h.domains.Delete(r.Context(), creds.User, creds.Token, r.PathValue("name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
