// Package api exposes the control plane over HTTP. The same handlers are
// mounted under /v1 and /v2.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zonecp/zonecp/internal/adapters/throttle"
	"github.com/zonecp/zonecp/internal/core/ports"
	"github.com/zonecp/zonecp/internal/core/services"
)

// RateLimiter is the slice of the throttle adapter the API needs.
type RateLimiter interface {
	Allow(ctx context.Context, scope, client, bucket string) error
	AllowRates(ctx context.Context, scope, client, bucket string, rates []throttle.Rate) error
}

// MaxBodyBytes caps request bodies before JSON decoding.
const MaxBodyBytes = 16 << 20

type Handler struct {
	auth    *services.AuthService
	tokens  *services.TokenService
	domains *services.DomainService
	rrsets  *services.RRsetService
	repo    ports.Repository
	limiter RateLimiter
	log     *slog.Logger
}

func NewHandler(
	auth *services.AuthService,
	tokens *services.TokenService,
	domains *services.DomainService,
	rrsets *services.RRsetService,
	repo ports.Repository,
	limiter RateLimiter,
	log *slog.Logger,
) *Handler {
	return &Handler{
		auth: auth, tokens: tokens, domains: domains, rrsets: rrsets,
		repo: repo, limiter: limiter, log: log,
	}
}

// Routes builds the full request multiplexer.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, prefix := range []string{"/v1", "/v2"} {
		h.mount(mux, prefix)
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", h.handleHealth)

	return h.observe(mux)
}

func (h *Handler) mount(mux *http.ServeMux, prefix string) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return h.withAuth(h.withThrottle(fn))
	}

	mux.Handle("GET "+prefix+"/domains", authed(h.listDomains))
	mux.Handle("POST "+prefix+"/domains", authed(h.createDomain))
	mux.Handle("GET "+prefix+"/domains/{name}", authed(h.getDomain))
	mux.Handle("DELETE "+prefix+"/domains/{name}", authed(h.deleteDomain))

	mux.Handle("GET "+prefix+"/domains/{name}/rrsets", authed(h.listRRsets))
	mux.Handle("PUT "+prefix+"/domains/{name}/rrsets", authed(h.bulkRRsets(services.ModeReplace)))
	mux.Handle("PATCH "+prefix+"/domains/{name}/rrsets", authed(h.bulkRRsets(services.ModeUpsert)))
	mux.Handle("POST "+prefix+"/domains/{name}/rrsets", authed(h.bulkRRsets(services.ModeCreate)))
	mux.Handle("GET "+prefix+"/domains/{name}/rrsets/{subname}/{type}", authed(h.getRRset))

	mux.Handle("GET "+prefix+"/tokens", authed(h.listTokens))
	mux.Handle("POST "+prefix+"/tokens", authed(h.createToken))
	mux.Handle("GET "+prefix+"/tokens/{id}", authed(h.getToken))
	mux.Handle("PATCH "+prefix+"/tokens/{id}", authed(h.updateToken))
	mux.Handle("DELETE "+prefix+"/tokens/{id}", authed(h.deleteToken))

	mux.Handle("GET "+prefix+"/tokens/{id}/policies/rrsets", authed(h.listPolicies))
	mux.Handle("POST "+prefix+"/tokens/{id}/policies/rrsets", authed(h.createPolicy))
	mux.Handle("PATCH "+prefix+"/tokens/{id}/policies/rrsets/{pid}", authed(h.updatePolicy))
	mux.Handle("DELETE "+prefix+"/tokens/{id}/policies/rrsets/{pid}", authed(h.deletePolicy))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
