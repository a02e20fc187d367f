package api

import (
	"context"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/zonecp/zonecp/internal/adapters/throttle"
	"github.com/zonecp/zonecp/internal/core/domain"
	"github.com/zonecp/zonecp/internal/core/services"
	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

type contextKey int

const (
	credentialsKey contextKey = iota
	mfaVerifiedKey
)

func credentialsFrom(ctx context.Context) *services.Credentials {
	creds, _ := ctx.Value(credentialsKey).(*services.Credentials)
	return creds
}

// WithMFAVerified marks the request as carrying a verified MFA session.
// The session layer in front of the API sets this before the router runs.
func WithMFAVerified(ctx context.Context) context.Context {
	return context.WithValue(ctx, mfaVerifiedKey, true)
}

func mfaVerified(ctx context.Context) bool {
	v, _ := ctx.Value(mfaVerifiedKey).(bool)
	return v
}

var errMFARequired = domain.E(domain.KindForbidden, "MFA required")

// withAuth authenticates the request, enforces the MFA marker and stores
// the credentials in the context. The body is capped before any handler
// reads it.
func (h *Handler) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

		creds, err := h.auth.Authenticate(r.Context(), r.Header.Get("Authorization"), clientAddr(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		creds.MFAVerified = mfaVerified(r.Context())
		if creds.Token.MFA && !creds.MFAVerified {
			h.writeError(w, errMFARequired)
			return
		}
		ctx := context.WithValue(r.Context(), credentialsKey, creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withThrottle applies the per-account burst limits and the per-user daily
// cap, honoring the user row override for the latter.
func (h *Handler) withThrottle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := credentialsFrom(r.Context())
		client := creds.User.ID.String()

		if err := h.limiter.Allow(r.Context(), "account", client, ""); err != nil {
			metrics.ThrottledTotal.WithLabelValues("account").Inc()
			h.writeError(w, err)
			return
		}
		err := h.userDaily(r.Context(), client, creds.User.ThrottleDailyRate)
		if err != nil {
			metrics.ThrottledTotal.WithLabelValues("user").Inc()
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) userDaily(ctx context.Context, client string, override *int) error {
	if override == nil {
		return h.limiter.Allow(ctx, "user", client, "")
	}
	rates := []throttle.Rate{{Count: *override, Duration: 24 * time.Hour}}
	return h.limiter.AllowRates(ctx, "user", client, "", rates)
}

// observe records request metrics and logs failures.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if sw.status >= 500 {
			h.log.Error("request failed", "route", route, "method", r.Method, "status", sw.status)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func clientAddr(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr
	}
	return netip.Addr{}
}

var statusByKind = map[domain.Kind]int{
	domain.KindUnauthenticated: http.StatusUnauthorized,
	domain.KindForbidden:       http.StatusForbidden,
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindConflict:        http.StatusConflict,
	domain.KindValidation:      http.StatusBadRequest,
	domain.KindThrottled:       http.StatusTooManyRequests,
	domain.KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
	domain.KindUpstreamDNS:     http.StatusBadGateway,
	domain.KindStorageGone:     http.StatusServiceUnavailable,
	domain.KindInternal:        http.StatusInternalServerError,
}
