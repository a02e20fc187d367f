package api

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// tokenRequest carries the writable token fields; nil means "leave as is"
// on updates. Lifetimes are given in whole seconds.
type tokenRequest struct {
	Name             *string  `json:"name"`
	PermManageTokens *bool    `json:"perm_manage_tokens"`
	PermCreateDomain *bool    `json:"perm_create_domain"`
	PermDeleteDomain *bool    `json:"perm_delete_domain"`
	AutoPolicy       *bool    `json:"auto_policy"`
	AllowedSubnets   []string `json:"allowed_subnets"`
	MaxAgeSecs       *int64   `json:"max_age_secs"`
	MaxUnusedSecs    *int64   `json:"max_unused_secs"`
}

func applyTokenRequest(t *domain.Token, req *tokenRequest) error {
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.PermManageTokens != nil {
		t.PermManageTokens = *req.PermManageTokens
	}
	if req.PermCreateDomain != nil {
		t.PermCreateDomain = *req.PermCreateDomain
	}
	if req.PermDeleteDomain != nil {
		t.PermDeleteDomain = *req.PermDeleteDomain
	}
	if req.AutoPolicy != nil {
		t.AutoPolicy = *req.AutoPolicy
	}
	if req.AllowedSubnets != nil {
		subnets := make([]netip.Prefix, 0, len(req.AllowedSubnets))
		for _, s := range req.AllowedSubnets {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return domain.Ef(domain.KindValidation, "invalid subnet %q", s)
			}
			subnets = append(subnets, p)
		}
		t.AllowedSubnets = subnets
	}
	if req.MaxAgeSecs != nil {
		d := time.Duration(*req.MaxAgeSecs) * time.Second
		t.MaxAge = &d
	}
	if req.MaxUnusedSecs != nil {
		d := time.Duration(*req.MaxUnusedSecs) * time.Second
		t.MaxUnusedPeriod = &d
	}
	return nil
}

// tokenView renders a token with its lifetimes in seconds.
type tokenView struct {
	*domain.Token
	MaxAgeSecs    *int64 `json:"max_age_secs"`
	MaxUnusedSecs *int64 `json:"max_unused_secs"`
}

func viewToken(t *domain.Token) tokenView {
	v := tokenView{Token: t}
	if t.MaxAge != nil {
		secs := int64(t.MaxAge.Seconds())
		v.MaxAgeSecs = &secs
	}
	if t.MaxUnusedPeriod != nil {
		secs := int64(t.MaxUnusedPeriod.Seconds())
		v.MaxUnusedSecs = &secs
	}
	return v
}

func viewTokens(tokens []domain.Token) []tokenView {
	out := make([]tokenView, len(tokens))
	for i := range tokens {
		out[i] = viewToken(&tokens[i])
	}
	return out
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	tokens, err := h.tokens.List(r.Context(), creds.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTokens(tokens))
}

func (h *Handler) createToken(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	var req tokenRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	token := &domain.Token{}
	if err := applyTokenRequest(token, &req); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.tokens.Create(r.Context(), creds.Token, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewToken(created))
}

func (h *Handler) getToken(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	token, err := h.tokens.Get(r.Context(), creds.Token, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewToken(token))
}

func (h *Handler) updateToken(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	var req tokenRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	token, err := h.tokens.Get(r.Context(), creds.Token, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := applyTokenRequest(token, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.tokens.Update(r.Context(), creds.Token, token); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewToken(token))
}

func (h *Handler) deleteToken(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	if err := h.tokens.Delete(r.Context(), creds.Token, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- policies ---

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	policies, err := h.tokens.ListPolicies(r.Context(), creds.Token, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	var policy domain.TokenPolicy
	if err := h.decodeJSON(r, &policy); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.tokens.CreatePolicy(r.Context(), creds.Token, id, &policy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updatePolicy(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	tokenID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	policyID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "policy not found"))
		return
	}
	var req struct {
		PermWrite bool `json:"perm_write"`
	}
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	policies, err := h.tokens.ListPolicies(r.Context(), creds.Token, tokenID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var policy *domain.TokenPolicy
	for i := range policies {
		if policies[i].ID == policyID {
			policy = &policies[i]
			break
		}
	}
	if policy == nil {
		h.writeError(w, domain.E(domain.KindNotFound, "policy not found"))
		return
	}
	policy.PermWrite = req.PermWrite
	if err := h.tokens.UpdatePolicy(r.Context(), creds.Token, tokenID, policy); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFrom(r.Context())
	tokenID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "token not found"))
		return
	}
	policyID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, domain.E(domain.KindNotFound, "policy not found"))
		return
	}
	if err := h.tokens.DeletePolicy(r.Context(), creds.Token, tokenID, policyID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
