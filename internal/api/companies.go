package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/hostname"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/service/ownership"
)

func companyDomain(w http.ResponseWriter, r *http.Request) (string, bool) {
	dom, err := hostname.Normalize(chi.URLParam(r, "domain"))
	if err != nil {
		respondError(w, err)
		return "", false
	}
	return dom, true
}

// leaseTTL converts an optional day count to a duration. Zero means the
// configured default.
func leaseTTL(days int) time.Duration {
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

func (h *Handlers) GetCompany(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	co, err := h.eng.Store().GetCompany(r.Context(), dom)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, co)
}

// CanTarget answers whether client_id may target the company right now.
func (h *Handlers) CanTarget(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		httputil.BadRequest(w, "client_id is required")
		return
	}
	can, own, err := h.eng.Ownership.CanTarget(r.Context(), dom, clientID, h.eng.Policy().Now())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"domain":     dom,
		"client_id":  clientID,
		"can_target": can,
		"ownership":  own,
	})
}

type claimRequest struct {
	ClientID string `json:"client_id"`
	TTLDays  int    `json:"ttl_days,omitempty"`
}

func (h *Handlers) Claim(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		httputil.BadRequest(w, "client_id is required")
		return
	}
	lease, err := h.eng.Claim(r.Context(), ownership.ClaimRequest{Domain: dom, ClientID: req.ClientID, TTL: leaseTTL(req.TTLDays)})
	if err != nil {
		respondError(w, err)
		return
	}
	if lease.Refreshed {
		httputil.OK(w, lease)
		return
	}
	httputil.Created(w, lease)
}

func (h *Handlers) Release(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		Reason   string `json:"reason,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	reason := domain.ReasonManualRelease
	if req.Reason != "" {
		reason = domain.OwnershipChangeReason(req.Reason)
	}
	if err := h.eng.Release(r.Context(), dom, req.ClientID, reason); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// Transfer is an administrative reassignment. It overrides any live lease.
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		httputil.BadRequest(w, "client_id is required")
		return
	}
	lease, err := h.eng.Transfer(r.Context(), dom, req.ClientID, leaseTTL(req.TTLDays))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, lease)
}

func (h *Handlers) OwnershipHistory(w http.ResponseWriter, r *http.Request) {
	dom, ok := companyDomain(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}
	hist, err := h.eng.Audit.CompanyTimeline(r.Context(), dom, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"domain": dom, "history": hist})
}

func (h *Handlers) SweepExpired(w http.ResponseWriter, r *http.Request) {
	res, err := h.eng.SweepExpired(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}
