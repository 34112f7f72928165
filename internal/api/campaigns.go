package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/service/assignment"
	"github.com/ignite/lead-disposition/internal/service/fill"
	"github.com/ignite/lead-disposition/internal/service/ingest"
)

func (h *Handlers) AssignToCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		ClientID string `json:"client_id"`
		Channel  string `json:"channel,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	email, err := ingest.NormalizeEmail(req.Email)
	if err != nil {
		respondError(w, err)
		return
	}
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	a, err := h.eng.AssignToCampaign(r.Context(), assignment.AssignRequest{
		Key:        domain.ContactKey{Email: email, ClientID: req.ClientID},
		CampaignID: chi.URLParam(r, "campaignID"),
		Channel:    ch,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, a)
}

// FillCampaign selects and enrolls contacts. The campaign id in the path
// wins over any id in the body.
func (h *Handlers) FillCampaign(w http.ResponseWriter, r *http.Request) {
	var req fill.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.CampaignID = chi.URLParam(r, "campaignID")
	if req.FreshRatio == 0 {
		req.FreshRatio = h.fillRatio
	}
	if req.MaxPerCompany == 0 {
		req.MaxPerCompany = h.fillCap
	}
	res, err := h.eng.FillCampaign(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	log.Info("campaign filled", "campaign_id", req.CampaignID, "client_id", req.ClientID, "requested", res.Requested, "assigned", res.Assigned)
	httputil.OK(w, res)
}

func (h *Handlers) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	a, err := h.eng.CompleteAssignment(r.Context(), chi.URLParam(r, "id"), req.Outcome)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, a)
}

func (h *Handlers) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	rep, err := h.maintenance(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, rep)
}
