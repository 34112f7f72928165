package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/service/disposition"
	"github.com/ignite/lead-disposition/internal/service/ingest"
)

const maxImportBytes = 32 << 20

// contactKey reads the client and email path parameters.
func contactKey(w http.ResponseWriter, r *http.Request) (domain.ContactKey, bool) {
	email, err := ingest.NormalizeEmail(chi.URLParam(r, "email"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return domain.ContactKey{}, false
	}
	return domain.ContactKey{Email: email, ClientID: chi.URLParam(r, "clientID")}, true
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req ingest.NewContact
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.eng.CreateContact(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) BulkCreateContacts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contacts []ingest.NewContact `json:"contacts"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Contacts) == 0 {
		httputil.BadRequest(w, "contacts is required")
		return
	}
	res, err := h.eng.Ingest.BulkCreate(r.Context(), req.Contacts)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ImportContacts accepts a multipart upload with a "file" part and a
// client_id form value. Optional map_<field> values override column
// detection, e.g. map_email=Work Email.
func (h *Handlers) ImportContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	var cols ingest.ColumnMap
	for key, vals := range r.MultipartForm.Value {
		if len(key) > 4 && key[:4] == "map_" && len(vals) > 0 {
			if cols == nil {
				cols = ingest.ColumnMap{}
			}
			cols[key[4:]] = vals[0]
		}
	}
	source := r.FormValue("source")
	if source == "" {
		source = "csv_upload"
	}

	res, err := h.eng.ImportCSV(r.Context(), file, r.FormValue("client_id"), cols, source)
	if err != nil {
		respondError(w, err)
		return
	}
	log.Info("csv import finished", "client_id", r.FormValue("client_id"), "imported", res.Imported, "duplicates", res.Duplicates, "skipped", res.Skipped)
	httputil.OK(w, res)
}

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	c, err := h.eng.Store().GetContact(r.Context(), key)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

type transitionRequest struct {
	Status      string         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
	CampaignID  string         `json:"campaign_id,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (h *Handlers) ApplyTransition(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "api"
	}

	c, err := h.eng.ApplyTransition(r.Context(), disposition.TransitionRequest{
		Key:         key,
		NewStatus:   status,
		Reason:      req.Reason,
		TriggeredBy: triggeredBy,
		CampaignID:  req.CampaignID,
		Channel:     ch,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) RecordTouch(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	var req struct {
		Channel string     `json:"channel"`
		At      *time.Time `json:"at,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	c, err := h.eng.RecordTouch(r.Context(), key, ch, at)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) ContactHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}
	hist, err := h.eng.Audit.ContactTimeline(r.Context(), key, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contact": key, "history": hist})
}

// VerifyContactHistory replays the contact's ledger against its status.
func (h *Handlers) VerifyContactHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	v, err := h.eng.Audit.VerifyContact(r.Context(), key)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, v)
}

func (h *Handlers) ContactAssignments(w http.ResponseWriter, r *http.Request) {
	key, ok := contactKey(w, r)
	if !ok {
		return
	}
	asg, err := h.eng.Assignments.ListForContact(r.Context(), key)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contact": key, "assignments": asg})
}
