package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
)

const defaultTrendDays = 90

// FindAvailable lists contacts the client may target now.
//
//	GET /api/v1/clients/{clientID}/available?channel=email&limit=100&status=fresh&title=vp,sales&include_customers=true
func (h *Handlers) FindAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ch, err := domain.ParseChannel(q.Get("channel"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		httputil.BadRequest(w, "limit must be a non-negative integer")
		return
	}
	var statuses []domain.DispositionStatus
	for _, v := range q["status"] {
		s, err := domain.ParseStatus(v)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		statuses = append(statuses, s)
	}
	var keywords []string
	if t := q.Get("title"); t != "" {
		keywords = strings.Split(t, ",")
	}

	rows, err := h.eng.FindAvailable(r.Context(), eligibility.Query{
		ClientID:         chi.URLParam(r, "clientID"),
		Channel:          ch,
		Limit:            limit,
		Statuses:         statuses,
		TitleKeywords:    keywords,
		IncludeCustomers: q.Get("include_customers") == "true",
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"count": len(rows), "contacts": rows})
}

func (h *Handlers) ListOwned(w http.ResponseWriter, r *http.Request) {
	cos, err := h.eng.Ownership.ListOwned(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"count": len(cos), "companies": cos})
}

func (h *Handlers) TamHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.eng.TAM.Health(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, health)
}

func (h *Handlers) TamTrends(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", defaultTrendDays)
	if err != nil || days <= 0 {
		httputil.BadRequest(w, "days must be a positive integer")
		return
	}
	snaps, err := h.eng.TAM.Trends(r.Context(), chi.URLParam(r, "clientID"), days)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"days": days, "snapshots": snaps})
}

// ComputeSnapshot computes and stores today's snapshot, or the day given
// as ?date=2006-01-02.
func (h *Handlers) ComputeSnapshot(w http.ResponseWriter, r *http.Request) {
	date := h.eng.Policy().Now()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httputil.BadRequest(w, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	snap, err := h.eng.ComputeSnapshot(r.Context(), chi.URLParam(r, "clientID"), date)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, snap)
}
