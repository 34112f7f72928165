// Package fill selects contacts for a campaign and moves them into it: the
// company lease is claimed, then the contact enters in_sequence and its
// assignment row is written in one transaction.
//
// Selection prefers fresh contacts over retouch_eligible ones by FreshRatio
// and never takes more than MaxPerCompany contacts from one company.
package fill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/service/assignment"
	"github.com/ignite/lead-disposition/internal/service/disposition"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
	"github.com/ignite/lead-disposition/internal/service/ownership"
	"github.com/ignite/lead-disposition/internal/store"
)

// Defaults for Request.
const (
	DefaultFreshRatio    = 0.7
	DefaultMaxPerCompany = 3
	TriggeredByFill      = "campaign_fill"
	overFetch            = 2
)

var ErrInvalidRequest = errors.New("invalid fill request")

var log = logger.With("fill")

// Request asks for Volume contacts for a campaign.
type Request struct {
	CampaignID    string         `json:"campaign_id"`
	ClientID      string         `json:"client_id"`
	Channel       domain.Channel `json:"channel,omitempty"`
	Volume        int            `json:"volume"`
	TitleKeywords []string       `json:"title_keywords,omitempty"`
	FreshRatio    float64        `json:"fresh_ratio,omitempty"`
	MaxPerCompany int            `json:"max_per_company,omitempty"`
	// LeaseTTL overrides the policy lease length for companies claimed here.
	LeaseTTL time.Duration `json:"-"`
}

// Result reports what a fill did.
type Result struct {
	Requested        int                 `json:"requested"`
	Assigned         int                 `json:"assigned"`
	FreshCount       int                 `json:"fresh_count"`
	RetouchCount     int                 `json:"retouch_count"`
	CompaniesTouched int                 `json:"companies_touched"`
	Contacts         []domain.ContactKey `json:"contacts"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// Service runs campaign fills.
type Service struct {
	pol         policy.Policy
	eligibility *eligibility.Service
	ownership   *ownership.Service
	disposition *disposition.Service
	assignments *assignment.Service
}

// NewService wires a fill service from the services it drives.
func NewService(pol policy.Policy, el *eligibility.Service, own *ownership.Service, disp *disposition.Service, asg *assignment.Service) *Service {
	return &Service{pol: pol, eligibility: el, ownership: own, disposition: disp, assignments: asg}
}

func (r *Request) normalize() error {
	if r.CampaignID == "" || r.ClientID == "" {
		return fmt.Errorf("%w: campaign and client are required", ErrInvalidRequest)
	}
	if r.Volume <= 0 {
		return fmt.Errorf("%w: volume must be positive", ErrInvalidRequest)
	}
	if r.Channel == "" {
		r.Channel = domain.ChannelEmail
	}
	if !r.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, r.Channel)
	}
	if r.FreshRatio <= 0 || r.FreshRatio > 1 {
		r.FreshRatio = DefaultFreshRatio
	}
	if r.MaxPerCompany <= 0 {
		r.MaxPerCompany = DefaultMaxPerCompany
	}
	return nil
}

// Fill selects and enrolls up to req.Volume contacts.
func (s *Service) Fill(ctx context.Context, req Request) (*Result, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	now := s.pol.Now()
	res := &Result{Requested: req.Volume}

	fresh, err := s.candidates(ctx, req, domain.StatusFresh, now)
	if err != nil {
		return nil, err
	}
	retouch, err := s.candidates(ctx, req, domain.StatusRetouchEligible, now)
	if err != nil {
		return nil, err
	}

	picked := Select(fresh, retouch, req.Volume, req.FreshRatio, req.MaxPerCompany)

	companies := map[string]bool{}
	blocked := map[string]bool{}
	for _, cand := range picked {
		c := cand.Contact
		if blocked[c.CompanyDomain] {
			continue
		}
		if !companies[c.CompanyDomain] {
			_, err := s.ownership.Claim(ctx, ownership.ClaimRequest{
				Domain:   c.CompanyDomain,
				ClientID: req.ClientID,
				At:       now,
				TTL:      req.LeaseTTL,
			})
			if errors.Is(err, ownership.ErrOwnershipConflict) {
				blocked[c.CompanyDomain] = true
				res.Warnings = append(res.Warnings, fmt.Sprintf("company %s is owned by another client", c.CompanyDomain))
				continue
			}
			if err != nil {
				return res, fmt.Errorf("claim %s: %w", c.CompanyDomain, err)
			}
			companies[c.CompanyDomain] = true
		}

		key := c.Key()
		_, err := s.disposition.ApplyTransition(ctx, disposition.TransitionRequest{
			Key:         key,
			NewStatus:   domain.StatusInSequence,
			Reason:      "campaign_fill",
			TriggeredBy: TriggeredByFill,
			CampaignID:  req.CampaignID,
			Channel:     req.Channel,
			At:          now,
			Within: func(ctx context.Context, tx store.Tx, _ *domain.Contact) error {
				_, err := s.assignments.Record(ctx, tx, assignment.AssignRequest{
					Key:        key,
					CampaignID: req.CampaignID,
					Channel:    req.Channel,
					At:         now,
				})
				return err
			},
		})
		if err != nil {
			if errors.Is(err, disposition.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("contact %s changed before enrollment", key))
				continue
			}
			return res, err
		}

		res.Assigned++
		res.Contacts = append(res.Contacts, key)
		if cand.Contact.DispositionStatus == domain.StatusFresh {
			res.FreshCount++
		} else {
			res.RetouchCount++
		}
	}
	res.CompaniesTouched = len(companies)
	if res.Assigned < req.Volume {
		res.Warnings = append(res.Warnings, fmt.Sprintf("only %d of %d requested contacts assigned", res.Assigned, req.Volume))
	}

	log.Info("campaign filled",
		"campaign_id", req.CampaignID,
		"client_id", req.ClientID,
		"requested", req.Volume,
		"assigned", res.Assigned,
		"fresh", res.FreshCount,
		"retouch", res.RetouchCount,
	)
	return res, nil
}

func (s *Service) candidates(ctx context.Context, req Request, status domain.DispositionStatus, now time.Time) ([]store.Candidate, error) {
	rows, err := s.eligibility.FindAvailable(ctx, eligibility.Query{
		ClientID:      req.ClientID,
		Channel:       req.Channel,
		Limit:         req.Volume * overFetch,
		Statuses:      []domain.DispositionStatus{status},
		TitleKeywords: req.TitleKeywords,
		At:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("find %s candidates: %w", status, err)
	}
	return rows, nil
}

// Select picks up to volume candidates: round(volume*freshRatio) fresh
// first, the rest retouch, then backfills from whichever list has rows
// left. No company contributes more than maxPerCompany.
func Select(fresh, retouch []store.Candidate, volume int, freshRatio float64, maxPerCompany int) []store.Candidate {
	perCompany := map[string]int{}
	out := make([]store.Candidate, 0, volume)

	take := func(src []store.Candidate, n int, used map[int]bool) {
		for i, c := range src {
			if n <= 0 || len(out) >= volume {
				return
			}
			if used[i] || perCompany[c.Contact.CompanyDomain] >= maxPerCompany {
				continue
			}
			used[i] = true
			perCompany[c.Contact.CompanyDomain]++
			out = append(out, c)
			n--
		}
	}

	freshTarget := int(math.Round(float64(volume) * freshRatio))
	usedFresh, usedRetouch := map[int]bool{}, map[int]bool{}
	take(fresh, freshTarget, usedFresh)
	take(retouch, volume-len(out), usedRetouch)
	take(fresh, volume-len(out), usedFresh)
	return out
}
