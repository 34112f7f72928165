// Package ingest is where contacts enter the engine. Creating a contact
// upserts its company and bumps the company's contact counter in the same
// transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/pkg/hostname"
	"github.com/ignite/lead-disposition/internal/pkg/logger"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/rollup"
	"github.com/ignite/lead-disposition/internal/store"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var log = logger.With("ingest")

// NewContact is a contact as delivered by a lead source.
type NewContact struct {
	Email         string `json:"email"`
	ClientID      string `json:"client_id"`
	CompanyDomain string `json:"company_domain,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Title         string `json:"title,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`
	Phone         string `json:"phone,omitempty"`
	SourceSystem  string `json:"source_system,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
}

// Service creates contacts.
type Service struct {
	st  store.Store
	pol policy.Policy
}

// NewService creates an ingest service backed by st.
func NewService(st store.Store, pol policy.Policy) *Service {
	return &Service{st: st, pol: pol}
}

// NormalizeEmail lower-cases and trims an address and checks its shape.
func NormalizeEmail(raw string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if !emailRegex.MatchString(e) {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidEmail)
	}
	return e, nil
}

func (s *Service) build(nc NewContact, now time.Time) (domain.Contact, error) {
	if strings.TrimSpace(nc.ClientID) == "" {
		return domain.Contact{}, ErrMissingClient
	}
	email, err := NormalizeEmail(nc.Email)
	if err != nil {
		return domain.Contact{}, err
	}
	var dom string
	if nc.CompanyDomain != "" {
		dom, err = hostname.Normalize(nc.CompanyDomain)
	} else {
		dom, err = hostname.FromEmail(email)
	}
	if err != nil {
		return domain.Contact{}, fmt.Errorf("company domain for %s: %w", email, err)
	}
	return domain.Contact{
		Email:                email,
		ClientID:             strings.TrimSpace(nc.ClientID),
		CompanyDomain:        dom,
		FirstName:            strings.TrimSpace(nc.FirstName),
		LastName:             strings.TrimSpace(nc.LastName),
		Title:                strings.TrimSpace(nc.Title),
		LinkedInURL:          strings.TrimSpace(nc.LinkedInURL),
		Phone:                strings.TrimSpace(nc.Phone),
		DispositionStatus:    domain.StatusFresh,
		DispositionUpdatedAt: now,
		SourceSystem:         nc.SourceSystem,
		SourceID:             nc.SourceID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// CreateContact stores a fresh contact. The company is created on first
// reference. A repeated (email, client_id) returns store.ErrDuplicateKey.
func (s *Service) CreateContact(ctx context.Context, nc NewContact) (*domain.Contact, error) {
	now := s.pol.Now()
	c, err := s.build(nc, now)
	if err != nil {
		return nil, err
	}
	err = s.st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		co, err := tx.EnsureCompany(ctx, c.CompanyDomain, strings.TrimSpace(nc.CompanyName), now)
		if err != nil {
			return err
		}
		if err := tx.InsertContact(ctx, &c); err != nil {
			return err
		}
		rollup.Apply(co, rollup.ForCreate(c))
		co.UpdatedAt = now
		return tx.SaveCompanyRollup(ctx, co)
	})
	if err != nil {
		return nil, fmt.Errorf("create contact %s: %w", c.Key(), err)
	}
	return &c, nil
}

// BulkResult counts a BulkCreate pass.
type BulkResult struct {
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors,omitempty"`
}

const maxSampleErrors = 10

func (r *BulkResult) sample(msg string) {
	if len(r.Errors) < maxSampleErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// BulkCreate creates each contact in its own transaction. Duplicates and
// invalid rows are counted and skipped. Any other store error stops the
// batch.
func (s *Service) BulkCreate(ctx context.Context, rows []NewContact) (BulkResult, error) {
	var res BulkResult
	for i, nc := range rows {
		_, err := s.CreateContact(ctx, nc)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, store.ErrDuplicateKey):
			res.Duplicates++
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrMissingClient), errors.Is(err, hostname.ErrInvalid):
			res.Invalid++
			res.sample(fmt.Sprintf("row %d: %v", i+1, err))
		default:
			return res, err
		}
	}
	if res.Duplicates > 0 || res.Invalid > 0 {
		log.Info("bulk create finished", "created", res.Created, "duplicates", res.Duplicates, "invalid", res.Invalid)
	}
	return res, nil
}
