package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/lead-disposition/internal/pkg/hostname"
	"github.com/ignite/lead-disposition/internal/store"
)

// Contact fields a CSV column can map to.
const (
	FieldEmail     = "email"
	FieldDomain    = "company_domain"
	FieldCompany   = "company_name"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldTitle     = "title"
	FieldLinkedIn  = "linkedin_url"
	FieldPhone     = "phone"
	FieldSourceID  = "source_id"
)

// Common header aliases for auto-mapping.
var headerAliases = map[string][]string{
	FieldEmail:     {"email", "email_address", "e-mail", "emailaddress", "mail", "work_email"},
	FieldDomain:    {"company_domain", "domain", "website", "company_website", "url"},
	FieldCompany:   {"company_name", "company", "companyname", "organization", "org", "account"},
	FieldFirstName: {"first_name", "firstname", "first", "fname", "given_name"},
	FieldLastName:  {"last_name", "lastname", "last", "lname", "surname", "family_name"},
	FieldTitle:     {"title", "job_title", "jobtitle", "position", "role"},
	FieldLinkedIn:  {"linkedin_url", "linkedin", "linkedin_profile", "li_url"},
	FieldPhone:     {"phone", "phone_number", "mobile", "direct_phone", "tel"},
	FieldSourceID:  {"source_id", "id", "external_id", "record_id"},
}

// ColumnMap maps contact fields to CSV header names.
type ColumnMap map[string]string

// DetectColumns builds a ColumnMap from a header row using known aliases.
func DetectColumns(header []string) ColumnMap {
	m := ColumnMap{}
	for _, h := range header {
		norm := strings.ToLower(strings.TrimSpace(h))
		norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
		for field, aliases := range headerAliases {
			if _, done := m[field]; done {
				continue
			}
			for _, a := range aliases {
				if norm == a {
					m[field] = h
					break
				}
			}
		}
	}
	return m
}

// ImportResult counts an import.
type ImportResult struct {
	TotalRows  int      `json:"total_rows"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// ImportCSV reads a CSV with a header row and creates one contact per data
// row for clientID. A nil or empty cols is detected from the header. Rows
// without a valid email are skipped; the company domain falls back to the
// email's domain.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, clientID string, cols ColumnMap, source string) (ImportResult, error) {
	var res ImportResult
	if strings.TrimSpace(clientID) == "" {
		return res, ErrMissingClient
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return res, ErrEmptyFile
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	// Spreadsheet exports often lead with a UTF-8 byte order mark.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if len(cols) == 0 {
		cols = DetectColumns(header)
	}

	index := make(map[string]int, len(cols))
	for field, name := range cols {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
				index[field] = i
				break
			}
		}
	}
	if _, ok := index[FieldEmail]; !ok {
		return res, ErrMissingEmailColumn
	}

	cell := func(row []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			res.Skipped++
			res.sample(fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		res.TotalRows++

		nc := NewContact{
			Email:         cell(row, FieldEmail),
			ClientID:      clientID,
			CompanyDomain: cell(row, FieldDomain),
			CompanyName:   cell(row, FieldCompany),
			FirstName:     cell(row, FieldFirstName),
			LastName:      cell(row, FieldLastName),
			Title:         cell(row, FieldTitle),
			LinkedInURL:   cell(row, FieldLinkedIn),
			Phone:         cell(row, FieldPhone),
			SourceSystem:  source,
			SourceID:      cell(row, FieldSourceID),
		}
		if nc.CompanyDomain != "" {
			if _, err := hostname.Normalize(nc.CompanyDomain); err != nil {
				nc.CompanyDomain = ""
			}
		}

		_, err = s.CreateContact(ctx, nc)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, store.ErrDuplicateKey):
			res.Duplicates++
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, hostname.ErrInvalid):
			res.Skipped++
			res.sample(fmt.Sprintf("line %d: invalid email '%s'", line, nc.Email))
		default:
			return res, fmt.Errorf("import line %d: %w", line, err)
		}
	}

	log.Info("csv import finished",
		"client_id", clientID,
		"total_rows", res.TotalRows,
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"skipped", res.Skipped,
	)
	return res, nil
}

func (r *ImportResult) sample(msg string) {
	if len(r.Errors) < maxSampleErrors {
		r.Errors = append(r.Errors, msg)
	}
}
