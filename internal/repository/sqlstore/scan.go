package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
)

// dbTime scans a nullable timestamp stored either natively or as Unix
// milliseconds.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
	case int64:
		t.Time, t.Valid = time.UnixMilli(x).UTC(), true
	case []byte:
		return t.Scan(string(x))
	case string:
		ms, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return fmt.Errorf("scan time %q: %w", x, err)
		}
		t.Time, t.Valid = time.UnixMilli(ms).UTC(), true
	default:
		return fmt.Errorf("scan time: unsupported type %T", v)
	}
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const contactColumns = `c.email, c.client_id, c.company_domain, c.first_name, c.last_name, c.title,
	c.linkedin_url, c.phone, c.disposition_status, c.disposition_updated_at,
	c.email_last_contacted, c.email_cooldown_until, c.email_suppressed,
	c.linkedin_last_contacted, c.linkedin_cooldown_until, c.linkedin_suppressed,
	c.phone_last_contacted, c.phone_cooldown_until, c.phone_suppressed,
	c.data_enriched_at, c.sequence_count, c.source_system, c.source_id,
	c.version, c.created_at, c.updated_at`

func scanChannel(last, until *dbTime, suppressed *bool) []any {
	return []any{last, until, suppressed}
}

func contactDest(c *domain.Contact, ts *[10]dbTime, sup *[3]bool) []any {
	dest := []any{
		&c.Email, &c.ClientID, &c.CompanyDomain, &c.FirstName, &c.LastName, &c.Title,
		&c.LinkedInURL, &c.Phone, &c.DispositionStatus, &ts[0],
	}
	dest = append(dest, scanChannel(&ts[1], &ts[2], &sup[0])...)
	dest = append(dest, scanChannel(&ts[3], &ts[4], &sup[1])...)
	dest = append(dest, scanChannel(&ts[5], &ts[6], &sup[2])...)
	dest = append(dest, &ts[7], &c.SequenceCount, &c.SourceSystem, &c.SourceID, &c.Version, &ts[8], &ts[9])
	return dest
}

func finishContact(c *domain.Contact, ts *[10]dbTime, sup *[3]bool) {
	c.DispositionUpdatedAt = ts[0].Time
	c.EmailState = domain.ChannelState{LastContacted: ts[1].ptr(), CooldownUntil: ts[2].ptr(), Suppressed: sup[0]}
	c.LinkedInState = domain.ChannelState{LastContacted: ts[3].ptr(), CooldownUntil: ts[4].ptr(), Suppressed: sup[1]}
	c.PhoneState = domain.ChannelState{LastContacted: ts[5].ptr(), CooldownUntil: ts[6].ptr(), Suppressed: sup[2]}
	c.DataEnrichedAt = ts[7].ptr()
	c.CreatedAt = ts[8].Time
	c.UpdatedAt = ts[9].Time
}

func scanContact(r rowScanner) (*domain.Contact, error) {
	var (
		c   domain.Contact
		ts  [10]dbTime
		sup [3]bool
	)
	if err := r.Scan(contactDest(&c, &ts, &sup)...); err != nil {
		return nil, err
	}
	finishContact(&c, &ts, &sup)
	return &c, nil
}

const companyColumns = `co.domain, co.name, co.company_status,
	co.company_suppressed, co.suppressed_reason, co.suppressed_at,
	co.contacts_total, co.contacts_in_sequence, co.contacts_touched,
	co.last_contact_date, co.company_cooldown_until, co.is_customer, co.customer_since,
	co.client_owner_id, co.client_owned_at, co.ownership_expires_at, co.ownership_epoch,
	co.created_at, co.updated_at`

type companyScan struct {
	co    domain.Company
	ts    [8]dbTime
	owner sql.NullString
}

func (s *companyScan) dest() []any {
	co := &s.co
	return []any{
		&co.Domain, &co.Name, &co.Status,
		&co.Suppressed, &co.SuppressedReason, &s.ts[0],
		&co.ContactsTotal, &co.ContactsInSequence, &co.ContactsTouched,
		&s.ts[1], &s.ts[2], &co.IsCustomer, &s.ts[3],
		&s.owner, &s.ts[4], &s.ts[5], &co.OwnershipEpoch,
		&s.ts[6], &s.ts[7],
	}
}

func (s *companyScan) finish() *domain.Company {
	co := s.co
	co.SuppressedAt = s.ts[0].ptr()
	co.LastContactDate = s.ts[1].ptr()
	co.CooldownUntil = s.ts[2].ptr()
	co.CustomerSince = s.ts[3].ptr()
	co.Ownership = domain.Ownership{OwnerID: s.owner.String, OwnedAt: s.ts[4].ptr(), ExpiresAt: s.ts[5].ptr()}
	co.CreatedAt = s.ts[6].Time
	co.UpdatedAt = s.ts[7].Time
	return &co
}

func scanCompany(r rowScanner) (*domain.Company, error) {
	var s companyScan
	if err := r.Scan(s.dest()...); err != nil {
		return nil, err
	}
	return s.finish(), nil
}

func scanCandidate(r rowScanner) (domain.Contact, domain.Company, error) {
	var (
		c   domain.Contact
		ts  [10]dbTime
		sup [3]bool
		cs  companyScan
	)
	dest := append(contactDest(&c, &ts, &sup), cs.dest()...)
	if err := r.Scan(dest...); err != nil {
		return domain.Contact{}, domain.Company{}, err
	}
	finishContact(&c, &ts, &sup)
	return c, *cs.finish(), nil
}

const snapshotColumns = `snapshot_date, client_id, total_universe, available_now, in_cooldown,
	in_sequence, permanently_suppressed, won, never_touched,
	burn_rate_weekly, exhaustion_eta_weeks, created_at`

func scanSnapshot(r rowScanner) (domain.TamSnapshot, error) {
	var (
		s        domain.TamSnapshot
		day, cat dbTime
		eta      sql.NullFloat64
	)
	err := r.Scan(&day, &s.ClientID, &s.TotalUniverse, &s.AvailableNow, &s.InCooldown,
		&s.InSequence, &s.PermanentlySuppressed, &s.Won, &s.NeverTouched,
		&s.BurnRateWeekly, &eta, &cat)
	if err != nil {
		return s, err
	}
	s.SnapshotDate = domain.SnapshotDay(day.Time)
	s.CreatedAt = cat.Time
	if eta.Valid {
		v := eta.Float64
		s.ExhaustionEtaWeeks = &v
	}
	return s, nil
}

const assignmentColumns = `id, email, client_id, campaign_id, channel, assigned_at, completed_at, outcome`

func scanAssignment(r rowScanner) (*domain.CampaignAssignment, error) {
	var (
		a        domain.CampaignAssignment
		at, done dbTime
	)
	if err := r.Scan(&a.ID, &a.Email, &a.ClientID, &a.CampaignID, &a.Channel, &at, &done, &a.Outcome); err != nil {
		return nil, err
	}
	a.AssignedAt = at.Time
	a.CompletedAt = done.ptr()
	return &a, nil
}

const dispositionColumns = `id, email, client_id, previous_status, new_status, reason, triggered_by, campaign_id, metadata, created_at`

func scanDispositionChange(r rowScanner) (domain.DispositionChange, error) {
	var (
		h    domain.DispositionChange
		meta []byte
		at   dbTime
	)
	err := r.Scan(&h.ID, &h.Email, &h.ClientID, &h.PreviousStatus, &h.NewStatus,
		&h.Reason, &h.TriggeredBy, &h.CampaignID, &meta, &at)
	if err != nil {
		return h, err
	}
	h.CreatedAt = at.Time
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &h.Metadata); err != nil {
			return h, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return h, nil
}

const ownershipColumns = `id, company_domain, previous_owner_id, new_owner_id, change_reason, created_at`

func scanOwnershipChange(r rowScanner) (domain.OwnershipChange, error) {
	var (
		h         domain.OwnershipChange
		prev, nxt sql.NullString
		at        dbTime
	)
	if err := r.Scan(&h.ID, &h.CompanyDomain, &prev, &nxt, &h.Reason, &at); err != nil {
		return h, err
	}
	h.PreviousOwner = prev.String
	h.NewOwner = nxt.String
	h.CreatedAt = at.Time
	return h, nil
}
