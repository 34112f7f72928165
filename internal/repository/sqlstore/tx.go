package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/store"
)

type tx struct {
	tx *sql.Tx
	d  Dialect
}

var _ store.Tx = (*tx)(nil)

func (t *tx) q(query string) string { return t.d.Rebind(query) }

// fail classifies a driver error and adds the operation name.
func (t *tx) fail(op string, err error) error {
	return fmt.Errorf("%s: %w", op, t.d.classify(notFound(err)))
}

func (t *tx) GetContactForUpdate(ctx context.Context, key domain.ContactKey) (*domain.Contact, error) {
	row := t.tx.QueryRowContext(ctx, t.q(`SELECT `+contactColumns+`
		FROM contacts c WHERE c.email = ? AND c.client_id = ?`+t.d.ForUpdate), key.Email, key.ClientID)
	c, err := scanContact(row)
	if err != nil {
		return nil, t.fail("get contact", err)
	}
	return c, nil
}

func (t *tx) contactArgs(c *domain.Contact) []any {
	return []any{
		c.CompanyDomain, c.FirstName, c.LastName, c.Title, c.LinkedInURL, c.Phone,
		string(c.DispositionStatus), t.d.t(c.DispositionUpdatedAt),
		t.d.tp(c.EmailState.LastContacted), t.d.tp(c.EmailState.CooldownUntil), c.EmailState.Suppressed,
		t.d.tp(c.LinkedInState.LastContacted), t.d.tp(c.LinkedInState.CooldownUntil), c.LinkedInState.Suppressed,
		t.d.tp(c.PhoneState.LastContacted), t.d.tp(c.PhoneState.CooldownUntil), c.PhoneState.Suppressed,
		t.d.tp(c.DataEnrichedAt), c.SequenceCount, c.SourceSystem, c.SourceID,
	}
}

func (t *tx) InsertContact(ctx context.Context, c *domain.Contact) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.DispositionUpdatedAt
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	args := append([]any{c.Email, c.ClientID}, t.contactArgs(c)...)
	args = append(args, t.d.t(c.CreatedAt), t.d.t(c.UpdatedAt))
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO contacts (
		email, client_id, company_domain, first_name, last_name, title, linkedin_url, phone,
		disposition_status, disposition_updated_at,
		email_last_contacted, email_cooldown_until, email_suppressed,
		linkedin_last_contacted, linkedin_cooldown_until, linkedin_suppressed,
		phone_last_contacted, phone_cooldown_until, phone_suppressed,
		data_enriched_at, sequence_count, source_system, source_id,
		version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`), args...)
	if err != nil {
		return t.fail("insert contact", err)
	}
	c.Version = 1
	return nil
}

func (t *tx) UpdateContact(ctx context.Context, c *domain.Contact, expectedVersion int64) error {
	args := append(t.contactArgs(c), t.d.t(c.UpdatedAt), c.Email, c.ClientID, expectedVersion)
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE contacts SET
		company_domain = ?, first_name = ?, last_name = ?, title = ?, linkedin_url = ?, phone = ?,
		disposition_status = ?, disposition_updated_at = ?,
		email_last_contacted = ?, email_cooldown_until = ?, email_suppressed = ?,
		linkedin_last_contacted = ?, linkedin_cooldown_until = ?, linkedin_suppressed = ?,
		phone_last_contacted = ?, phone_cooldown_until = ?, phone_suppressed = ?,
		data_enriched_at = ?, sequence_count = ?, source_system = ?, source_id = ?,
		version = version + 1, updated_at = ?
		WHERE email = ? AND client_id = ? AND version = ?`), args...)
	if err != nil {
		return t.fail("update contact", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("update contact %s: %w", c.Key(), store.ErrStaleWrite)
	}
	c.Version = expectedVersion + 1
	return nil
}

func (t *tx) EnsureCompany(ctx context.Context, dom, name string, now time.Time) (*domain.Company, error) {
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO companies (domain, name, company_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (domain) DO NOTHING`),
		dom, name, string(domain.CompanyFresh), t.d.t(now), t.d.t(now))
	if err != nil {
		return nil, t.fail("ensure company", err)
	}
	return t.GetCompanyForUpdate(ctx, dom)
}

func (t *tx) GetCompanyForUpdate(ctx context.Context, dom string) (*domain.Company, error) {
	row := t.tx.QueryRowContext(ctx, t.q(`SELECT `+companyColumns+`
		FROM companies co WHERE co.domain = ?`+t.d.ForUpdate), dom)
	co, err := scanCompany(row)
	if err != nil {
		return nil, t.fail("get company", err)
	}
	return co, nil
}

func (t *tx) SaveCompanyRollup(ctx context.Context, co *domain.Company) error {
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE companies SET
		name = ?, company_status = ?,
		company_suppressed = ?, suppressed_reason = ?, suppressed_at = ?,
		contacts_total = ?, contacts_in_sequence = ?, contacts_touched = ?,
		last_contact_date = ?, company_cooldown_until = ?,
		is_customer = ?, customer_since = ?, updated_at = ?
		WHERE domain = ?`),
		co.Name, string(co.Status),
		co.Suppressed, co.SuppressedReason, t.d.tp(co.SuppressedAt),
		co.ContactsTotal, co.ContactsInSequence, co.ContactsTouched,
		t.d.tp(co.LastContactDate), t.d.tp(co.CooldownUntil),
		co.IsCustomer, t.d.tp(co.CustomerSince), t.d.t(co.UpdatedAt),
		co.Domain)
	if err != nil {
		return t.fail("save company", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save company %s: %w", co.Domain, store.ErrNotFound)
	}
	return nil
}

func (t *tx) CompareAndSwapOwnership(ctx context.Context, dom string, expectedEpoch int64, next domain.Ownership, now time.Time) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE companies SET
		client_owner_id = ?, client_owned_at = ?, ownership_expires_at = ?,
		ownership_epoch = ownership_epoch + 1, updated_at = ?
		WHERE domain = ? AND ownership_epoch = ?`),
		nullString(next.OwnerID), t.d.tp(next.OwnedAt), t.d.tp(next.ExpiresAt), t.d.t(now),
		dom, expectedEpoch)
	if err != nil {
		return false, t.fail("swap ownership", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, t.fail("swap ownership", err)
	}
	return n == 1, nil
}

func (t *tx) AppendDispositionChange(ctx context.Context, h *domain.DispositionChange) error {
	var meta any
	if len(h.Metadata) > 0 {
		b, err := json.Marshal(h.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	err := t.tx.QueryRowContext(ctx, t.q(`INSERT INTO disposition_history
		(email, client_id, previous_status, new_status, reason, triggered_by, campaign_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		h.Email, h.ClientID, string(h.PreviousStatus), string(h.NewStatus),
		h.Reason, h.TriggeredBy, h.CampaignID, meta, t.d.t(h.CreatedAt),
	).Scan(&h.ID)
	if err != nil {
		return t.fail("append disposition change", err)
	}
	return nil
}

func (t *tx) AppendOwnershipChange(ctx context.Context, h *domain.OwnershipChange) error {
	err := t.tx.QueryRowContext(ctx, t.q(`INSERT INTO client_ownership
		(company_domain, previous_owner_id, new_owner_id, change_reason, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		h.CompanyDomain, nullString(h.PreviousOwner), nullString(h.NewOwner), string(h.Reason), t.d.t(h.CreatedAt),
	).Scan(&h.ID)
	if err != nil {
		return t.fail("append ownership change", err)
	}
	return nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *domain.CampaignAssignment) error {
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO campaign_assignments
		(id, email, client_id, campaign_id, channel, assigned_at, completed_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.Email, a.ClientID, a.CampaignID, string(a.Channel), t.d.t(a.AssignedAt), t.d.tp(a.CompletedAt), a.Outcome)
	if err != nil {
		return t.fail("insert assignment", err)
	}
	return nil
}

func (t *tx) CompleteAssignment(ctx context.Context, id, outcome string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.q(`UPDATE campaign_assignments SET completed_at = ?, outcome = ?
		WHERE id = ? AND completed_at IS NULL`), t.d.t(at), outcome, id)
	if err != nil {
		return false, t.fail("complete assignment", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	var exists int
	err = t.tx.QueryRowContext(ctx, t.q(`SELECT 1 FROM campaign_assignments WHERE id = ?`), id).Scan(&exists)
	if err != nil {
		return false, t.fail("complete assignment", err)
	}
	return false, nil
}

func (t *tx) UpsertSnapshot(ctx context.Context, s *domain.TamSnapshot) error {
	var eta any
	if s.ExhaustionEtaWeeks != nil {
		eta = *s.ExhaustionEtaWeeks
	}
	_, err := t.tx.ExecContext(ctx, t.q(`INSERT INTO tam_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (snapshot_date, client_id) DO UPDATE SET
			total_universe = excluded.total_universe,
			available_now = excluded.available_now,
			in_cooldown = excluded.in_cooldown,
			in_sequence = excluded.in_sequence,
			permanently_suppressed = excluded.permanently_suppressed,
			won = excluded.won,
			never_touched = excluded.never_touched,
			burn_rate_weekly = excluded.burn_rate_weekly,
			exhaustion_eta_weeks = excluded.exhaustion_eta_weeks`),
		t.d.t(domain.SnapshotDay(s.SnapshotDate)), s.ClientID, s.TotalUniverse, s.AvailableNow, s.InCooldown,
		s.InSequence, s.PermanentlySuppressed, s.Won, s.NeverTouched,
		s.BurnRateWeekly, eta, t.d.t(s.CreatedAt))
	if err != nil {
		return t.fail("upsert snapshot", err)
	}
	return nil
}
