package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/store"
)

func (s *Store) GetContact(ctx context.Context, key domain.ContactKey) (*domain.Contact, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+contactColumns+`
		FROM contacts c WHERE c.email = ? AND c.client_id = ?`), key.Email, key.ClientID)
	c, err := scanContact(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context, f store.ContactFilter) ([]domain.Contact, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != "" {
		where = append(where, "c.client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.CompanyDomain != "" {
		where = append(where, "c.company_domain = ?")
		args = append(args, f.CompanyDomain)
	}
	if f.Status != "" {
		where = append(where, "c.disposition_status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + contactColumns + ` FROM contacts c`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY c.client_id, c.email`
	q, args = limitOffset(q, args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, s.q(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func limitOffset(q string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
		if offset > 0 {
			q += ` OFFSET ?`
			args = append(args, offset)
		}
	}
	return q, args
}

func (s *Store) GetCompany(ctx context.Context, dom string) (*domain.Company, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+companyColumns+`
		FROM companies co WHERE co.domain = ?`), dom)
	co, err := scanCompany(row)
	if err != nil {
		return nil, notFound(err)
	}
	return co, nil
}

// channelPrefix maps a channel to its column prefix. Only known channels
// reach SQL text.
func channelPrefix(ch domain.Channel) (string, error) {
	switch ch {
	case domain.ChannelEmail, domain.ChannelLinkedIn, domain.ChannelPhone:
		return string(ch), nil
	case "":
		return string(domain.ChannelEmail), nil
	}
	return "", fmt.Errorf("unknown channel %q", ch)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// FindAvailable pushes the availability predicate into one indexed query.
func (s *Store) FindAvailable(ctx context.Context, q store.AvailabilityQuery) ([]store.Candidate, error) {
	prefix, err := channelPrefix(q.Channel)
	if err != nil {
		return nil, err
	}
	statuses := q.EligibleStatuses()
	if len(statuses) == 0 {
		return nil, nil
	}
	now := s.dialect.t(q.At)

	var b strings.Builder
	args := []any{q.ClientID}
	b.WriteString(`SELECT ` + contactColumns + `, ` + companyColumns + `
		FROM contacts c JOIN companies co ON co.domain = c.company_domain
		WHERE c.client_id = ?
		  AND c.disposition_status IN (` + placeholders(len(statuses)) + `)`)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	fmt.Fprintf(&b, `
		  AND c.%[1]s_suppressed = FALSE
		  AND (c.%[1]s_cooldown_until IS NULL OR c.%[1]s_cooldown_until <= ?)
		  AND co.company_suppressed = FALSE
		  AND (co.company_cooldown_until IS NULL OR co.company_cooldown_until <= ?)
		  AND (co.client_owner_id IS NULL OR co.client_owner_id = ? OR co.ownership_expires_at <= ?)`, prefix)
	args = append(args, now, now, q.ClientID, now)
	if !q.IncludeCustomers {
		b.WriteString(` AND co.is_customer = FALSE`)
	}
	if kws := q.NormalizedKeywords(); len(kws) > 0 {
		ors := make([]string, len(kws))
		for i, k := range kws {
			ors[i] = `LOWER(c.title) LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(k)+"%")
		}
		b.WriteString(` AND (` + strings.Join(ors, " OR ") + `)`)
	}
	b.WriteString(`
		ORDER BY CASE WHEN c.disposition_status = 'fresh' THEN 0 ELSE 1 END,
		         c.data_enriched_at IS NULL, c.data_enriched_at DESC,
		         c.sequence_count, c.email`)
	query, args := limitOffset(b.String(), args, q.Limit, 0)

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find available: %w", err)
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		c, co, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, store.Candidate{Contact: c, Company: co})
	}
	return out, rows.Err()
}

func (s *Store) ContactHistory(ctx context.Context, key domain.ContactKey, limit int) ([]domain.DispositionChange, error) {
	q, args := limitOffset(`SELECT `+dispositionColumns+` FROM disposition_history
		WHERE email = ? AND client_id = ? ORDER BY created_at DESC, id DESC`,
		[]any{key.Email, key.ClientID}, limit, 0)
	rows, err := s.db.QueryContext(ctx, s.q(q), args...)
	if err != nil {
		return nil, fmt.Errorf("contact history: %w", err)
	}
	defer rows.Close()

	var out []domain.DispositionChange
	for rows.Next() {
		h, err := scanDispositionChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan disposition change: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) OwnershipHistory(ctx context.Context, dom string, limit int) ([]domain.OwnershipChange, error) {
	q, args := limitOffset(`SELECT `+ownershipColumns+` FROM client_ownership
		WHERE company_domain = ? ORDER BY created_at DESC, id DESC`,
		[]any{dom}, limit, 0)
	rows, err := s.db.QueryContext(ctx, s.q(q), args...)
	if err != nil {
		return nil, fmt.Errorf("ownership history: %w", err)
	}
	defer rows.Close()

	var out []domain.OwnershipChange
	for rows.Next() {
		h, err := scanOwnershipChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ownership change: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) companies(ctx context.Context, query string, args ...any) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Company
	for rows.Next() {
		co, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, *co)
	}
	return out, rows.Err()
}

func (s *Store) ListOwned(ctx context.Context, clientID string, now time.Time) ([]domain.Company, error) {
	out, err := s.companies(ctx, `SELECT `+companyColumns+` FROM companies co
		WHERE co.client_owner_id = ? AND co.ownership_expires_at > ?
		ORDER BY co.domain`, clientID, s.dialect.t(now))
	if err != nil {
		return nil, fmt.Errorf("list owned: %w", err)
	}
	return out, nil
}

func (s *Store) ExpiredLeases(ctx context.Context, now time.Time, limit int) ([]domain.Company, error) {
	q, args := limitOffset(`SELECT `+companyColumns+` FROM companies co
		WHERE co.client_owner_id IS NOT NULL AND co.ownership_expires_at <= ?
		ORDER BY co.ownership_expires_at, co.domain`, []any{s.dialect.t(now)}, limit, 0)
	out, err := s.companies(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("expired leases: %w", err)
	}
	return out, nil
}

func (s *Store) keys(ctx context.Context, query string, args ...any) ([]domain.ContactKey, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ContactKey
	for rows.Next() {
		var k domain.ContactKey
		if err := rows.Scan(&k.ClientID, &k.Email); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func statusArgs(statuses []domain.DispositionStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (s *Store) ExpiredCooldowns(ctx context.Context, statuses []domain.DispositionStatus, now time.Time, limit int) ([]domain.ContactKey, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	t := s.dialect.t(now)
	args := append(statusArgs(statuses), t, t, t)
	q, args := limitOffset(`SELECT client_id, email FROM contacts
		WHERE disposition_status IN (`+placeholders(len(statuses))+`)
		  AND (email_cooldown_until IS NULL OR email_cooldown_until <= ?)
		  AND (linkedin_cooldown_until IS NULL OR linkedin_cooldown_until <= ?)
		  AND (phone_cooldown_until IS NULL OR phone_cooldown_until <= ?)
		ORDER BY client_id, email`, args, limit, 0)
	out, err := s.keys(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("expired cooldowns: %w", err)
	}
	return out, nil
}

func (s *Store) StaleContacts(ctx context.Context, statuses []domain.DispositionStatus, cutoff time.Time, limit int) ([]domain.ContactKey, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append(statusArgs(statuses), s.dialect.t(cutoff))
	q, args := limitOffset(`SELECT client_id, email FROM contacts
		WHERE disposition_status IN (`+placeholders(len(statuses))+`)
		  AND data_enriched_at IS NOT NULL AND data_enriched_at < ?
		ORDER BY client_id, email`, args, limit, 0)
	out, err := s.keys(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stale contacts: %w", err)
	}
	return out, nil
}

func (s *Store) ScanClient(ctx context.Context, clientID string, fn func(domain.Contact, domain.Company) error) error {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+contactColumns+`, `+companyColumns+`
		FROM contacts c JOIN companies co ON co.domain = c.company_domain
		WHERE c.client_id = ?`), clientID)
	if err != nil {
		return fmt.Errorf("scan client: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, co, err := scanCandidate(rows)
		if err != nil {
			return fmt.Errorf("scan client row: %w", err)
		}
		if err := fn(c, co); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) snapshots(ctx context.Context, query string, args ...any) ([]domain.TamSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TamSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) PriorSnapshots(ctx context.Context, clientID string, before time.Time, n int) ([]domain.TamSnapshot, error) {
	q, args := limitOffset(`SELECT `+snapshotColumns+` FROM tam_snapshots
		WHERE client_id = ? AND snapshot_date < ?
		ORDER BY snapshot_date DESC`, []any{clientID, s.dialect.t(domain.SnapshotDay(before))}, n, 0)
	out, err := s.snapshots(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("prior snapshots: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Snapshots(ctx context.Context, clientID string, since time.Time) ([]domain.TamSnapshot, error) {
	out, err := s.snapshots(ctx, `SELECT `+snapshotColumns+` FROM tam_snapshots
		WHERE client_id = ? AND snapshot_date >= ?
		ORDER BY snapshot_date`, clientID, s.dialect.t(domain.SnapshotDay(since)))
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}
	return out, nil
}

func (s *Store) DistinctClients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT client_id FROM contacts ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("distinct clients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*domain.CampaignAssignment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+assignmentColumns+` FROM campaign_assignments WHERE id = ?`), id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, key domain.ContactKey) ([]domain.CampaignAssignment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+assignmentColumns+` FROM campaign_assignments
		WHERE email = ? AND client_id = ? ORDER BY assigned_at, id`), key.Email, key.ClientID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
