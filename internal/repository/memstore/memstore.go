// Package memstore is an in-memory store.Store. Transactions hold a single
// writer lock and buffer their writes in an overlay that is merged on
// commit, so a failed callback leaves no trace.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
	"github.com/ignite/lead-disposition/internal/store"
)

type snapKey struct {
	date     int64
	clientID string
}

// Store keeps everything in maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	contacts    map[domain.ContactKey]domain.Contact
	companies   map[string]domain.Company
	disposition []domain.DispositionChange
	ownership   []domain.OwnershipChange
	assignments map[string]domain.CampaignAssignment
	snapshots   map[snapKey]domain.TamSnapshot
	nextID      int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		contacts:    make(map[domain.ContactKey]domain.Contact),
		companies:   make(map[string]domain.Company),
		assignments: make(map[string]domain.CampaignAssignment),
		snapshots:   make(map[snapKey]domain.TamSnapshot),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InTx runs fn under the writer lock and commits its overlay on success.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:           s,
		contacts:    make(map[domain.ContactKey]domain.Contact),
		companies:   make(map[string]domain.Company),
		assignments: make(map[string]domain.CampaignAssignment),
		snapshots:   make(map[snapKey]domain.TamSnapshot),
		nextID:      s.nextID,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetContact(_ context.Context, key domain.ContactKey) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListContacts(_ context.Context, f store.ContactFilter) ([]domain.Contact, error) {
	s.mu.RLock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if f.ClientID != "" && c.ClientID != f.ClientID {
			continue
		}
		if f.CompanyDomain != "" && c.CompanyDomain != f.CompanyDomain {
			continue
		}
		if f.Status != "" && c.DispositionStatus != f.Status {
			continue
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID != out[j].ClientID {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].Email < out[j].Email
	})
	return page(out, f.Offset, f.Limit), nil
}

func page[T any](in []T, offset, limit int) []T {
	if offset > len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func (s *Store) GetCompany(_ context.Context, dom string) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	co, ok := s.companies[dom]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &co, nil
}

func (s *Store) FindAvailable(_ context.Context, q store.AvailabilityQuery) ([]store.Candidate, error) {
	s.mu.RLock()
	var out []store.Candidate
	for _, c := range s.contacts {
		co, ok := s.companies[c.CompanyDomain]
		if !ok {
			continue
		}
		if eligibility.Matches(q, c, co) {
			out = append(out, store.Candidate{Contact: c, Company: co})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return lessCandidate(out[i].Contact, out[j].Contact) })
	return page(out, 0, q.Limit), nil
}

// lessCandidate orders fresh first, then most recently enriched (never
// enriched last), then fewest sequences, then email.
func lessCandidate(a, b domain.Contact) bool {
	af, bf := a.DispositionStatus == domain.StatusFresh, b.DispositionStatus == domain.StatusFresh
	if af != bf {
		return af
	}
	switch {
	case a.DataEnrichedAt != nil && b.DataEnrichedAt == nil:
		return true
	case a.DataEnrichedAt == nil && b.DataEnrichedAt != nil:
		return false
	case a.DataEnrichedAt != nil && !a.DataEnrichedAt.Equal(*b.DataEnrichedAt):
		return a.DataEnrichedAt.After(*b.DataEnrichedAt)
	}
	if a.SequenceCount != b.SequenceCount {
		return a.SequenceCount < b.SequenceCount
	}
	return a.Email < b.Email
}

func (s *Store) ContactHistory(_ context.Context, key domain.ContactKey, limit int) ([]domain.DispositionChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DispositionChange
	for i := len(s.disposition) - 1; i >= 0; i-- {
		h := s.disposition[i]
		if h.Email == key.Email && h.ClientID == key.ClientID {
			out = append(out, h)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) OwnershipHistory(_ context.Context, dom string, limit int) ([]domain.OwnershipChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OwnershipChange
	for i := len(s.ownership) - 1; i >= 0; i-- {
		h := s.ownership[i]
		if h.CompanyDomain == dom {
			out = append(out, h)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) ListOwned(_ context.Context, clientID string, now time.Time) ([]domain.Company, error) {
	s.mu.RLock()
	var out []domain.Company
	for _, co := range s.companies {
		if co.Ownership.OwnerID == clientID && co.Ownership.ActiveAt(now) {
			out = append(out, co)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (s *Store) ExpiredLeases(_ context.Context, now time.Time, limit int) ([]domain.Company, error) {
	s.mu.RLock()
	var out []domain.Company
	for _, co := range s.companies {
		if co.Ownership.Held() && !co.Ownership.ActiveAt(now) {
			out = append(out, co)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return page(out, 0, limit), nil
}

func (s *Store) ExpiredCooldowns(_ context.Context, statuses []domain.DispositionStatus, now time.Time, limit int) ([]domain.ContactKey, error) {
	return s.scanKeys(limit, func(c domain.Contact) bool {
		return hasStatus(statuses, c.DispositionStatus) && !c.AnyCooling(now)
	}), nil
}

func (s *Store) StaleContacts(_ context.Context, statuses []domain.DispositionStatus, cutoff time.Time, limit int) ([]domain.ContactKey, error) {
	return s.scanKeys(limit, func(c domain.Contact) bool {
		return hasStatus(statuses, c.DispositionStatus) && c.DataEnrichedAt != nil && c.DataEnrichedAt.Before(cutoff)
	}), nil
}

func (s *Store) scanKeys(limit int, match func(domain.Contact) bool) []domain.ContactKey {
	s.mu.RLock()
	var out []domain.ContactKey
	for k, c := range s.contacts {
		if match(c) {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return page(out, 0, limit)
}

func hasStatus(in []domain.DispositionStatus, s domain.DispositionStatus) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}

func (s *Store) ScanClient(ctx context.Context, clientID string, fn func(domain.Contact, domain.Company) error) error {
	type row struct {
		c  domain.Contact
		co domain.Company
	}
	s.mu.RLock()
	var rows []row
	for _, c := range s.contacts {
		if c.ClientID == clientID {
			rows = append(rows, row{c, s.companies[c.CompanyDomain]})
		}
	}
	s.mu.RUnlock()

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r.c, r.co); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PriorSnapshots(_ context.Context, clientID string, before time.Time, n int) ([]domain.TamSnapshot, error) {
	all := s.clientSnapshots(clientID, func(d time.Time) bool { return d.Before(before) })
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (s *Store) Snapshots(_ context.Context, clientID string, since time.Time) ([]domain.TamSnapshot, error) {
	return s.clientSnapshots(clientID, func(d time.Time) bool { return !d.Before(since) }), nil
}

func (s *Store) clientSnapshots(clientID string, keep func(time.Time) bool) []domain.TamSnapshot {
	s.mu.RLock()
	var out []domain.TamSnapshot
	for k, snap := range s.snapshots {
		if k.clientID == clientID && keep(snap.SnapshotDate) {
			out = append(out, snap)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.Before(out[j].SnapshotDate) })
	return out
}

func (s *Store) DistinctClients(_ context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]bool)
	for k := range s.contacts {
		seen[k.ClientID] = true
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (*domain.CampaignAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListAssignments(_ context.Context, key domain.ContactKey) ([]domain.CampaignAssignment, error) {
	s.mu.RLock()
	var out []domain.CampaignAssignment
	for _, a := range s.assignments {
		if a.Email == key.Email && a.ClientID == key.ClientID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

// memTx buffers writes until commit. The writer lock is held by InTx for
// its whole lifetime, so reads of s are safe without further locking.
type memTx struct {
	s *Store

	contacts    map[domain.ContactKey]domain.Contact
	companies   map[string]domain.Company
	disposition []domain.DispositionChange
	ownership   []domain.OwnershipChange
	assignments map[string]domain.CampaignAssignment
	snapshots   map[snapKey]domain.TamSnapshot
	nextID      int64
}

func (t *memTx) commit() {
	for k, c := range t.contacts {
		t.s.contacts[k] = c
	}
	for k, co := range t.companies {
		t.s.companies[k] = co
	}
	t.s.disposition = append(t.s.disposition, t.disposition...)
	t.s.ownership = append(t.s.ownership, t.ownership...)
	for k, a := range t.assignments {
		t.s.assignments[k] = a
	}
	for k, snap := range t.snapshots {
		t.s.snapshots[k] = snap
	}
	t.s.nextID = t.nextID
}

func (t *memTx) contact(key domain.ContactKey) (domain.Contact, bool) {
	if c, ok := t.contacts[key]; ok {
		return c, true
	}
	c, ok := t.s.contacts[key]
	return c, ok
}

func (t *memTx) company(dom string) (domain.Company, bool) {
	if co, ok := t.companies[dom]; ok {
		return co, true
	}
	co, ok := t.s.companies[dom]
	return co, ok
}

func (t *memTx) GetContactForUpdate(_ context.Context, key domain.ContactKey) (*domain.Contact, error) {
	c, ok := t.contact(key)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *memTx) InsertContact(_ context.Context, c *domain.Contact) error {
	key := c.Key()
	if _, ok := t.contact(key); ok {
		return store.ErrDuplicateKey
	}
	if _, ok := t.company(c.CompanyDomain); !ok {
		return store.ErrNotFound
	}
	c.Version = 1
	t.contacts[key] = *c
	return nil
}

func (t *memTx) UpdateContact(_ context.Context, c *domain.Contact, expectedVersion int64) error {
	cur, ok := t.contact(c.Key())
	if !ok {
		return store.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return store.ErrStaleWrite
	}
	c.Version = expectedVersion + 1
	t.contacts[c.Key()] = *c
	return nil
}

func (t *memTx) EnsureCompany(_ context.Context, dom, name string, now time.Time) (*domain.Company, error) {
	if co, ok := t.company(dom); ok {
		return &co, nil
	}
	co := domain.Company{
		Domain:    dom,
		Name:      name,
		Status:    domain.CompanyFresh,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.companies[dom] = co
	return &co, nil
}

func (t *memTx) GetCompanyForUpdate(_ context.Context, dom string) (*domain.Company, error) {
	co, ok := t.company(dom)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &co, nil
}

func (t *memTx) SaveCompanyRollup(_ context.Context, co *domain.Company) error {
	cur, ok := t.company(co.Domain)
	if !ok {
		return store.ErrNotFound
	}
	next := *co
	next.Ownership = cur.Ownership
	next.OwnershipEpoch = cur.OwnershipEpoch
	next.CreatedAt = cur.CreatedAt
	if next.Name == "" {
		next.Name = cur.Name
	}
	t.companies[co.Domain] = next
	return nil
}

func (t *memTx) CompareAndSwapOwnership(_ context.Context, dom string, expectedEpoch int64, next domain.Ownership, now time.Time) (bool, error) {
	if err := next.Validate(); err != nil {
		return false, err
	}
	cur, ok := t.company(dom)
	if !ok {
		return false, store.ErrNotFound
	}
	if cur.OwnershipEpoch != expectedEpoch {
		return false, nil
	}
	cur.Ownership = next
	cur.OwnershipEpoch++
	cur.UpdatedAt = now
	t.companies[dom] = cur
	return true, nil
}

func (t *memTx) AppendDispositionChange(_ context.Context, h *domain.DispositionChange) error {
	t.nextID++
	h.ID = t.nextID
	t.disposition = append(t.disposition, *h)
	return nil
}

func (t *memTx) AppendOwnershipChange(_ context.Context, h *domain.OwnershipChange) error {
	t.nextID++
	h.ID = t.nextID
	t.ownership = append(t.ownership, *h)
	return nil
}

func (t *memTx) InsertAssignment(_ context.Context, a *domain.CampaignAssignment) error {
	if _, ok := t.assignments[a.ID]; ok {
		return store.ErrDuplicateKey
	}
	if _, ok := t.s.assignments[a.ID]; ok {
		return store.ErrDuplicateKey
	}
	t.assignments[a.ID] = *a
	return nil
}

func (t *memTx) CompleteAssignment(_ context.Context, id, outcome string, at time.Time) (bool, error) {
	a, ok := t.assignments[id]
	if !ok {
		a, ok = t.s.assignments[id]
	}
	if !ok {
		return false, store.ErrNotFound
	}
	if a.CompletedAt != nil {
		return false, nil
	}
	a.CompletedAt = &at
	a.Outcome = strings.TrimSpace(outcome)
	t.assignments[id] = a
	return true, nil
}

func (t *memTx) UpsertSnapshot(_ context.Context, snap *domain.TamSnapshot) error {
	k := snapKey{date: snap.SnapshotDate.Unix(), clientID: snap.ClientID}
	if prev, ok := t.s.snapshots[k]; ok && snap.CreatedAt.IsZero() {
		snap.CreatedAt = prev.CreatedAt
	}
	t.snapshots[k] = *snap
	return nil
}

// Seed stores companies and contacts as given, bypassing rollups and
// versioning checks. Contacts with Version 0 are stored at version 1.
// It exists for fixtures and local demos.
func (s *Store) Seed(companies []domain.Company, contacts []domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, co := range companies {
		if co.Status == "" {
			co.Status = domain.CompanyFresh
		}
		s.companies[co.Domain] = co
	}
	for _, c := range contacts {
		if c.Version == 0 {
			c.Version = 1
		}
		if c.DispositionStatus == "" {
			c.DispositionStatus = domain.StatusFresh
		}
		s.contacts[c.Key()] = c
	}
}

// SeedSnapshots stores snapshots as given.
func (s *Store) SeedSnapshots(snaps ...domain.TamSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		s.snapshots[snapKey{date: snap.SnapshotDate.Unix(), clientID: snap.ClientID}] = snap
	}
}
