package disposition

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
	"github.com/ignite/lead-disposition/internal/store"
)

const testClient = "client-a"

var t0 = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, contacts ...domain.Contact) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Seed([]domain.Company{{Domain: "acme.com", Status: domain.CompanyFresh, ContactsTotal: len(contacts)}}, contacts)
	pol := policy.Default().WithClock(func() time.Time { return t0 })
	return NewService(st, pol), st
}

func acmeContact(email string, status domain.DispositionStatus) domain.Contact {
	return domain.Contact{Email: email, ClientID: testClient, CompanyDomain: "acme.com", DispositionStatus: status}
}

func key(email string) domain.ContactKey {
	return domain.ContactKey{Email: email, ClientID: testClient}
}

func TestTransitions_EveryStatusHasAnEntry(t *testing.T) {
	for _, s := range domain.AllStatuses() {
		if _, ok := Transitions[s]; !ok {
			t.Errorf("status %s missing from graph", s)
		}
		for _, to := range Transitions[s] {
			if !to.Valid() {
				t.Errorf("%s -> %s: unknown target", s, to)
			}
			if to == s {
				t.Errorf("%s has a self-loop", s)
			}
		}
	}
	for _, s := range []domain.DispositionStatus{domain.StatusRepliedHardNo, domain.StatusBounced, domain.StatusUnsubscribed, domain.StatusWonCustomer, domain.StatusLostClosed} {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestApplyTransition_FreshToInSequence(t *testing.T) {
	svc, st := newTestService(t, acmeContact("x@acme.com", domain.StatusFresh))
	ctx := context.Background()

	c, err := svc.ApplyTransition(ctx, TransitionRequest{
		Key: key("x@acme.com"), NewStatus: domain.StatusInSequence,
		Reason: "campaign_fill", TriggeredBy: "test", CampaignID: "camp-1",
	})
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if c.SequenceCount != 1 {
		t.Errorf("sequence_count = %d, want 1", c.SequenceCount)
	}
	if c.EmailState.LastContacted == nil || !c.EmailState.LastContacted.Equal(t0) {
		t.Errorf("email last_contacted = %v", c.EmailState.LastContacted)
	}
	wantUntil := t0.Add(policy.DefaultEmailCooldown)
	if c.EmailState.CooldownUntil == nil || !c.EmailState.CooldownUntil.Equal(wantUntil) {
		t.Errorf("email cooldown = %v, want %v", c.EmailState.CooldownUntil, wantUntil)
	}

	co, _ := st.GetCompany(ctx, "acme.com")
	if co.ContactsInSequence != 1 || co.ContactsTouched != 1 {
		t.Errorf("rollups = in_sequence %d touched %d, want 1/1", co.ContactsInSequence, co.ContactsTouched)
	}
	if co.Status != domain.CompanyActive {
		t.Errorf("company status = %s, want active", co.Status)
	}

	hist, _ := st.ContactHistory(ctx, key("x@acme.com"), 0)
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
	h := hist[0]
	if h.PreviousStatus != domain.StatusFresh || h.NewStatus != domain.StatusInSequence || h.CampaignID != "camp-1" {
		t.Errorf("history row = %+v", h)
	}
}

func TestApplyTransition_SequenceThenBounce(t *testing.T) {
	svc, st := newTestService(t, acmeContact("x@acme.com", domain.StatusFresh))
	ctx := context.Background()

	if _, err := svc.ApplyTransition(ctx, TransitionRequest{Key: key("x@acme.com"), NewStatus: domain.StatusInSequence}); err != nil {
		t.Fatal(err)
	}
	c, err := svc.ApplyTransition(ctx, TransitionRequest{Key: key("x@acme.com"), NewStatus: domain.StatusBounced})
	if err != nil {
		t.Fatal(err)
	}
	if !c.EmailState.Suppressed {
		t.Error("email should be suppressed after bounce")
	}
	co, _ := st.GetCompany(ctx, "acme.com")
	if co.ContactsInSequence != 0 {
		t.Errorf("contacts_in_sequence = %d, want 0", co.ContactsInSequence)
	}
	hist, _ := st.ContactHistory(ctx, key("x@acme.com"), 0)
	if len(hist) != 2 {
		t.Errorf("history rows = %d, want 2", len(hist))
	}

	_, err = svc.ApplyTransition(ctx, TransitionRequest{Key: key("x@acme.com"), NewStatus: domain.StatusFresh})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("bounced -> fresh: got %v, want ErrInvalidTransition", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.From != domain.StatusBounced || te.To != domain.StatusFresh {
		t.Errorf("transition error detail = %+v", te)
	}
	after, _ := st.GetContact(ctx, key("x@acme.com"))
	if after.DispositionStatus != domain.StatusBounced || after.Version != c.Version {
		t.Errorf("rejected transition changed state: %+v", after)
	}
}

func TestApplyTransition_OffGraphLeavesStateUnchanged(t *testing.T) {
	for _, from := range domain.AllStatuses() {
		for _, to := range domain.AllStatuses() {
			if CanTransition(from, to) {
				continue
			}
			svc, st := newTestService(t, acmeContact("x@acme.com", from))
			_, err := svc.ApplyTransition(context.Background(), TransitionRequest{Key: key("x@acme.com"), NewStatus: to})
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", from, to, err)
			}
			hist, _ := st.ContactHistory(context.Background(), key("x@acme.com"), 0)
			if len(hist) != 0 {
				t.Errorf("%s -> %s wrote history", from, to)
			}
		}
	}
}

func TestApplyTransition_UnknownContact(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ApplyTransition(context.Background(), TransitionRequest{Key: key("ghost@acme.com"), NewStatus: domain.StatusInSequence})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestApplyTransition_HardNoSuppressesEverything(t *testing.T) {
	svc, st := newTestService(t, acmeContact("x@acme.com", domain.StatusInSequence))
	ctx := context.Background()

	c, err := svc.ApplyTransition(ctx, TransitionRequest{Key: key("x@acme.com"), NewStatus: domain.StatusRepliedHardNo})
	if err != nil {
		t.Fatal(err)
	}
	for _, ch := range domain.Channels {
		if !c.Channel(ch).Suppressed {
			t.Errorf("%s not suppressed", ch)
		}
	}
	co, _ := st.GetCompany(ctx, "acme.com")
	if !co.Suppressed || co.SuppressedReason != domain.SuppressedHardNo {
		t.Errorf("company = %+v", co)
	}
}

func TestApplyTransition_OutcomeCooldownOnChannel(t *testing.T) {
	svc, _ := newTestService(t, acmeContact("x@acme.com", domain.StatusInSequence))
	c, err := svc.ApplyTransition(context.Background(), TransitionRequest{
		Key: key("x@acme.com"), NewStatus: domain.StatusRepliedNegative, Channel: domain.ChannelLinkedIn,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := t0.Add(policy.DefaultNegativeCooldown)
	if c.LinkedInState.CooldownUntil == nil || !c.LinkedInState.CooldownUntil.Equal(want) {
		t.Errorf("linkedin cooldown = %v, want %v", c.LinkedInState.CooldownUntil, want)
	}
	if c.EmailState.CooldownUntil != nil {
		t.Errorf("email cooldown should be untouched, got %v", c.EmailState.CooldownUntil)
	}
}

func TestApplyTransition_ConcurrentWritersSerialize(t *testing.T) {
	svc, st := newTestService(t, acmeContact("x@acme.com", domain.StatusInSequence))
	ctx := context.Background()

	outcomes := []domain.DispositionStatus{
		domain.StatusRepliedPositive, domain.StatusRepliedNegative, domain.StatusBounced,
		domain.StatusUnsubscribed, domain.StatusCompletedNoResponse,
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(outcomes))
	for _, to := range outcomes {
		wg.Add(1)
		go func(to domain.DispositionStatus) {
			defer wg.Done()
			_, err := svc.ApplyTransition(ctx, TransitionRequest{Key: key("x@acme.com"), NewStatus: to})
			errs <- err
		}(to)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d transitions out of in_sequence succeeded, want 1", ok)
	}
	hist, _ := st.ContactHistory(ctx, key("x@acme.com"), 0)
	if len(hist) != 1 {
		t.Errorf("history rows = %d, want 1", len(hist))
	}
}

func TestRecordTouch(t *testing.T) {
	svc, st := newTestService(t, acmeContact("x@acme.com", domain.StatusFresh))
	ctx := context.Background()

	c, err := svc.RecordTouch(ctx, key("x@acme.com"), domain.ChannelPhone, t0)
	if err != nil {
		t.Fatal(err)
	}
	if c.DispositionStatus != domain.StatusFresh {
		t.Errorf("status changed to %s", c.DispositionStatus)
	}
	if c.PhoneState.CooldownUntil == nil || !c.PhoneState.CooldownUntil.Equal(t0.Add(policy.DefaultPhoneCooldown)) {
		t.Errorf("phone cooldown = %v", c.PhoneState.CooldownUntil)
	}
	if _, err := svc.RecordTouch(ctx, key("x@acme.com"), domain.ChannelEmail, t0); err != nil {
		t.Fatal(err)
	}
	co, _ := st.GetCompany(ctx, "acme.com")
	if co.ContactsTouched != 1 {
		t.Errorf("contacts_touched = %d, want 1 after two touches", co.ContactsTouched)
	}
	if co.LastContactDate == nil || !co.LastContactDate.Equal(t0) {
		t.Errorf("last_contact_date = %v, want %v", co.LastContactDate, t0)
	}

	later := t0.Add(48 * time.Hour)
	if _, err := svc.RecordTouch(ctx, key("x@acme.com"), domain.ChannelLinkedIn, later); err != nil {
		t.Fatal(err)
	}
	co, _ = st.GetCompany(ctx, "acme.com")
	if co.LastContactDate == nil || !co.LastContactDate.Equal(later) {
		t.Errorf("last_contact_date after repeat touch = %v, want %v", co.LastContactDate, later)
	}
	if co.ContactsTouched != 1 {
		t.Errorf("contacts_touched = %d after repeat touch", co.ContactsTouched)
	}
}

func TestRecordTouch_SuppressedChannel(t *testing.T) {
	c := acmeContact("x@acme.com", domain.StatusFresh)
	c.EmailState.Suppressed = true
	svc, _ := newTestService(t, c)
	_, err := svc.RecordTouch(context.Background(), key("x@acme.com"), domain.ChannelEmail, t0)
	if !errors.Is(err, ErrChannelSuppressed) {
		t.Errorf("got %v, want ErrChannelSuppressed", err)
	}
}

func TestProcessExpiredCooldowns(t *testing.T) {
	past := t0.Add(-time.Hour)
	future := t0.Add(time.Hour)

	due := acmeContact("due@acme.com", domain.StatusCompletedNoResponse)
	due.EmailState.CooldownUntil = &past
	waiting := acmeContact("wait@acme.com", domain.StatusRepliedNeutral)
	waiting.EmailState.CooldownUntil = &future
	hardNo := acmeContact("no@acme.com", domain.StatusRepliedHardNo)

	svc, st := newTestService(t, due, waiting, hardNo)
	ctx := context.Background()

	res, err := svc.ProcessExpiredCooldowns(ctx, t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transitioned != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	c, _ := st.GetContact(ctx, key("due@acme.com"))
	if c.DispositionStatus != domain.StatusRetouchEligible {
		t.Errorf("due contact status = %s", c.DispositionStatus)
	}
	hist, _ := st.ContactHistory(ctx, key("due@acme.com"), 1)
	if len(hist) != 1 || hist[0].Reason != ReasonCooldownExpired || hist[0].TriggeredBy != TriggeredBySystem {
		t.Errorf("history = %+v", hist)
	}

	again, _ := svc.ProcessExpiredCooldowns(ctx, t0, 0)
	if again.Transitioned != 0 {
		t.Errorf("second pass transitioned %d, want 0", again.Transitioned)
	}
}

func TestProcessStaleData(t *testing.T) {
	old := t0.AddDate(0, -7, 0)
	recent := t0.AddDate(0, -1, 0)

	stale := acmeContact("old@acme.com", domain.StatusFresh)
	stale.DataEnrichedAt = &old
	fresh := acmeContact("new@acme.com", domain.StatusFresh)
	fresh.DataEnrichedAt = &recent

	svc, st := newTestService(t, stale, fresh)
	res, err := svc.ProcessStaleData(context.Background(), t0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Transitioned != 1 {
		t.Errorf("result = %+v", res)
	}
	c, _ := st.GetContact(context.Background(), key("old@acme.com"))
	if c.DispositionStatus != domain.StatusStaleData {
		t.Errorf("status = %s, want stale_data", c.DispositionStatus)
	}
}
