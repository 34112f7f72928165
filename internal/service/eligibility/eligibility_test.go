package eligibility_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
	"github.com/ignite/lead-disposition/internal/service/eligibility"
)

var now = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestIsAvailable_CooldownBoundary(t *testing.T) {
	c := domain.Contact{DispositionStatus: domain.StatusRetouchEligible}
	c.EmailState.CooldownUntil = at(0)
	co := domain.Company{}

	if eligibility.IsAvailable(c, co, domain.ChannelEmail, now.Add(-time.Nanosecond)) {
		t.Error("available before cooldown ends")
	}
	if !eligibility.IsAvailable(c, co, domain.ChannelEmail, now) {
		t.Error("unavailable at cooldown_until")
	}
	if !eligibility.IsAvailable(c, co, domain.ChannelEmail, now.Add(time.Second)) {
		t.Error("unavailable after cooldown")
	}
	if !eligibility.IsAvailable(c, co, domain.ChannelPhone, now.Add(-time.Hour)) {
		t.Error("email cooldown leaked onto phone")
	}
}

func TestIsAvailable(t *testing.T) {
	tests := []struct {
		name string
		c    domain.Contact
		co   domain.Company
		want bool
	}{
		{"fresh", domain.Contact{DispositionStatus: domain.StatusFresh}, domain.Company{}, true},
		{"in sequence", domain.Contact{DispositionStatus: domain.StatusInSequence}, domain.Company{}, false},
		{"neutral resting", domain.Contact{DispositionStatus: domain.StatusRepliedNeutral}, domain.Company{}, false},
		{"suppressed channel", domain.Contact{DispositionStatus: domain.StatusFresh, EmailState: domain.ChannelState{Suppressed: true}}, domain.Company{}, false},
		{"bounced with lapsed cooldown", domain.Contact{DispositionStatus: domain.StatusBounced, EmailState: domain.ChannelState{Suppressed: true, CooldownUntil: at(-time.Hour)}}, domain.Company{}, false},
		{"suppressed company", domain.Contact{DispositionStatus: domain.StatusFresh}, domain.Company{Suppressed: true}, false},
		{"company cooling", domain.Contact{DispositionStatus: domain.StatusFresh}, domain.Company{CooldownUntil: at(time.Minute)}, false},
		{"company cooldown lapsed", domain.Contact{DispositionStatus: domain.StatusFresh}, domain.Company{CooldownUntil: at(-time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eligibility.IsAvailable(tt.c, tt.co, domain.ChannelEmail, now); got != tt.want {
				t.Errorf("IsAvailable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetable(t *testing.T) {
	co := domain.Company{Ownership: domain.Ownership{OwnerID: "A", OwnedAt: at(-time.Hour), ExpiresAt: at(time.Hour)}}
	if !eligibility.Targetable(co, "A", now) {
		t.Error("holder should target")
	}
	if eligibility.Targetable(co, "B", now) {
		t.Error("other client should not target during lease")
	}
	if !eligibility.Targetable(co, "B", now.Add(time.Hour)) {
		t.Error("lapsed lease should be targetable")
	}
}

func TestFindAvailable(t *testing.T) {
	st := memstore.New()
	enriched := now.Add(-24 * time.Hour)
	st.Seed(
		[]domain.Company{
			{Domain: "acme.com"},
			{Domain: "customer.com", IsCustomer: true},
			{Domain: "owned.com", Ownership: domain.Ownership{OwnerID: "B", OwnedAt: at(-time.Hour), ExpiresAt: at(time.Hour)}},
		},
		[]domain.Contact{
			{Email: "r@acme.com", ClientID: "A", CompanyDomain: "acme.com", DispositionStatus: domain.StatusRetouchEligible, Title: "Head of Sales"},
			{Email: "f1@acme.com", ClientID: "A", CompanyDomain: "acme.com", Title: "Sales Director"},
			{Email: "f2@acme.com", ClientID: "A", CompanyDomain: "acme.com", Title: "Sales Ops", DataEnrichedAt: &enriched},
			{Email: "dev@acme.com", ClientID: "A", CompanyDomain: "acme.com", Title: "Developer"},
			{Email: "c@customer.com", ClientID: "A", CompanyDomain: "customer.com", Title: "Sales"},
			{Email: "o@owned.com", ClientID: "A", CompanyDomain: "owned.com", Title: "Sales"},
			{Email: "f1@acme.com", ClientID: "B", CompanyDomain: "acme.com", Title: "Sales"},
		},
	)
	svc := eligibility.NewService(st, policy.Default().WithClock(func() time.Time { return now }))
	ctx := context.Background()

	got, err := svc.FindAvailable(ctx, eligibility.Query{ClientID: "A", TitleKeywords: []string{"sales"}})
	if err != nil {
		t.Fatal(err)
	}
	var emails []string
	for _, c := range got {
		emails = append(emails, c.Contact.Email)
	}
	want := []string{"f2@acme.com", "f1@acme.com", "r@acme.com"}
	if fmt.Sprint(emails) != fmt.Sprint(want) {
		t.Errorf("emails = %v, want %v", emails, want)
	}

	got, _ = svc.FindAvailable(ctx, eligibility.Query{ClientID: "A", TitleKeywords: []string{"sales"}, IncludeCustomers: true, Limit: 10})
	if len(got) != 4 {
		t.Errorf("with customers: %d rows, want 4", len(got))
	}

	got, _ = svc.FindAvailable(ctx, eligibility.Query{ClientID: "A", Statuses: []domain.DispositionStatus{domain.StatusInSequence}})
	if len(got) != 0 {
		t.Errorf("non-eligible status filter returned %d rows", len(got))
	}

	if _, err := svc.FindAvailable(ctx, eligibility.Query{}); err == nil {
		t.Error("expected error without client id")
	}
}
