package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ignite/lead-disposition/internal/domain"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
	"github.com/ignite/lead-disposition/internal/store"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memstore.Store) {
	st := memstore.New()
	return NewService(st, policy.Default().WithClock(func() time.Time { return now })), st
}

func TestCreateContact_CreatesCompanyAndCounts(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	c, err := svc.CreateContact(ctx, NewContact{Email: "  Jo@WWW.Acme.com ", ClientID: "A", CompanyName: "Acme"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Email != "jo@www.acme.com" || c.CompanyDomain != "acme.com" || c.DispositionStatus != domain.StatusFresh || c.Version != 1 {
		t.Errorf("contact = %+v", c)
	}
	if _, err := svc.CreateContact(ctx, NewContact{Email: "pat@acme.com", ClientID: "A"}); err != nil {
		t.Fatal(err)
	}

	co, err := st.GetCompany(ctx, "acme.com")
	if err != nil {
		t.Fatal(err)
	}
	if co.ContactsTotal != 2 || co.Name != "Acme" || co.ContactsTouched != 0 {
		t.Errorf("company = %+v", co)
	}

	_, err = svc.CreateContact(ctx, NewContact{Email: "JO@www.acme.com", ClientID: "A"})
	if !errors.Is(err, store.ErrDuplicateKey) {
		t.Errorf("duplicate: got %v, want ErrDuplicateKey", err)
	}
	co, _ = st.GetCompany(ctx, "acme.com")
	if co.ContactsTotal != 2 {
		t.Errorf("duplicate bumped counter to %d", co.ContactsTotal)
	}
}

func TestCreateContact_ExplicitDomain(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.CreateContact(context.Background(), NewContact{Email: "x@gmail.com", ClientID: "A", CompanyDomain: "https://Globex.com/about"})
	if err != nil {
		t.Fatal(err)
	}
	if c.CompanyDomain != "globex.com" {
		t.Errorf("domain = %s", c.CompanyDomain)
	}
}

func TestCreateContact_Invalid(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.CreateContact(ctx, NewContact{Email: "not-an-email", ClientID: "A"}); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("got %v, want ErrInvalidEmail", err)
	}
	if _, err := svc.CreateContact(ctx, NewContact{Email: "a@b.com"}); !errors.Is(err, ErrMissingClient) {
		t.Errorf("got %v, want ErrMissingClient", err)
	}
}

func TestBulkCreate(t *testing.T) {
	svc, _ := newTestService()
	res, err := svc.BulkCreate(context.Background(), []NewContact{
		{Email: "a@acme.com", ClientID: "A"},
		{Email: "b@acme.com", ClientID: "A"},
		{Email: "a@acme.com", ClientID: "A"},
		{Email: "a@acme.com", ClientID: "B"},
		{Email: "broken", ClientID: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 3 || res.Duplicates != 1 || res.Invalid != 1 || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestImportCSV_DetectsColumns(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()
	data := strings.Join([]string{
		"Email Address,First Name,Job Title,Website",
		"ann@acme.com,Ann,VP Sales,",
		"bob@initech.com,Bob,CTO,https://www.initech.com",
		"not-an-email,Carl,CEO,",
		"ann@acme.com,Ann,VP Sales,",
		"dee@mail.globex.com,Dee,Engineer,bad domain",
	}, "\n")

	res, err := svc.ImportCSV(ctx, strings.NewReader(data), "A", nil, "csv_upload")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalRows != 5 || res.Imported != 3 || res.Duplicates != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}

	c, err := st.GetContact(ctx, domain.ContactKey{Email: "bob@initech.com", ClientID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "CTO" || c.FirstName != "Bob" || c.SourceSystem != "csv_upload" || c.CompanyDomain != "initech.com" {
		t.Errorf("contact = %+v", c)
	}
	dee, err := st.GetContact(ctx, domain.ContactKey{Email: "dee@mail.globex.com", ClientID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if dee.CompanyDomain != "globex.com" {
		t.Errorf("fallback domain = %s", dee.CompanyDomain)
	}
}

func TestImportCSV_ExplicitMapAndErrors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ImportCSV(ctx, strings.NewReader("name,phone\nx,1\n"), "A", nil, "")
	if !errors.Is(err, ErrMissingEmailColumn) {
		t.Errorf("got %v, want ErrMissingEmailColumn", err)
	}
	_, err = svc.ImportCSV(ctx, strings.NewReader(""), "A", nil, "")
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("got %v, want ErrEmptyFile", err)
	}

	res, err := svc.ImportCSV(ctx, strings.NewReader("contact,org\nzed@acme.com,acme.com\n"), "A", ColumnMap{FieldEmail: "contact", FieldDomain: "org"}, "")
	if err != nil || res.Imported != 1 {
		t.Errorf("explicit map: res=%+v err=%v", res, err)
	}
}

func TestImportCSV_ByteOrderMark(t *testing.T) {
	svc, st := newTestService()
	ctx := context.Background()

	res, err := svc.ImportCSV(ctx, strings.NewReader("\ufeffemail,first_name\nann@acme.com,Ann\n"), "A", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Fatalf("result = %+v", res)
	}
	c, err := st.GetContact(ctx, domain.ContactKey{Email: "ann@acme.com", ClientID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if c.FirstName != "Ann" {
		t.Errorf("first name = %q", c.FirstName)
	}

	res, err = svc.ImportCSV(ctx, strings.NewReader("\ufeffcontact\nbob@acme.com\n"), "A", ColumnMap{FieldEmail: "contact"}, "")
	if err != nil || res.Imported != 1 {
		t.Errorf("explicit map: res=%+v err=%v", res, err)
	}
}
