package hostname

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"acme.com", "acme.com", false},
		{"  ACME.com ", "acme.com", false},
		{"https://www.acme.com/about?x=1", "acme.com", false},
		{"acme.com:8443", "acme.com", false},
		{"jane@Acme.COM", "acme.com", false},
		{"acme.com.", "acme.com", false},
		{"bücher.de", "xn--bcher-kva.de", false},
		{"", "", true},
		{"localhost", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRegistrable(t *testing.T) {
	got, err := Registrable("mail.eu.acme.co.uk")
	if err != nil || got != "acme.co.uk" {
		t.Errorf("Registrable = %q, %v", got, err)
	}
}

func TestFromEmail(t *testing.T) {
	if got, err := FromEmail("x@Acme.com"); err != nil || got != "acme.com" {
		t.Errorf("FromEmail = %q, %v", got, err)
	}
	if got, err := FromEmail("dee@mail.eu.globex.co.uk"); err != nil || got != "globex.co.uk" {
		t.Errorf("FromEmail subdomain = %q, %v", got, err)
	}
	if _, err := FromEmail("no-at-sign"); err == nil {
		t.Error("expected error for missing @")
	}
}
