// Package hostname normalizes company domains so that every reference to a
// company resolves to the same key.
package hostname

import (
	"errors"
	"net"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// ErrInvalid is returned for input that is not a usable hostname.
var ErrInvalid = errors.New("invalid domain")

var profile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Normalize turns a URL, email domain or bare host into a lower-case ASCII
// hostname without scheme, port, path or a leading "www.".
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", ErrInvalid
	}

	ascii, err := profile.ToASCII(s)
	if err != nil {
		return "", ErrInvalid
	}
	ascii = strings.TrimPrefix(strings.ToLower(ascii), "www.")
	if !strings.Contains(ascii, ".") {
		return "", ErrInvalid
	}
	return ascii, nil
}

// Registrable normalizes raw and reduces it to its registrable domain
// (eTLD+1), so "mail.eu.acme.co.uk" becomes "acme.co.uk".
func Registrable(raw string) (string, error) {
	host, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return reg, nil
}

// FromEmail returns the registrable domain of an email address, so
// "dee@mail.globex.com" maps to "globex.com".
func FromEmail(email string) (string, error) {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return "", ErrInvalid
	}
	return Registrable(email[i+1:])
}
