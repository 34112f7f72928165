package logger

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail masks the local part of an address and keeps the domain, so
// company-level problems stay traceable: "john.doe@acme.com" becomes
// "jo***@acme.com". Local parts of two characters or fewer are fully masked.
func RedactEmail(email string) string {
	local, dom, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(dom, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + dom
	}
	return "***@" + dom
}

// redactPIIValue masks addresses in a field value. Keys naming an email are
// masked whole; other values have embedded addresses masked, which covers
// contact keys of the form "client/email".
func redactPIIValue(key, val string) string {
	if strings.Contains(strings.ToLower(key), "email") && strings.Count(val, "@") == 1 && !strings.Contains(val, "/") {
		return RedactEmail(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactEmail)
}
