package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestInfo_RedactsContactEmail(t *testing.T) {
	buf := capture(t)
	Info("transition applied", "contact", "acme-client/john.doe@acme.com", "to", "in_sequence")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["contact"] != "acme-client/jo***@acme.com" {
		t.Errorf("contact = %q", entry["contact"])
	}
	if entry["level"] != "INFO" || entry["to"] != "in_sequence" {
		t.Errorf("entry = %v", entry)
	}
}

func TestWith_TagsComponent(t *testing.T) {
	buf := capture(t)
	With("ownership").Warn("sweep row failed", "domain", "acme.com")
	if !strings.Contains(buf.String(), `"component":"ownership"`) {
		t.Errorf("missing component: %s", buf.String())
	}
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(ParseLevel("warn"))
	Info("hidden")
	Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected nothing below WARN, got %s", buf.String())
	}
	Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("ERROR entry missing")
	}
}

func TestRedactEmail(t *testing.T) {
	tests := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range tests {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
