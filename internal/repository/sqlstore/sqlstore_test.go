package sqlstore

import (
	"testing"
	"time"
)

func TestRebind(t *testing.T) {
	pg := Dialect{Numbered: true}
	if got := pg.Rebind(`SELECT 1 FROM t WHERE a = ? AND b IN (?, ?)`); got != `SELECT 1 FROM t WHERE a = $1 AND b IN ($2, $3)` {
		t.Errorf("Rebind = %q", got)
	}
	lite := Dialect{}
	if got := lite.Rebind(`a = ?`); got != `a = ?` {
		t.Errorf("Rebind = %q", got)
	}
}

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := ExtractUp(content); got != "\nCREATE TABLE a (id INT);\n" {
		t.Errorf("ExtractUp = %q", got)
	}
	if got := ExtractUp("CREATE TABLE b (id INT);"); got != "CREATE TABLE b (id INT);" {
		t.Errorf("no markers = %q", got)
	}
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 6e6, time.UTC)
	cases := []any{want.UnixMilli(), want, []byte("1735787045006"), "1735787045006"}
	for _, v := range cases {
		var got dbTime
		if err := got.Scan(v); err != nil {
			t.Fatalf("Scan(%T): %v", v, err)
		}
		if !got.Valid || !got.Time.Equal(want) {
			t.Errorf("Scan(%T) = %v", v, got.Time)
		}
	}
	var null dbTime
	if err := null.Scan(nil); err != nil || null.Valid || null.ptr() != nil {
		t.Errorf("Scan(nil) = %+v, %v", null, err)
	}
	if err := null.Scan(3.5); err == nil {
		t.Error("expected error for float")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !IsAlreadyExists(errString(`relation "contacts" already exists`)) {
		t.Error("postgres message not recognized")
	}
	if IsAlreadyExists(errString("syntax error")) {
		t.Error("false positive")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"sales":    "sales",
		"100%":     `100\%`,
		"vp_sales": `vp\_sales`,
		`a\b`:      `a\\b`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
