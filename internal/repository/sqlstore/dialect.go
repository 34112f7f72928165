package sqlstore

import (
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
	// ForUpdate is appended to row reads inside a transaction.
	ForUpdate string
	// Time encodes a timestamp argument.
	Time func(t time.Time) any
	// Classify maps driver errors onto store sentinels. It returns err
	// unchanged when nothing matches.
	Classify func(err error) error
}

// Rebind rewrites "?" placeholders for numbered dialects. Queries in this
// package never contain a literal question mark.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) t(v time.Time) any { return d.Time(v) }

func (d Dialect) tp(v *time.Time) any {
	if v == nil {
		return nil
	}
	return d.Time(*v)
}

func (d Dialect) classify(err error) error {
	if err == nil || d.Classify == nil {
		return err
	}
	return d.Classify(err)
}

// MillisTime encodes timestamps as Unix milliseconds.
func MillisTime(t time.Time) any { return t.UTC().UnixMilli() }

// NativeTime passes timestamps through in UTC.
func NativeTime(t time.Time) any { return t.UTC() }
