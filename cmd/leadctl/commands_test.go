package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t    *testing.T
	path string
}

func (h harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--sqlite-path", h.path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func newHarness(t *testing.T) harness {
	return harness{t: t, path: filepath.Join(t.TempDir(), "leads.db")}
}

func TestImportTransitionHistory(t *testing.T) {
	h := newHarness(t)

	csv := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(csv, []byte("email,title\nann@acme.com,VP Sales\nbob@acme.com,CTO\n"), 0o644))

	out, err := h.run("import", csv, "--client", "A")
	require.NoError(t, err, out)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 2, res["imported"])

	out, err = h.run("available", "A", "--title", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, "ann@acme.com")
	assert.NotContains(t, out, "bob@acme.com")

	out, err = h.run("transition", "A", "ann@acme.com", "in_sequence", "--reason", "enrolled")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"disposition_status": "in_sequence"`)

	_, err = h.run("transition", "A", "ann@acme.com", "won_customer")
	assert.Error(t, err)

	out, err = h.run("history", "contact", "A", "ann@acme.com")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 1)

	out, err = h.run("history", "verify", "A", "ann@acme.com")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"consistent": true`)
}

func TestClaimReleaseCycle(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("claim", "https://www.Acme.com", "A", "--ttl-days", "30")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"domain": "acme.com"`)

	_, err = h.run("claim", "acme.com", "B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owned")

	_, err = h.run("release", "acme.com", "B")
	assert.Error(t, err)

	out, err = h.run("release", "acme.com", "A")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "released"))

	out, err = h.run("history", "company", "acme.com")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Len(t, rows, 2)
}

func TestArgsValidated(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("claim", "acme.com")
	assert.Error(t, err)
	_, err = h.run("import", "missing.csv")
	assert.Error(t, err)
}
