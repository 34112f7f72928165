package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-disposition/internal/engine"
	"github.com/ignite/lead-disposition/internal/metrics"
	"github.com/ignite/lead-disposition/internal/pkg/httputil"
	"github.com/ignite/lead-disposition/internal/policy"
	"github.com/ignite/lead-disposition/internal/repository/memstore"
)

var now = time.Date(2025, 4, 7, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *engine.Engine) {
	t.Helper()
	pol := policy.Default().WithClock(func() time.Time { return now })
	eng := engine.New(memstore.New(), pol, engine.Options{})
	srv := httptest.NewServer(SetupRoutes(NewHandlers(eng, opts), opts))
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp, body := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Options{Metrics: metrics.New("api_test")})
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestContactLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, srv, http.MethodPost, "/api/v1/contacts", map[string]any{
		"email": "Ann@Acme.com", "client_id": "A", "title": "VP Sales",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "ann@acme.com", body["email"])
	assert.Equal(t, "fresh", body["disposition_status"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/contacts", map[string]any{"email": "ann@acme.com", "client_id": "A"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate", body["code"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/contacts/A/ann@acme.com/transition", map[string]any{"status": "in_sequence", "reason": "enrolled"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "in_sequence", body["disposition_status"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/contacts/A/ann@acme.com/transition", map[string]any{"status": "fresh"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["code"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/contacts/A/ann@acme.com/transition", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/contacts/A/ann@acme.com/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 1)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/contacts/A/ann@acme.com/history/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["consistent"])
	assert.Equal(t, "in_sequence", body["replayed"])

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/contacts/B/ann@acme.com/history/verify", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/contacts/B/ann@acme.com", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/contacts", map[string]any{"email": "nope", "client_id": "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBulkAndAvailable(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, srv, http.MethodPost, "/api/v1/contacts/bulk", map[string]any{
		"contacts": []map[string]any{
			{"email": "a@acme.com", "client_id": "A", "title": "VP Sales"},
			{"email": "b@acme.com", "client_id": "A", "title": "Engineer"},
			{"email": "a@acme.com", "client_id": "A"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 2, body["created"])
	assert.EqualValues(t, 1, body["duplicates"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/clients/A/available?title=sales", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/clients/A/available?channel=fax", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportContacts(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("client_id", "A"))
	fw, err := mw.CreateFormFile("file", "leads.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Email,Title\nann@acme.com,CEO\nbad,CTO\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/contacts/import", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.EqualValues(t, 2, res["total_rows"])
	assert.EqualValues(t, 1, res["imported"])
	assert.EqualValues(t, 1, res["skipped"])
}

func TestOwnershipEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/claim", map[string]any{"client_id": "A", "ttl_days": 30})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "A", body["client_owner_id"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/claim", map[string]any{"client_id": "A"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["refreshed"])

	resp, body = do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/claim", map[string]any{"client_id": "B"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ownership_conflict", body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A", details["client_owner_id"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/companies/acme.com/ownership?client_id=B", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["can_target"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/release", map[string]any{"client_id": "B"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/release", map[string]any{"client_id": "A", "reason": "expired"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/companies/acme.com/transfer", map[string]any{"client_id": "B"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/companies/acme.com/ownership/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["history"], 2)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/clients/B/owned", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/companies/localhost/claim", map[string]any{"client_id": "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCampaignFillAndAssignments(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, e := range []string{"a@acme.com", "b@initech.com"} {
		resp, body := do(t, srv, http.MethodPost, "/api/v1/contacts", map[string]any{"email": e, "client_id": "A", "title": "VP"})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	}

	resp, body := do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-1/fill", map[string]any{"client_id": "A", "volume": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 2, body["assigned"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/contacts/A/a@acme.com/assignments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, ok := body["assignments"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	id := list[0].(map[string]any)["id"].(string)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/assignments/"+id+"/complete", map[string]any{"outcome": "replied"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = do(t, srv, http.MethodPost, "/api/v1/assignments/"+id+"/complete", map[string]any{"outcome": "replied"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_completed", body["code"])

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-2/assignments", map[string]any{"email": "a@acme.com", "client_id": "A"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/campaigns/camp-3/fill", map[string]any{"client_id": "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTamEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp, _ := do(t, srv, http.MethodPost, "/api/v1/contacts", map[string]any{"email": "a@acme.com", "client_id": "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/clients/A/tam/snapshots", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 1, body["total_universe"])
	assert.EqualValues(t, 1, body["available_now"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/clients/A/tam/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["health_status"])

	resp, body = do(t, srv, http.MethodGet, "/api/v1/clients/A/tam/trends?days=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["snapshots"], 1)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/clients/A/tam/snapshots?date=07-04-2025", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunMaintenance(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, Options{Maintenance: func(context.Context) (any, error) {
		called = true
		return map[string]string{"status": "ok"}, nil
	}})
	resp, body := do(t, srv, http.MethodPost, "/api/v1/maintenance/run", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.True(t, called)

	srv, _ = newTestServer(t, Options{})
	resp, body = do(t, srv, http.MethodPost, "/api/v1/maintenance/run", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "snapshots")
}

func TestRespondError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var env httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.NotContains(t, env.Error, "boom")
}
