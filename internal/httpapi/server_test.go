package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/admission"
	"github.com/fyrsmithlabs/outreachd/internal/cache"
	"github.com/fyrsmithlabs/outreachd/internal/contextstore"
	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/pipeline"
	"github.com/fyrsmithlabs/outreachd/internal/services"
	"github.com/fyrsmithlabs/outreachd/internal/staleness"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ string, _ store.Document) (store.Document, error) {
	return store.Document{}, nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch := cache.NewLRU(cache.DefaultConfig(), nil)
	bus := events.NewBus(zap.NewNop())

	contexts, err := contextstore.NewService(nil, st, ch, nil, zap.NewNop())
	require.NoError(t, err)
	adm, err := admission.NewEngine(st, ch, bus, zap.NewNop())
	require.NoError(t, err)
	stale, err := staleness.NewEngine(st, nil, bus, zap.NewNop())
	require.NoError(t, err)
	runner, err := pipeline.NewRunner(nil, contexts, stale, adm, stubGenerator{}, bus, zap.NewNop())
	require.NoError(t, err)

	registry := services.NewRegistry(services.Options{
		Store:     st,
		Cache:     ch,
		Contexts:  contexts,
		Admission: adm,
		Staleness: stale,
		Pipeline:  runner,
		Bus:       bus,
	})

	srv := NewServer(Config{Port: 0, ServiceName: "outreachd-test"}, registry, zap.NewNop())
	return srv, st
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "outreachd-test", resp.Service)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetContext(t *testing.T) {
	srv, st := newTestServer(t)

	_, err := st.ApplyContextPayload(context.Background(), "acme", "email", store.Document{"tone": "formal"})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodGet, "/api/v1/context/acme/email", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "acme", doc["client_id"])
	assert.Equal(t, "formal", doc["tone"])
	assert.EqualValues(t, 1, doc["version"])
}

func TestGetContext_UnknownClientSynthesized(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/context/ghost/email", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, map[string]any{"client_id": "ghost", "capability": "email"}, doc)
}

func TestSubmitUpdate_AutoApplied(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/updates", `{
		"client_id": "acme",
		"capability": "email",
		"source": "generation_insight",
		"payload": {"tone": "formal"},
		"confidence": 0.9
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Applied)
	assert.Equal(t, "applied", resp.Status)
	assert.NotZero(t, resp.UpdateID)

	version, err := st.GetContextVersion(context.Background(), "acme", "email")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestSubmitUpdate_Queued(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/updates", `{
		"client_id": "acme",
		"capability": "email",
		"source": "agent_suggestion",
		"payload": {"tone": "edgy"},
		"confidence": 0.4,
		"requires_approval": true
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Applied)
	assert.Equal(t, "queued", resp.Status)
}

func TestSubmitUpdate_BadSource(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/updates", `{
		"client_id": "acme",
		"source": "carrier_pigeon",
		"confidence": 0.4
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitUpdate_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/updates", `{
		"source": "human_upload",
		"confidence": 0.4
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "client_id")
}

func TestApprovalsFlow(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/updates", `{
		"client_id": "acme",
		"capability": "email",
		"source": "agent_suggestion",
		"payload": {"tone": "casual"},
		"confidence": 0.5,
		"requires_approval": true
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var submitted SubmitUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	rec = doRequest(srv, http.MethodGet, "/api/v1/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pending []PendingUpdate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, submitted.UpdateID, pending[0].ID)
	assert.Equal(t, "agent_suggestion", pending[0].Source)

	rec = doRequest(srv, http.MethodPost,
		"/api/v1/approvals/"+strconv.FormatInt(submitted.UpdateID, 10)+"/approve",
		`{"approved_by": "ops@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := st.GetContextDocument(context.Background(), "acme", "email")
	require.NoError(t, err)
	assert.Equal(t, "casual", doc.Document["tone"])

	// Queue is drained; re-approving 404s.
	rec = doRequest(srv, http.MethodGet, "/api/v1/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pending = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Empty(t, pending)

	rec = doRequest(srv, http.MethodPost,
		"/api/v1/approvals/"+strconv.FormatInt(submitted.UpdateID, 10)+"/approve",
		`{"approved_by": "ops@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprove_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/approvals/not-a-number/approve", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListApprovals_BadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/approvals?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordMetric(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/metrics/acme/email",
		`{"metric_name": "open_rate", "value": 0.35}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	latest, err := st.LatestPerformanceMetrics(context.Background(), "acme", "email")
	require.NoError(t, err)
	assert.Equal(t, 0.35, latest["open_rate"])
}

func TestRecordMetric_MissingName(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/metrics/acme/email", `{"value": 0.35}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
