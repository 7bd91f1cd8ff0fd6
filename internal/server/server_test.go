package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/interview-agent/internal/engine"
	"github.com/jonathan/interview-agent/internal/gateway"
	"github.com/jonathan/interview-agent/internal/llm"
	"github.com/jonathan/interview-agent/internal/profile"
	"github.com/jonathan/interview-agent/internal/promptcache"
)

// offlineClient fails every call; the interview then runs entirely on its
// deterministic fallbacks, which is all the transport tests need.
type offlineClient struct{}

func (offlineClient) GenerateContent(context.Context, string, llm.ModelTier) (string, error) {
	return "", errors.New("offline")
}

func (offlineClient) GenerateJSON(context.Context, string, llm.ModelTier) (string, error) {
	return "", errors.New("offline")
}

func (offlineClient) GetModel(llm.ModelTier) string { return "offline" }
func (offlineClient) Close() error                  { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	deps := engine.Deps{
		Gateway: gateway.New(offlineClient{}, gateway.Options{}, zap.NewNop()),
		Cache:   promptcache.New(),
		Logger:  zap.NewNop(),
	}
	return New(Config{Port: 0, Demo: true}, deps, nil, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createSample(t *testing.T, s *Server) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/sample", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[CreateInterviewResponse](t, rec)
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestCreateSample(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/sample", nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode[CreateInterviewResponse](t, rec)
	assert.True(t, resp.Demo)
}

func TestCreateInterview(t *testing.T) {
	s := newTestServer(t)
	job, company, candidate := profile.SampleData()

	rec := do(t, s, http.MethodPost, "/api/interviews", CreateInterviewRequest{
		Job: job, Company: company, Candidate: candidate,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decode[CreateInterviewResponse](t, rec)
	assert.NotEmpty(t, resp.SessionID)
	// server default applies when the request does not say
	assert.True(t, resp.Demo)
}

func TestCreateInterview_ExplicitDemoOverride(t *testing.T) {
	s := newTestServer(t)
	job, company, candidate := profile.SampleData()
	full := false

	rec := do(t, s, http.MethodPost, "/api/interviews", CreateInterviewRequest{
		Job: job, Company: company, Candidate: candidate, Demo: &full,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, decode[CreateInterviewResponse](t, rec).Demo)
}

func TestCreateInterview_MissingProfiles(t *testing.T) {
	s := newTestServer(t)
	job, _, _ := profile.SampleData()

	rec := do(t, s, http.MethodPost, "/api/interviews", CreateInterviewRequest{Job: job})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInterview_InvalidProfile(t *testing.T) {
	s := newTestServer(t)
	_, company, candidate := profile.SampleData()

	rec := do(t, s, http.MethodPost, "/api/interviews", CreateInterviewRequest{
		Job: &profile.Job{}, Company: company, Candidate: candidate,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "validation failed")
}

func TestCreateInterview_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/interviews", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAndRespondFlow(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	rec := do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	start := decode[engine.Prompt](t, rec)
	assert.Equal(t, "active", start.Status)
	assert.NotNil(t, start.Question)
	assert.Equal(t, 1, start.QuestionNumber)

	rec = do(t, s, http.MethodPost, "/api/interviews/"+id+"/respond",
		RespondRequest{Response: "I have been building backend services for about six years now."})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[engine.Prompt](t, rec)
	assert.Equal(t, "active", next.Status)
	assert.Equal(t, 2, next.QuestionNumber)
}

func TestRespond_EmptyResponse(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)
	do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil)

	rec := do(t, s, http.MethodPost, "/api/interviews/"+id+"/respond", RespondRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespond_BeforeStartConflicts(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	rec := do(t, s, http.MethodPost, "/api/interviews/"+id+"/respond",
		RespondRequest{Response: "hello"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStart_Twice(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil).Code)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/interviews/unknown/start",
		"/api/interviews/unknown/respond",
	} {
		rec := do(t, s, http.MethodPost, path, RespondRequest{Response: "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/interviews/unknown/state", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/interviews/unknown/summary", nil).Code)
}

func TestSummary_BeforeCompleteConflicts(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)
	do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil)

	rec := do(t, s, http.MethodGet, "/api/interviews/"+id+"/summary", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFullInterviewOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	rec := do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	total := decode[engine.Prompt](t, rec).TotalQuestions
	require.Positive(t, total)

	answers := []string{
		"I have spent the last eight years building backend services in Go, mostly payment and ledger systems at scale.",
		"In my previous role I led a migration to event sourcing for the billing pipeline without any customer facing downtime.",
		"For that design I would shard the workload by account and apply a token bucket per shard to smooth out bursts.",
		"Your emphasis on reliability engineering lines up with how I approach building and operating production software every day.",
		"When two of my teammates disagreed on a schema change I organized a short spike so the data could settle the argument.",
		"What draws me to this position is the chance to own a product surface from the database all the way to the API.",
		"Outside of project work I mentor two junior engineers and run our weekly incident review, which I find very rewarding.",
		"Thank you for the conversation today, I have no further topics and I look forward to hearing about the next steps.",
	}
	require.LessOrEqual(t, total, len(answers))

	var last engine.Prompt
	for i := 0; i < total; i++ {
		rec = do(t, s, http.MethodPost, "/api/interviews/"+id+"/respond",
			RespondRequest{Response: answers[i]})
		require.Equal(t, http.StatusOK, rec.Code)
		last = decode[engine.Prompt](t, rec)
	}
	assert.Equal(t, "complete", last.Status)
	require.NotNil(t, last.Summary)

	rec = do(t, s, http.MethodGet, "/api/interviews/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestState(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	rec := do(t, s, http.MethodGet, "/api/interviews/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[engine.Snapshot](t, rec)
	assert.Equal(t, engine.StateNotStarted, snap.State)

	do(t, s, http.MethodPost, "/api/interviews/"+id+"/start", nil)
	snap = decode[engine.Snapshot](t, do(t, s, http.MethodGet, "/api/interviews/"+id+"/state", nil))
	assert.Equal(t, engine.StateInProgress, snap.State)
	assert.Positive(t, snap.TotalQuestions)
}

func TestEndSession(t *testing.T) {
	s := newTestServer(t)
	id := createSample(t, s)

	rec := do(t, s, http.MethodDelete, "/api/interviews/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/interviews/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/interviews/"+id+"/state", nil).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	createSample(t, s)

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestArchive_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/archive", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/api/archive/some-id", nil).Code)
}
