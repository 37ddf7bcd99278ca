package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"krishmitra-advisor/internal/advisor/orchestrator"
	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/sessions"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdvisor struct {
	answer models.SynthesizedAnswer
	err    error
	got    models.Query
}

func (s *stubAdvisor) Run(_ context.Context, q models.Query) (models.SynthesizedAnswer, error) {
	s.got = q
	return s.answer, s.err
}

func newHistory(t *testing.T) *sessions.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return sessions.NewStore(client, sessions.Config{}, logger.NewTestLogger(t))
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdvice_AnswersAndRecordsHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	advisor := &stubAdvisor{answer: models.SynthesizedAnswer{
		RunID:            "run-1",
		Text:             "Weather: Rain expected tomorrow, hold the next irrigation.",
		Confidence:       0.95,
		ModulesConsulted: []models.ModuleID{models.ModuleWeather},
		Trace:            []string{"step:start", "step:done"},
	}}
	history := newHistory(t)
	srv := NewServer(advisor, history, nil, logger.NewTestLogger(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/advice", AdviceRequest{
		Text: "Should I irrigate today?", Location: "Ludhiana", SessionID: "farmer-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.SynthesizedAnswer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 0.95, got.Confidence)
	assert.Equal(t, "Ludhiana", advisor.got.Location)

	rec = do(t, srv.Handler(), http.MethodGet, "/v1/sessions/farmer-1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, "Should I irrigate today?", hist.Entries[0].Question)
	assert.Equal(t, "run-1", hist.Entries[0].RunID)
}

func TestAdvice_GeneratesSessionID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	advisor := &stubAdvisor{answer: models.SynthesizedAnswer{Text: "ok"}}
	srv := NewServer(advisor, nil, nil, logger.NewTestLogger(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/advice", AdviceRequest{Text: "wheat price"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, advisor.got.SessionID)
}

func TestAdvice_DegradedAnswerIsStillOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	advisor := &stubAdvisor{answer: models.SynthesizedAnswer{
		Text:       "We could not reach our advisory services right now.",
		Confidence: 0.2,
		Degraded:   true,
		Trace:      []string{"synthesis-empty"},
	}}
	srv := NewServer(advisor, nil, nil, logger.NewTestLogger(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/advice", AdviceRequest{Text: "anything"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded":true`)
}

func TestAdvice_RejectsBadRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		body    interface{}
		advisor *stubAdvisor
		kind    string
	}{
		{name: "malformed json", body: "{not json", advisor: &stubAdvisor{}, kind: "invalid_request"},
		{name: "blank text", body: AdviceRequest{Text: "   "}, advisor: &stubAdvisor{}, kind: "empty_query"},
		{name: "advisor rejects", body: AdviceRequest{Text: "q"}, advisor: &stubAdvisor{err: orchestrator.ErrEmptyQuery}, kind: "empty_query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.advisor, nil, nil, logger.NewTestLogger(t))
			rec := do(t, srv.Handler(), http.MethodPost, "/v1/advice", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Error)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestAdvice_UnexpectedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(&stubAdvisor{err: errors.New("boom")}, nil, nil, logger.NewTestLogger(t))

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/advice", AdviceRequest{Text: "q"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("disabled", func(t *testing.T) {
		srv := NewServer(&stubAdvisor{}, nil, nil, logger.NewTestLogger(t))
		rec := do(t, srv.Handler(), http.MethodGet, "/v1/sessions/s1/history", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		srv := NewServer(&stubAdvisor{}, newHistory(t), nil, logger.NewTestLogger(t))
		rec := do(t, srv.Handler(), http.MethodGet, "/v1/sessions/s1/history?limit=-2", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit", func(t *testing.T) {
		history := newHistory(t)
		for _, id := range []string{"r1", "r2", "r3"} {
			require.NoError(t, history.Append(context.Background(),
				models.Query{Text: "q " + id, SessionID: "s1"},
				models.SynthesizedAnswer{RunID: id}))
		}
		srv := NewServer(&stubAdvisor{}, history, nil, logger.NewTestLogger(t))

		rec := do(t, srv.Handler(), http.MethodGet, "/v1/sessions/s1/history?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var hist HistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
		require.Len(t, hist.Entries, 2)
		assert.Equal(t, "r2", hist.Entries[0].RunID)
		assert.Equal(t, "r3", hist.Entries[1].RunID)
	})
}

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checks := map[string]ReadinessCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}
	srv := NewServer(&stubAdvisor{}, nil, checks, logger.NewTestLogger(t))

	rec := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv.Handler(), http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"])
	assert.Equal(t, "connection refused", body.Checks["postgres"])

	ready := NewServer(&stubAdvisor{}, nil, map[string]ReadinessCheck{"redis": checks["redis"]}, logger.NewTestLogger(t))
	rec = do(t, ready.Handler(), http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(&stubAdvisor{}, nil, nil, logger.NewTestLogger(t))
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
