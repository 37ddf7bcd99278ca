// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishmitra-advisor/internal/advisor/evidence"
	"krishmitra-advisor/internal/advisor/intent"
	"krishmitra-advisor/internal/advisor/orchestrator"
	"krishmitra-advisor/internal/advisor/router"
	"krishmitra-advisor/internal/advisor/synthesis"
	"krishmitra-advisor/internal/advisor/validator"
	"krishmitra-advisor/internal/api"
	"krishmitra-advisor/internal/common/camunda"
	"krishmitra-advisor/internal/common/logger"
	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
	"krishmitra-advisor/internal/modules/crop"
	"krishmitra-advisor/internal/modules/finance"
	"krishmitra-advisor/internal/modules/general"
	"krishmitra-advisor/internal/modules/policy"
	"krishmitra-advisor/internal/modules/weather"
	"krishmitra-advisor/internal/sessions"
	"krishmitra-advisor/pkg/registry"
)

const rainyForecast = `{
  "location": {"name": "Ludhiana", "region": "Punjab", "country": "India", "lat": 30.9, "lon": 75.85},
  "current": {"last_updated": "2024-07-14 08:30", "temp_c": 31.2, "humidity": 78, "precip_mm": 0.4,
              "condition": {"text": "Partly cloudy"}},
  "forecast": {"forecastday": [
    {"date": "2024-07-14", "day": {"maxtemp_c": 34, "mintemp_c": 27, "totalprecip_mm": 1.2,
      "daily_chance_of_rain": 30, "condition": {"text": "Patchy rain possible"}}},
    {"date": "2024-07-15", "day": {"maxtemp_c": 30, "mintemp_c": 25, "totalprecip_mm": 12.5,
      "daily_chance_of_rain": 85, "condition": {"text": "Moderate rain"}}}
  ]},
  "alerts": {"alert": []}
}`

type stack struct {
	handler http.Handler
	history *sessions.Store
}

// newStack wires the advisory pipeline the way advisor-manager does, with
// in-memory evidence, miniredis sessions and a fake forecast provider.
func newStack(t *testing.T, forecast http.HandlerFunc) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger(t)

	wx := httptest.NewServer(forecast)
	t.Cleanup(wx.Close)

	reg := registry.Default()
	catalog := modules.NewCatalog(
		weather.New(weather.Config{APIKey: "e2e-key", BaseURL: wx.URL, Timeout: time.Second}, log),
		crop.New(log),
		finance.New(finance.DefaultPrices(), finance.DefaultFollowUpPolicy(), log),
		policy.New(),
		general.New(),
	)

	corpus, err := evidence.NewCorpus(evidence.SeedDocuments())
	require.NoError(t, err)
	store := evidence.NewStore(corpus, evidence.NewMemoryIndex(), evidence.NewHashEmbedder(256),
		evidence.Config{TopK: 3, RetryDelay: 10 * time.Millisecond}, log)
	require.NoError(t, store.Seed(context.Background()))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	history := sessions.NewStore(rdb, sessions.Config{TTL: time.Hour, MaxEntries: 10}, log)

	budget := 5 * time.Second
	advisor := orchestrator.New(orchestrator.Deps{
		Intent: intent.NewAnalyzer(nil, reg, time.Second, log),
		Router: router.New(catalog, reg, router.Config{
			ModuleTimeout: 2 * time.Second,
			RequestBudget: budget,
		}, log),
		Evidence:    store,
		Synthesizer: synthesis.New(synthesis.Config{MinWeight: 0.5, DegradedFloor: 0.2, MaxEvidence: 8}, reg),
		Validator:   validator.New(validator.Config{PublishThreshold: 0.5, DegradedFloor: 0.2}, log),
		Sessions:    history,
	}, budget, log)

	srv := api.NewServer(advisor, history, map[string]api.ReadinessCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, log)
	return &stack{handler: srv.Handler(), history: history}
}

func (s *stack) ask(t *testing.T, req api.AdviceRequest) models.SynthesizedAnswer {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/advice", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	s.handler.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer models.SynthesizedAnswer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	return answer
}

func serveForecast(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestE2E_IrrigationQuestionDefersForRain(t *testing.T) {
	s := newStack(t, serveForecast(rainyForecast))

	answer := s.ask(t, api.AdviceRequest{
		Text:      "Should I irrigate my wheat field today?",
		Location:  "Ludhiana",
		SessionID: "farmer-42",
	})

	assert.NotEmpty(t, answer.RunID)
	assert.Equal(t, "farmer-42", answer.SessionID)
	assert.False(t, answer.Degraded)
	assert.Contains(t, answer.ModulesConsulted, models.ModuleWeather)
	assert.Contains(t, answer.ModulesConsulted, models.ModuleCrop)
	assert.Contains(t, answer.Text, "postpone irrigation")
	assert.Greater(t, answer.Confidence, 0.5)
	assert.NotEmpty(t, answer.EvidenceUnion)

	entries, err := s.history.History(context.Background(), "farmer-42", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, answer.RunID, entries[0].RunID)
}

func TestE2E_WeatherOutageStillAnswers(t *testing.T) {
	s := newStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	answer := s.ask(t, api.AdviceRequest{Text: "Should I irrigate my wheat field today?", SessionID: "farmer-7"})

	assert.NotContains(t, answer.ModulesConsulted, models.ModuleWeather)
	assert.Contains(t, answer.ModulesConsulted, models.ModuleCrop)
	assert.NotEmpty(t, answer.Text)
	assert.NotEmpty(t, answer.Trace)
}

func TestE2E_SchemeQuestion(t *testing.T) {
	s := newStack(t, serveForecast(rainyForecast))

	answer := s.ask(t, api.AdviceRequest{Text: "How to apply for PM-KISAN scheme?"})

	assert.NotEmpty(t, answer.SessionID)
	assert.Contains(t, answer.ModulesConsulted, models.ModulePolicy)
	assert.NotContains(t, answer.ModulesConsulted, models.ModuleWeather)
	assert.Contains(t, answer.Text, "pmkisan.gov.in")
}

func TestE2E_ReadyAndHistoryEndpoints(t *testing.T) {
	s := newStack(t, serveForecast(rainyForecast))
	s.ask(t, api.AdviceRequest{Text: "wheat price in mandi", SessionID: "trader-1"})

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/trader-1/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "wheat price in mandi", got.Entries[0].Question)
	assert.Contains(t, got.Entries[0].Modules, models.ModuleFinance)
}

func TestE2E_FinanceFollowUpAcrossTurns(t *testing.T) {
	s := newStack(t, serveForecast(rainyForecast))

	first := s.ask(t, api.AdviceRequest{Text: "How can I improve my farm profit?", SessionID: "farmer-88"})
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, first.ModulesConsulted)
	assert.Contains(t, first.Text, "How many acres")

	second := s.ask(t, api.AdviceRequest{Text: "I have 5 acres and spend 3000 on seeds", SessionID: "farmer-88"})
	assert.Equal(t, []models.ModuleID{models.ModuleFinance}, second.ModulesConsulted)
	assert.Contains(t, second.Trace, "follow-up:finance")

	third := s.ask(t, api.AdviceRequest{Text: "fertilizer costs 20000", SessionID: "farmer-88"})
	assert.Contains(t, third.ModulesConsulted, models.ModuleFinance)
	assert.Contains(t, third.Text, "farm size 5.0 acres")

	entries, err := s.history.History(context.Background(), "farmer-88", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

// TestE2E_ZeebeGateway needs a running broker, e.g. docker run camunda/zeebe.
func TestE2E_ZeebeGateway(t *testing.T) {
	addr := os.Getenv("E2E_ZEEBE_ADDRESS")
	if addr == "" {
		t.Skip("E2E_ZEEBE_ADDRESS not set")
	}

	zc, err := camunda.NewClient(addr)
	require.NoError(t, err)
	defer zc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	assert.NoError(t, zc.HealthCheck(ctx))
}
