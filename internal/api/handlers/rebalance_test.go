package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/cache"
	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/engine"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

const oversellDoc = `
portfolio:
  portfolio_id: PF-9
  base_currency: USD
  positions: [{instrument_id: AAA, quantity: 1000}]
market:
  as_of: 2026-03-31T16:00:00Z
  prices: [{instrument_id: AAA, price: 100, currency: USD}]
model:
  model_id: M-1
  targets: [{instrument_id: AAA, weight: 1}]
shelf: [{instrument_id: AAA, status: ALLOWED}]
trade_requests: [{instrument_id: AAA, side: SELL, quantity: 2000}]
`

func newHandler() *RebalanceHandler {
	return NewRebalanceHandler(engine.New(), 2, time.Minute, logger.NewNop())
}

func testdata(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("../../engine/testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestRebalance(t *testing.T) {
	w := post(newHandler().Rebalance, testdata(t, "request.yaml"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var out contracts.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.RunID)
	assert.NotEmpty(t, out.Intents)
}

func TestRebalance_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"empty body", "", http.StatusBadRequest, engine.ErrEmptyRequest.Error()},
		{"unknown field", "portfolo: {}\n", http.StatusBadRequest, "portfolo"},
		{"missing base currency", "portfolio: {portfolio_id: PF-1}\n", http.StatusBadRequest, "base_currency"},
		{"invariant failure", oversellDoc, http.StatusInternalServerError, contracts.CodeOversell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newHandler().Rebalance, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestRebalance_InvariantCarriesOutcome(t *testing.T) {
	w := post(newHandler().Rebalance, oversellDoc)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp InvariantResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Outcome)
	assert.Equal(t, contracts.StatusBlocked, resp.Outcome.Status)
	assert.Empty(t, resp.Outcome.Intents)
}

func TestBatch(t *testing.T) {
	w := post(newHandler().Batch, testdata(t, "batch.yaml"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var results []engine.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "baseline", results[0].Name)
	assert.Equal(t, "deposit", results[1].Name)
	assert.NotNil(t, results[1].Outcome)
}

func TestBatch_RejectsUnknownField(t *testing.T) {
	w := post(newHandler().Batch, "scenarios:\n  a: {portfolo: {}}\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "scenario a")
}

func TestHash_MatchesEngine(t *testing.T) {
	doc := testdata(t, "request.yaml")
	w := post(newHandler().Hash, doc)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HashResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req, err := engine.DecodeRequest(strings.NewReader(doc))
	require.NoError(t, err)
	want, err := engine.CanonicalHash(*req)
	require.NoError(t, err)

	assert.Equal(t, want, resp.Hash)
	assert.NotEmpty(t, resp.RunID)
}

func TestRebalance_Replay(t *testing.T) {
	c, err := cache.New(8, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	h := newHandler().WithReplay(c)
	doc := testdata(t, "request.yaml")

	first := post(h.Rebalance, doc)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get(ReplayHeader))

	second := post(h.Rebalance, doc)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get(ReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestRebalance_InvariantFailureIsNotReplayed(t *testing.T) {
	c, err := cache.New(8, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	h := newHandler().WithReplay(c)
	post(h.Rebalance, oversellDoc)

	w := post(h.Rebalance, oversellDoc)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get(ReplayHeader))
}
