package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/engine"
	"github.com/wonny/aegis-rebalance/internal/fixtures"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

func sampleOutcome() *contracts.Outcome {
	return &contracts.Outcome{
		RunID:  "run-1",
		Status: contracts.StatusPendingReview,
		Gate: contracts.GateDecision{
			Status:      contracts.StatusPendingReview,
			ReasonCodes: []string{"dual_path_divergence"},
			Review:      1,
		},
		Intents: []contracts.Intent{
			{ID: "INT-0001", Kind: contracts.IntentSecurityTrade, InstrumentID: "AAA", Side: contracts.SideBuy,
				Quantity: fixtures.D("10"), Notional: fixtures.D("1000"), Currency: "USD"},
			{ID: "INT-0002", Kind: contracts.IntentFXSpot, BuyCurrency: "EUR", SellCurrency: "USD",
				BuyAmount: fixtures.D("100"), SellAmount: fixtures.D("110"), DependsOn: []int{0}},
		},
		Diagnostics: []contracts.Diagnostic{
			contracts.Review(contracts.StageTargets, "dual_path_divergence", "paths differ"),
			contracts.Info(contracts.StageValuation, "valued", "ok"),
		},
	}
}

func TestWriteQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"scalar string", "$.gate.status", "PENDING_REVIEW\n"},
		{"list", "$.intents[*].id", `["INT-0001","INT-0002"]` + "\n"},
		{"number", "$.gate.review", "1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, writeQuery(&buf, sampleOutcome(), tt.query, false))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriteQuery_InvalidPath(t *testing.T) {
	var buf bytes.Buffer
	err := writeQuery(&buf, sampleOutcome(), "$.intents[", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestPrintOutcomeSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintOutcomeSummary(&buf, sampleOutcome())
	out := buf.String()

	assert.Contains(t, out, "PENDING_REVIEW")
	assert.Contains(t, out, "INT-0001")
	assert.Contains(t, out, "USD→EUR")
	assert.Contains(t, out, "dual_path_divergence")
	assert.NotContains(t, out, "valued", "info diagnostics are not listed")
}

func TestPrintBatchSummary(t *testing.T) {
	results := []engine.BatchResult{
		{Name: "baseline", Outcome: sampleOutcome()},
		{Name: "broken", Error: "decode request: boom"},
	}

	var buf bytes.Buffer
	PrintBatchSummary(&buf, results)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "baseline"))
	assert.Contains(t, lines[3], "ERROR")
}

func TestLoadRequest_RequiresFile(t *testing.T) {
	cfg = nil
	log = logger.NewNop()
	_, err := loadRequest("", "")
	assert.Error(t, err)
}
