package options

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

func dec(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestDefaults_AreValid(t *testing.T) {
	opts := Defaults()
	require.NoError(t, Validate(&opts))

	assert.Equal(t, contracts.TargetMethodHeuristic, opts.TargetMethod)
	assert.False(t, opts.TaxAware)
	assert.False(t, opts.SettlementAware)
	assert.Equal(t, 5, opts.SettlementHorizonDays)
	assert.Equal(t, 2, opts.DefaultSettlementDays)
	assert.True(t, opts.MinNotional.IsZero())
}

func TestDecode_OverridesDefaults(t *testing.T) {
	doc := `
target_method: SOLVER
compare_target_methods: true
min_notional: 100
group_constraints:
  - key: "sector:financials"
    max_weight: 0.20
cash_band:
  min: 0.01
  max: 0.05
tax_aware: true
max_realized_gains: 5000
`
	opts, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, contracts.TargetMethodSolver, opts.TargetMethod)
	assert.True(t, opts.CompareTargetMethods)
	assert.True(t, opts.MinNotional.Equal(decimal.NewFromInt(100)))
	require.Len(t, opts.GroupConstraints, 1)
	assert.True(t, opts.GroupConstraints[0].MaxWeight.Equal(decimal.RequireFromString("0.2")))
	require.NotNil(t, opts.CashBand)
	assert.True(t, opts.CashBand.Max.Equal(decimal.RequireFromString("0.05")))
	require.NotNil(t, opts.MaxRealizedGains)

	// 문서에 없는 필드는 기본값 유지
	assert.Equal(t, 2, opts.FXSettlementDays)
	assert.Equal(t, 1e-6, opts.ValueTolerance)
}

func TestDecode_RejectsUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("target_methd: SOLVER\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target_methd")
}

func TestDecode_EmptyDocumentIsDefaults(t *testing.T) {
	opts, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Defaults().TargetMethod, opts.TargetMethod)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *EngineOptions)
		field  string
	}{
		{"unknown method", func(o *EngineOptions) { o.TargetMethod = "MAGIC" }, "target_method"},
		{"empty method", func(o *EngineOptions) { o.TargetMethod = "" }, "target_method"},
		{"zero tolerance", func(o *EngineOptions) { o.DualPathTolerance = 0 }, "dual_path_tolerance"},
		{"position max > 1", func(o *EngineOptions) { o.SinglePositionMax = dec("1.5") }, "single_position_max"},
		{"bad group key", func(o *EngineOptions) {
			o.GroupConstraints = []GroupConstraint{{Key: "financials", MaxWeight: decimal.RequireFromString("0.2")}}
		}, "group_constraints[0].key"},
		{"duplicate group", func(o *EngineOptions) {
			g := GroupConstraint{Key: "sector:tech", MaxWeight: decimal.RequireFromString("0.2")}
			o.GroupConstraints = []GroupConstraint{g, g}
		}, "group_constraints[1].key"},
		{"cash band inverted", func(o *EngineOptions) {
			o.CashBand = &CashBand{Min: decimal.RequireFromString("0.2"), Max: decimal.RequireFromString("0.1")}
		}, "cash_band"},
		{"budget without tax", func(o *EngineOptions) { o.MaxRealizedGains = dec("10") }, "max_realized_gains"},
		{"negative dust", func(o *EngineOptions) { o.MinNotional = decimal.NewFromInt(-1) }, "min_notional"},
		{"negative turnover", func(o *EngineOptions) { o.MaxTurnover = dec("-0.1") }, "max_turnover"},
		{"horizon zero with settlement", func(o *EngineOptions) {
			o.SettlementAware = true
			o.SettlementHorizonDays = 0
		}, "settlement_horizon_days"},
		{"duplicate bound", func(o *EngineOptions) {
			o.InstrumentBounds = []InstrumentBound{{InstrumentID: "A"}, {InstrumentID: "A"}}
		}, "instrument_bounds[1].instrument_id"},
		{"value tolerance", func(o *EngineOptions) { o.ValueTolerance = 0 }, "value_tolerance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Defaults()
			tt.mutate(&opts)

			err := Validate(&opts)
			require.Error(t, err)

			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestGroupConstraint_Matches(t *testing.T) {
	g := GroupConstraint{Key: "sector:financials"}

	attr, value, ok := g.Attribute()
	require.True(t, ok)
	assert.Equal(t, "sector", attr)
	assert.Equal(t, "financials", value)

	assert.True(t, g.Matches(map[string]string{"sector": "financials"}))
	assert.False(t, g.Matches(map[string]string{"sector": "tech"}))
	assert.False(t, g.Matches(nil))
}

func TestHash_Deterministic(t *testing.T) {
	a := Defaults()
	b := Defaults()

	ha, err := Hash(&a)
	require.NoError(t, err)
	hb, err := Hash(&b)
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.TaxAware = true
	hc, _ := Hash(&b)
	assert.NotEqual(t, ha, hc)
}

func TestLoad_RoundTrip(t *testing.T) {
	opts := Defaults()
	opts.MinNotional = decimal.NewFromInt(250)
	opts.CashBand = &CashBand{Min: decimal.Zero, Max: decimal.RequireFromString("0.1")}

	data, err := Marshal(&opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, data, raw)
	assert.True(t, loaded.MinNotional.Equal(decimal.NewFromInt(250)))
	require.NotNil(t, loaded.CashBand)
	assert.True(t, loaded.CashBand.Max.Equal(decimal.RequireFromString("0.1")))
}

func TestWarn(t *testing.T) {
	opts := Defaults()
	opts.TaxAware = true

	codes := make([]string, 0)
	for _, w := range Warn(&opts) {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "TAX_AWARE_NO_BUDGET")
	assert.Contains(t, codes, "NO_DUST_THRESHOLD")
}
