package s1_valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/fixtures"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

func newEngine() *Engine {
	return New(logger.NewNop())
}

func TestValue_MultiCurrency(t *testing.T) {
	in := Input{
		Portfolio: fixtures.Portfolio("USD",
			[]contracts.Position{fixtures.Holding("AAA", "10"), fixtures.Holding("EU1", "5")},
			fixtures.Cash("USD", "1000"), fixtures.Cash("EUR", "200"),
		),
		Market: fixtures.Market(
			[]contracts.Price{fixtures.Price("AAA", "100", "USD"), fixtures.Price("EU1", "40", "EUR")},
			fixtures.Rate("EUR/USD", "1.25"),
		),
	}

	res, diags, err := newEngine().Value(in)
	require.NoError(t, err)
	assert.Empty(t, diags)

	snap := res.Snapshot
	// 10×100 + 5×40×1.25 + 1000 + 200×1.25 = 1000 + 250 + 1000 + 250
	assert.True(t, snap.TotalValue.Equal(fixtures.D("2500")), "total = %s", snap.TotalValue)

	eu, ok := snap.Position("EU1")
	require.True(t, ok)
	assert.True(t, eu.Value.Equal(fixtures.D("250")))
	assert.True(t, eu.Weight.Equal(fixtures.D("0.1")))
	assert.True(t, snap.CashWeight.Equal(fixtures.D("0.5")))
	assert.InDelta(t, 1.0, snap.TotalWeight().InexactFloat64(), 1e-9)

	// 현금은 통화 오름차순
	require.Len(t, snap.Cash, 2)
	assert.Equal(t, "EUR", snap.Cash[0].Currency)
}

func TestValue_InverseRate(t *testing.T) {
	in := Input{
		Portfolio: fixtures.Portfolio("USD", nil, fixtures.Cash("JPY", "10000")),
		Market:    fixtures.Market(nil, fixtures.Rate("USD/JPY", "100")),
	}

	res, diags, err := newEngine().Value(in)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.True(t, res.Snapshot.TotalValue.Equal(fixtures.D("100")))
}

func TestValue_PriceMissing(t *testing.T) {
	in := Input{
		Portfolio: fixtures.Portfolio("USD",
			[]contracts.Position{fixtures.Holding("AAA", "10"), fixtures.Holding("BBB", "3")},
			fixtures.Cash("USD", "100"),
		),
		Market: fixtures.Market([]contracts.Price{fixtures.Price("AAA", "10", "USD")}),
		Model:  fixtures.Model("AAA", "0.5", "CCC", "0.3"),
	}

	res, diags, err := newEngine().Value(in)
	require.NoError(t, err)

	missing := contracts.FilterCode(diags, contracts.CodePriceMissing)
	require.Len(t, missing, 2)
	assert.Equal(t, "BBB", missing[0].InstrumentID)
	assert.Equal(t, "holding", missing[0].Details["role"])
	assert.Equal(t, "CCC", missing[1].InstrumentID)
	assert.Equal(t, "model", missing[1].Details["role"])
	for _, d := range missing {
		assert.Equal(t, contracts.SeverityBlocking, d.Severity)
	}

	// BBB는 평가에서 제외, 가중치 불변식은 유지
	assert.Equal(t, []string{"BBB"}, res.Snapshot.Unpriced)
	_, held := res.Snapshot.Position("BBB")
	assert.False(t, held)
	assert.True(t, res.Snapshot.TotalValue.Equal(fixtures.D("200")))
	_, quoted := res.Quotes.Get("CCC")
	assert.False(t, quoted)
}

func TestValue_FXMissing(t *testing.T) {
	in := Input{
		Portfolio: fixtures.Portfolio("USD",
			[]contracts.Position{fixtures.Holding("GB1", "1")},
			fixtures.Cash("USD", "100"), fixtures.Cash("CHF", "50"),
		),
		Market: fixtures.Market([]contracts.Price{fixtures.Price("GB1", "10", "GBP")}),
	}

	res, diags, err := newEngine().Value(in)
	require.NoError(t, err)

	fx := contracts.FilterCode(diags, contracts.CodeFXMissing)
	require.Len(t, fx, 2)
	assert.Equal(t, "CHF", fx[0].Currency)
	assert.Equal(t, "cash", fx[0].Details["role"])
	assert.Equal(t, "GB1", fx[1].InstrumentID)
	assert.Equal(t, "GBP/USD", fx[1].Details["pair"])

	assert.True(t, res.Snapshot.TotalValue.Equal(fixtures.D("100")))
}

func TestValue_ZeroPortfolio(t *testing.T) {
	in := Input{Portfolio: fixtures.Portfolio("USD", nil, fixtures.Cash("USD", "0"))}

	res, diags, err := newEngine().Value(in)
	require.NoError(t, err)
	assert.True(t, contracts.HasCode(diags, contracts.CodeZeroPortfolioValue))
	assert.True(t, res.Snapshot.CashWeight.IsZero())
}

func TestValue_UnknownCurrency(t *testing.T) {
	in := Input{
		Portfolio: fixtures.Portfolio("USD", nil, fixtures.Cash("USD", "10"), fixtures.Cash("XXQ", "0")),
		Market:    fixtures.Market(nil, fixtures.Rate("XXQ/USD", "1")),
	}

	_, diags, err := newEngine().Value(in)
	require.NoError(t, err)
	unknown := contracts.FilterCode(diags, contracts.CodeCurrencyUnknown)
	if assert.Len(t, unknown, 1) {
		assert.Equal(t, contracts.SeverityReview, unknown[0].Severity)
	}
}

func TestRevalue_Deterministic(t *testing.T) {
	quotes := fixtures.Quotes("USD", "AAA", "1", "BBB", "2")
	fx := NewFXTable("USD", nil)
	qty := map[string]decimal.Decimal{"BBB": fixtures.D("1"), "AAA": fixtures.D("1")}
	cash := map[string]decimal.Decimal{"USD": fixtures.D("0")}

	a, err := Revalue("USD", qty, cash, quotes, fx)
	require.NoError(t, err)
	b, err := Revalue("USD", qty, cash, quotes, fx)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "AAA", a.Positions[0].InstrumentID)
	// 1/3, 2/3 같은 무한소수도 1e-9 내에서 합이 1
	assert.InDelta(t, 1.0, a.TotalWeight().InexactFloat64(), 1e-12)
}

func TestFXTable(t *testing.T) {
	fx := NewFXTable("USD", []contracts.FXRate{
		fixtures.Rate("EUR/USD", "1.10"),
		fixtures.Rate("USD/JPY", "150"),
		fixtures.Rate("EUR/JPY", "165"), // 교차 환율은 사용하지 않음
		fixtures.Rate("BAD", "1"),
		fixtures.Rate("GBP/USD", "0"),
	})

	r, ok := fx.ToBase("EUR")
	require.True(t, ok)
	assert.True(t, r.Equal(fixtures.D("1.1")))

	r, ok = fx.FromBase("JPY")
	require.True(t, ok)
	assert.True(t, r.Equal(fixtures.D("150")))

	_, ok = fx.ToBase("GBP")
	assert.False(t, ok, "non-positive rate must be ignored")

	r, ok = fx.ToBase("USD")
	require.True(t, ok)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))
}
