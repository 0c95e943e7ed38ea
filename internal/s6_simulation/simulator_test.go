package s6_simulation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/fixtures"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/internal/s1_valuation"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

func buy(id, qty, price, ccy string) contracts.Intent {
	q, p := fixtures.D(qty), fixtures.D(price)
	return contracts.Intent{
		Kind: contracts.IntentSecurityTrade, InstrumentID: id, Side: contracts.SideBuy,
		Quantity: q, Price: p, Currency: ccy, Notional: q.Mul(p), Reason: contracts.ReasonRebalance,
	}
}

func sell(id, qty, price, ccy string) contracts.Intent {
	it := buy(id, qty, price, ccy)
	it.Side = contracts.SideSell
	return it
}

func quote(id, price, ccy, rate string) contracts.Quote {
	return contracts.Quote{InstrumentID: id, Price: fixtures.D(price), Currency: ccy, FXRate: fixtures.D(rate)}
}

func simulate(t *testing.T, in Input) (*Result, []contracts.Diagnostic) {
	t.Helper()
	if in.Options == nil {
		opts := options.Defaults()
		in.Options = &opts
	}
	if in.FX.Base() == "" {
		in.FX = s1_valuation.NewFXTable(in.Before.BaseCurrency, nil)
	}
	res, diags, err := New(logger.NewNop()).Simulate(in)
	require.NoError(t, err)
	return res, diags
}

func cashOf(snap *contracts.ValuedSnapshot, ccy string) string {
	return snap.CashAmount(ccy).String()
}

func TestSimulate_SingleCurrencyBuys(t *testing.T) {
	in := Input{
		Before:  fixtures.Valued("USD", "10000"),
		Quotes:  fixtures.Quotes("USD", "AAA", "100", "BBB", "30"),
		Intents: []contracts.Intent{buy("AAA", "60", "100", "USD"), buy("BBB", "133", "30", "USD")},
	}

	res, diags := simulate(t, in)

	assert.Empty(t, contracts.FilterCode(diags, contracts.CodeInsufficientCash))
	assert.Equal(t, 0, countKind(res.Intents, contracts.IntentFXSpot))
	assert.Equal(t, "10", cashOf(res.After, "USD"))
	assert.True(t, res.After.TotalValue.Equal(fixtures.D("10000")))
	assert.Nil(t, res.Ladder)
	assert.Equal(t, []string{"INT-0001", "INT-0002"}, ids(res.Intents))
	require.NotNil(t, res.Graph)
	assert.Len(t, res.Graph.Order, 2)
}

func TestSimulate_Oversell(t *testing.T) {
	before := fixtures.Valued("USD", "0", fixtures.VP("AAA", "1000", "100", "USD"))
	in := Input{
		Before:  before,
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		FX:      s1_valuation.NewFXTable("USD", nil),
		Intents: []contracts.Intent{sell("AAA", "2000", "100", "USD")},
	}
	opts := options.Defaults()
	in.Options = &opts

	res, diags, err := New(logger.NewNop()).Simulate(in)

	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInvariant))
	inv, ok := contracts.AsInvariant(err)
	require.True(t, ok)
	assert.Equal(t, contracts.CodeOversell, inv.Code)

	assert.Empty(t, res.Intents)
	assert.Same(t, before, res.After)

	require.Len(t, diags, 1)
	assert.Equal(t, contracts.ClassInvariant, diags[0].Class)
	assert.Equal(t, contracts.SeverityBlocking, diags[0].Severity)
	assert.Equal(t, "-1000", diags[0].Details["after"])
}

func TestSimulate_HubAndSpokeFX(t *testing.T) {
	fx := s1_valuation.NewFXTable("USD", []contracts.FXRate{
		fixtures.Rate("EUR/USD", "1.2"), fixtures.Rate("GBP/USD", "1.25"),
	})
	in := Input{
		Before: fixtures.Valued("USD", "10000"),
		Quotes: contracts.QuoteBook{
			"EUX": quote("EUX", "100", "EUR", "1.2"),
			"GBX": quote("GBX", "50", "GBP", "1.25"),
		},
		FX:      fx,
		Intents: []contracts.Intent{buy("EUX", "10", "100", "EUR"), buy("GBX", "10", "50", "GBP")},
	}

	res, _ := simulate(t, in)

	require.Equal(t, 2, countKind(res.Intents, contracts.IntentFXSpot))
	for _, it := range res.Intents {
		if it.Kind != contracts.IntentFXSpot {
			continue
		}
		// 모든 환전은 기준통화를 경유
		assert.Equal(t, "USD", it.SellCurrency)
		assert.Equal(t, contracts.ReasonFXFunding, it.Reason)
	}

	eur := findFX(t, res.Intents, "EUR")
	assert.Equal(t, "1000", eur.BuyAmount.String())
	assert.Equal(t, "1200", eur.SellAmount.String())

	// 매수는 해당 통화 환전 이후
	eux := findTrade(t, res.Intents, "EUX")
	require.Len(t, eux.DependsOn, 1)
	assert.Equal(t, contracts.IntentFXSpot, res.Intents[eux.DependsOn[0]].Kind)
	assert.Equal(t, "EUR", res.Intents[eux.DependsOn[0]].BuyCurrency)

	assert.Equal(t, "8175", cashOf(res.After, "USD"))
	assert.Equal(t, "0", cashOf(res.After, "EUR"))
	assert.True(t, res.After.TotalValue.Equal(fixtures.D("10000")))
}

func TestSimulate_BaseDeficitCoveredByForeignSurplus(t *testing.T) {
	fx := s1_valuation.NewFXTable("USD", []contracts.FXRate{fixtures.Rate("EUR/USD", "1.2")})
	before, err := s1_valuation.Revalue("USD", map[string]decimal.Decimal{},
		map[string]decimal.Decimal{"USD": decimal.Zero, "EUR": fixtures.D("1000")}, nil, fx)
	require.NoError(t, err)

	in := Input{
		Before:  before,
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		FX:      fx,
		Intents: []contracts.Intent{buy("AAA", "10", "100", "USD")},
	}

	res, diags := simulate(t, in)

	assert.False(t, contracts.HasCode(diags, contracts.CodeInsufficientCash))
	require.Equal(t, 1, countKind(res.Intents, contracts.IntentFXSpot))

	spot := findFX(t, res.Intents, "USD")
	assert.Equal(t, "EUR", spot.SellCurrency)
	assert.Equal(t, "833.34", spot.SellAmount.String())
	assert.Equal(t, "1000", spot.BuyAmount.String())

	aaa := findTrade(t, res.Intents, "AAA")
	require.Len(t, aaa.DependsOn, 1)
	assert.Equal(t, contracts.IntentFXSpot, res.Intents[aaa.DependsOn[0]].Kind)

	assert.Equal(t, "166.66", cashOf(res.After, "EUR"))
	assert.Equal(t, "0", cashOf(res.After, "USD"))
}

func TestSimulate_FXDependsOnSellsInSourceCurrency(t *testing.T) {
	fx := s1_valuation.NewFXTable("USD", []contracts.FXRate{fixtures.Rate("EUR/USD", "1.2")})
	in := Input{
		Before: fixtures.Valued("USD", "0", fixtures.VP("AAA", "20", "100", "USD")),
		Quotes: contracts.QuoteBook{
			"AAA": quote("AAA", "100", "USD", "1"),
			"EUX": quote("EUX", "100", "EUR", "1.2"),
		},
		FX:      fx,
		Intents: []contracts.Intent{sell("AAA", "12", "100", "USD"), buy("EUX", "10", "100", "EUR")},
	}

	res, diags := simulate(t, in)
	assert.False(t, contracts.HasCode(diags, contracts.CodeInsufficientCash))

	eur := findFX(t, res.Intents, "EUR")
	require.Len(t, eur.DependsOn, 1)
	assert.Equal(t, "AAA", res.Intents[eur.DependsOn[0]].InstrumentID)

	// 위상 정렬: 매도 → 환전 → 매수
	pos := make(map[string]int)
	for rank, idx := range res.Graph.Order {
		it := res.Intents[idx]
		pos[string(it.Kind)+it.InstrumentID] = rank
	}
	assert.Less(t, pos["SECURITY_TRADEAAA"], pos["FX_SPOT"])
	assert.Less(t, pos["FX_SPOT"], pos["SECURITY_TRADEEUX"])
}

func TestSimulate_InsufficientCash(t *testing.T) {
	in := Input{
		Before:  fixtures.Valued("USD", "500"),
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		Intents: []contracts.Intent{buy("AAA", "10", "100", "USD")},
	}

	_, diags := simulate(t, in)

	short := contracts.FilterCode(diags, contracts.CodeInsufficientCash)
	require.Len(t, short, 1)
	assert.Equal(t, "USD", short[0].Currency)
	assert.Equal(t, contracts.SeverityBlocking, short[0].Severity)
	assert.Equal(t, "-500", short[0].Details["balance"])
}

func TestSimulate_SettlementOverdraft(t *testing.T) {
	three := 3
	opts := options.Defaults()
	opts.SettlementAware = true
	opts.SettlementHorizonDays = 5

	in := Input{
		Before:  fixtures.Valued("USD", "0", fixtures.VP("AAA", "10", "100", "USD")),
		Quotes:  fixtures.Quotes("USD", "AAA", "100", "BBB", "100"),
		Intents: []contracts.Intent{sell("AAA", "10", "100", "USD"), buy("BBB", "10", "100", "USD")},
		Shelf: []contracts.ShelfEntry{
			{InstrumentID: "AAA", Status: contracts.ShelfAllowed, SettlementDays: &three},
			fixtures.Shelf("BBB", contracts.ShelfAllowed),
		},
		Options: &opts,
	}

	res, diags := simulate(t, in)

	// 최종 현금은 0 → insufficient_cash 아님
	assert.False(t, contracts.HasCode(diags, contracts.CodeInsufficientCash))

	overdraft := contracts.FilterCode(diags, contracts.CodeSettlementOverdraft)
	require.Len(t, overdraft, 1)
	assert.Equal(t, "USD", overdraft[0].Currency)
	assert.Equal(t, "2", overdraft[0].Details["day"])
	assert.Equal(t, "-1000", overdraft[0].Details["balance"])

	require.NotNil(t, res.Ladder)
	assert.Equal(t, 5, res.Ladder.HorizonDays)
	require.Len(t, res.Ladder.Rows, 6)
	assert.Equal(t, "0", res.Ladder.Rows[1].Balance.String())
	assert.Equal(t, "-1000", res.Ladder.Rows[2].Balance.String())
	assert.Equal(t, "0", res.Ladder.Rows[3].Balance.String())
}

func TestSimulate_SettlementSameDayIsFunded(t *testing.T) {
	opts := options.Defaults()
	opts.SettlementAware = true

	in := Input{
		Before:  fixtures.Valued("USD", "0", fixtures.VP("AAA", "10", "100", "USD")),
		Quotes:  fixtures.Quotes("USD", "AAA", "100", "BBB", "100"),
		Intents: []contracts.Intent{sell("AAA", "10", "100", "USD"), buy("BBB", "10", "100", "USD")},
		Shelf:   fixtures.Allowed("AAA", "BBB"),
		Options: &opts,
	}

	res, diags := simulate(t, in)
	assert.False(t, contracts.HasCode(diags, contracts.CodeSettlementOverdraft))
	require.NotNil(t, res.Ladder)
}

func TestSimulate_NegativeShelfSettlementDaysSettleSameDay(t *testing.T) {
	negative := -1
	opts := options.Defaults()
	opts.SettlementAware = true

	in := Input{
		Before:  fixtures.Valued("USD", "0", fixtures.VP("AAA", "10", "100", "USD")),
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		Intents: []contracts.Intent{sell("AAA", "10", "100", "USD")},
		Shelf: []contracts.ShelfEntry{
			{InstrumentID: "AAA", Status: contracts.ShelfAllowed, SettlementDays: &negative},
		},
		Options: &opts,
	}

	res, diags := simulate(t, in)
	assert.False(t, contracts.HasCode(diags, contracts.CodeSettlementOverdraft))

	require.NotNil(t, res.Ladder)
	require.NotEmpty(t, res.Ladder.Rows)
	assert.Equal(t, 0, res.Ladder.Rows[0].Day)
	assert.Equal(t, "1000", res.Ladder.Rows[0].Balance.String())
	last := res.Ladder.Rows[len(res.Ladder.Rows)-1]
	assert.Equal(t, "1000", last.Balance.String())
}

func TestSimulate_CashFlowsAndCosts(t *testing.T) {
	fx := s1_valuation.NewFXTable("USD", []contracts.FXRate{fixtures.Rate("EUR/USD", "1.2")})
	deposit := contracts.Intent{
		Kind: contracts.IntentCashFlow, Currency: "EUR",
		Notional: fixtures.D("1000"), NotionalBase: fixtures.D("1200"), Reason: contracts.ReasonCashFlow,
	}
	trade := buy("AAA", "10", "100", "USD")
	trade.Cost = fixtures.D("1.5")

	in := Input{
		Before:  fixtures.Valued("USD", "5000"),
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		FX:      fx,
		Intents: []contracts.Intent{deposit, trade},
	}

	res, diags := simulate(t, in)
	assert.Empty(t, diags)

	// 5000 + 1200 입금 - 1.5 비용
	assert.True(t, res.After.TotalValue.Equal(fixtures.D("6198.5")), res.After.TotalValue.String())
	assert.Equal(t, "3998.5", cashOf(res.After, "USD"))
	assert.Equal(t, "1000", cashOf(res.After, "EUR"))
}

func TestSimulate_CashBandAfter(t *testing.T) {
	opts := options.Defaults()
	opts.CashBand = &options.CashBand{Min: fixtures.D("0.05"), Max: fixtures.D("0.10")}

	in := Input{
		Before:  fixtures.Valued("USD", "10000"),
		Quotes:  fixtures.Quotes("USD", "AAA", "100"),
		Intents: []contracts.Intent{buy("AAA", "99", "100", "USD")},
		Options: &opts,
	}

	_, diags := simulate(t, in)

	breach := contracts.FilterCode(diags, contracts.CodeCashBandBreach)
	require.Len(t, breach, 1)
	assert.Equal(t, contracts.SeverityReview, breach[0].Severity)
	assert.Equal(t, "after", breach[0].Details["phase"])
	assert.Equal(t, "0.010000", breach[0].Details["cash_weight"])
}

func TestSimulate_TargetDrift(t *testing.T) {
	in := Input{
		Before:  fixtures.Valued("USD", "10000"),
		Quotes:  fixtures.Quotes("USD", "AAA", "100", "BBB", "30"),
		Intents: []contracts.Intent{buy("AAA", "60", "100", "USD"), buy("BBB", "133", "30", "USD")},
		Target: &contracts.TargetWeights{Feasible: true, Weights: []contracts.TargetWeight{
			{InstrumentID: "AAA", Weight: fixtures.D("0.6")},
			{InstrumentID: "BBB", Weight: fixtures.D("0.4")},
		}},
	}

	_, diags := simulate(t, in)

	drift := contracts.FilterCode(diags, contracts.CodeTargetDrift)
	require.Len(t, drift, 1)
	assert.Equal(t, contracts.SeverityInfo, drift[0].Severity)
	assert.Equal(t, "BBB", drift[0].InstrumentID)
	assert.Equal(t, "0.001000", drift[0].Details["max_drift"])
}

func TestSimulate_NoIntents(t *testing.T) {
	before := fixtures.Valued("USD", "0", fixtures.VP("AAA", "10", "100", "USD"))
	res, diags := simulate(t, Input{Before: before, Quotes: fixtures.Quotes("USD", "AAA", "100")})

	assert.Empty(t, diags)
	assert.Empty(t, res.Intents)
	assert.True(t, res.After.TotalValue.Equal(before.TotalValue))
}

func TestSimulate_Deterministic(t *testing.T) {
	fx := s1_valuation.NewFXTable("USD", []contracts.FXRate{
		fixtures.Rate("EUR/USD", "1.2"), fixtures.Rate("USD/JPY", "150"),
	})
	in := Input{
		Before: fixtures.Valued("USD", "100000"),
		Quotes: contracts.QuoteBook{
			"EUX": quote("EUX", "100", "EUR", "1.2"),
			"JPX": quote("JPX", "3000", "JPY", "0.0066666666666667"),
		},
		FX:      fx,
		Intents: []contracts.Intent{buy("EUX", "10", "100", "EUR"), buy("JPX", "10", "3000", "JPY")},
	}

	first, _ := simulate(t, in)
	for i := 0; i < 5; i++ {
		again, _ := simulate(t, in)
		assert.Equal(t, first.Intents, again.Intents)
		assert.Equal(t, first.After, again.After)
	}
}

func countKind(intents []contracts.Intent, kind contracts.IntentKind) int {
	n := 0
	for _, it := range intents {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

func ids(intents []contracts.Intent) []string {
	out := make([]string, 0, len(intents))
	for _, it := range intents {
		out = append(out, it.ID)
	}
	return out
}

func findFX(t *testing.T, intents []contracts.Intent, buyCcy string) contracts.Intent {
	t.Helper()
	for _, it := range intents {
		if it.Kind == contracts.IntentFXSpot && it.BuyCurrency == buyCcy {
			return it
		}
	}
	t.Fatalf("no FX intent buying %s", buyCcy)
	return contracts.Intent{}
}

func findTrade(t *testing.T, intents []contracts.Intent, id string) contracts.Intent {
	t.Helper()
	for _, it := range intents {
		if it.Kind == contracts.IntentSecurityTrade && it.InstrumentID == id {
			return it
		}
	}
	t.Fatalf("no trade for %s", id)
	return contracts.Intent{}
}
