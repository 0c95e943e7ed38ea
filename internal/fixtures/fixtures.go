// Package fixtures builds small, readable pipeline inputs for tests
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// AsOf is the fixed market timestamp used by every fixture
var AsOf = time.Date(2026, 3, 31, 16, 0, 0, 0, time.UTC)

// D parses a decimal literal (panics on typo)
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DP returns a pointer to a decimal literal
func DP(s string) *decimal.Decimal {
	v := D(s)
	return &v
}

// Cash builds a cash balance
func Cash(ccy, amount string) contracts.CashBalance {
	return contracts.CashBalance{Currency: ccy, Amount: D(amount)}
}

// Holding builds a position without tax lots
func Holding(id, qty string) contracts.Position {
	return contracts.Position{InstrumentID: id, Quantity: D(qty)}
}

// Lot builds a tax lot acquired n days before AsOf
func Lot(id, qty, unitCost string, daysAgo int) contracts.TaxLot {
	return contracts.TaxLot{
		LotID:      id,
		Quantity:   D(qty),
		UnitCost:   D(unitCost),
		AcquiredOn: AsOf.AddDate(0, 0, -daysAgo),
	}
}

// Portfolio builds a snapshot
func Portfolio(base string, positions []contracts.Position, cash ...contracts.CashBalance) contracts.PortfolioSnapshot {
	if positions == nil {
		positions = []contracts.Position{}
	}
	return contracts.PortfolioSnapshot{
		PortfolioID:  "PF-TEST",
		BaseCurrency: base,
		Positions:    positions,
		Cash:         cash,
	}
}

// Price builds an instrument price
func Price(id, price, ccy string) contracts.Price {
	return contracts.Price{InstrumentID: id, Price: D(price), Currency: ccy}
}

// Rate builds an FX rate "FROM/TO"
func Rate(pair, rate string) contracts.FXRate {
	return contracts.FXRate{Pair: pair, Rate: D(rate)}
}

// Market builds a market data snapshot
func Market(prices []contracts.Price, rates ...contracts.FXRate) contracts.MarketDataSnapshot {
	return contracts.MarketDataSnapshot{AsOf: AsOf, Prices: prices, FXRates: rates}
}

// Model builds a model portfolio from id/weight pairs: Model("AAA", "0.6", "BBB", "0.4")
func Model(pairs ...string) contracts.ModelPortfolio {
	m := contracts.ModelPortfolio{ModelID: "MODEL-TEST", Targets: make([]contracts.ModelTarget, 0, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Targets = append(m.Targets, contracts.ModelTarget{InstrumentID: pairs[i], Weight: D(pairs[i+1])})
	}
	return m
}

// Shelf builds an entry with optional "key=value" style attributes given as pairs
func Shelf(id string, status contracts.ShelfStatus, attrs ...string) contracts.ShelfEntry {
	entry := contracts.ShelfEntry{InstrumentID: id, Status: status}
	if len(attrs) > 0 {
		entry.Attributes = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			entry.Attributes[attrs[i]] = attrs[i+1]
		}
	}
	return entry
}

// Allowed builds ALLOWED shelf entries for ids
func Allowed(ids ...string) []contracts.ShelfEntry {
	out := make([]contracts.ShelfEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Shelf(id, contracts.ShelfAllowed))
	}
	return out
}

// Valued builds a valued snapshot directly (bypassing S1) for stage-level tests.
// quantities/prices are in base currency with FX 1; cash is in base.
func Valued(base string, cash string, holdings ...contracts.ValuedPosition) *contracts.ValuedSnapshot {
	snap := &contracts.ValuedSnapshot{BaseCurrency: base, Positions: []contracts.ValuedPosition{}}
	total := D(cash)
	for _, h := range holdings {
		total = total.Add(h.Value)
	}
	for _, h := range holdings {
		h.Weight = h.Value.Div(total)
		snap.Positions = append(snap.Positions, h)
	}
	cashAmount := D(cash)
	snap.Cash = []contracts.ValuedCash{{
		Currency: base, Amount: cashAmount, FXRate: decimal.NewFromInt(1), Value: cashAmount, Weight: cashAmount.Div(total),
	}}
	snap.CashWeight = cashAmount.Div(total)
	snap.TotalValue = total
	return snap
}

// VP builds a base-currency valued position
func VP(id, qty, price, base string) contracts.ValuedPosition {
	q, p := D(qty), D(price)
	return contracts.ValuedPosition{
		InstrumentID: id, Quantity: q, Price: p, Currency: base, FXRate: decimal.NewFromInt(1), Value: q.Mul(p),
	}
}

// Quotes builds a base-currency quote book from id/price pairs
func Quotes(base string, pairs ...string) contracts.QuoteBook {
	book := make(contracts.QuoteBook, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		book[pairs[i]] = contracts.Quote{InstrumentID: pairs[i], Price: D(pairs[i+1]), Currency: base, FXRate: decimal.NewFromInt(1)}
	}
	return book
}
