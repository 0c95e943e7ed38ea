// Package sizing turns weight differences into signed trade quantities.
// S4 and S5 share it so the tax plan is computed for exactly the sells S5 will emit.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// FractionalScale is the quantity precision when fractional quantities are allowed
const FractionalScale int32 = 8

// Delta is the signed quantity change for one instrument (+ buy, − sell)
type Delta struct {
	InstrumentID string
	Quote        contracts.Quote
	Held         decimal.Decimal
	TargetWeight decimal.Decimal
	Quantity     decimal.Decimal
	FullExit     bool
	Mandatory    bool // 강제 청산 (BANNED 보유)
}

// NotionalBase returns the signed base-currency notional of the delta
func (d Delta) NotionalBase() decimal.Decimal {
	return d.Quantity.Mul(d.Quote.PriceInBase())
}

// IsSell reports whether the delta sells
func (d Delta) IsSell() bool {
	return d.Quantity.IsNegative()
}

// RoundQuantity rounds toward zero: integers, or FractionalScale digits when fractional
func RoundQuantity(q decimal.Decimal, fractional bool) decimal.Decimal {
	if fractional {
		return q.Truncate(FractionalScale)
	}
	return q.Truncate(0)
}

// Deltas sizes every target instrument that has a quote, in ascending id order.
// Forced exits and zero targets sell the whole holding regardless of rounding.
func Deltas(valued *contracts.ValuedSnapshot, quotes contracts.QuoteBook, target *contracts.TargetWeights, universe *contracts.Universe, fractional bool) []Delta {
	out := make([]Delta, 0)
	if target == nil {
		return out
	}

	for _, tw := range target.Weights {
		q, ok := quotes.Get(tw.InstrumentID)
		if !ok || !q.PriceInBase().IsPositive() {
			continue
		}

		held := decimal.Zero
		if p, ok := valued.Position(tw.InstrumentID); ok {
			held = p.Quantity
		}

		d := Delta{
			InstrumentID: tw.InstrumentID,
			Quote:        q,
			Held:         held,
			TargetWeight: tw.Weight,
			Mandatory:    universe.IsForcedExit(tw.InstrumentID),
		}

		switch {
		case held.IsPositive() && (d.Mandatory || !tw.Weight.IsPositive()):
			d.Quantity = held.Neg()
			d.FullExit = true
		default:
			notional := tw.Weight.Sub(tw.CurrentWeight).Mul(valued.TotalValue)
			d.Quantity = RoundQuantity(notional.Div(q.PriceInBase()), fractional)
			// 반올림 오차로 보유량 초과 매도 방지
			if d.Quantity.Neg().GreaterThan(held) {
				d.Quantity = held.Neg()
			}
		}

		out = append(out, d)
	}
	return out
}

// RequestedSells sizes explicit SELL requests per instrument in ascending id order.
// Requests are summed per instrument; malformed, unpriced or (when not fractional)
// non-integer totals are skipped because the intent stage rejects them.
func RequestedSells(valued *contracts.ValuedSnapshot, quotes contracts.QuoteBook, requests []contracts.TradeRequest, universe *contracts.Universe, fractional bool) []Delta {
	totals := make(map[string]decimal.Decimal)
	for _, r := range requests {
		if r.Side != contracts.SideSell || !r.Quantity.IsPositive() || r.InstrumentID == "" {
			continue
		}
		totals[r.InstrumentID] = totals[r.InstrumentID].Add(r.Quantity)
	}

	out := make([]Delta, 0, len(totals))
	for _, id := range contracts.SortedKeys(totals) {
		q, ok := quotes.Get(id)
		if !ok {
			continue
		}
		total := totals[id]
		if !RoundQuantity(total, fractional).Equal(total) {
			continue
		}

		held := decimal.Zero
		if p, ok := valued.Position(id); ok {
			held = p.Quantity
		}
		out = append(out, Delta{
			InstrumentID: id,
			Quote:        q,
			Held:         held,
			Quantity:     total.Neg(),
			FullExit:     total.GreaterThanOrEqual(held),
			Mandatory:    universe.IsForcedExit(id),
		})
	}
	return out
}
