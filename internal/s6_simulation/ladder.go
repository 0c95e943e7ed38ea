package s6_simulation

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/options"
)

// flow is a cash movement landing on a settlement day
type flow struct {
	day      int
	currency string
	amount   decimal.Decimal
}

// projectLadder projects end-of-day cash per currency for day 0..horizon.
// Flows settling after the horizon are not projected.
// 첫 음수 잔고 (통화별 1건)를 settlement_overdraft로 보고
func projectLadder(before *contracts.ValuedSnapshot, intents []contracts.Intent, shelf []contracts.ShelfEntry, opts *options.EngineOptions) (*contracts.SettlementLadder, []contracts.Diagnostic) {
	opening := make(map[string]decimal.Decimal)
	for _, c := range before.Cash {
		opening[c.Currency] = opening[c.Currency].Add(c.Amount)
	}

	flows := settlementFlows(intents, shelf, opts)
	for _, f := range flows {
		if _, ok := opening[f.currency]; !ok {
			opening[f.currency] = decimal.Zero
		}
	}

	horizon := opts.SettlementHorizonDays
	ladder := &contracts.SettlementLadder{HorizonDays: horizon, Rows: make([]contracts.LadderRow, 0)}
	diags := make([]contracts.Diagnostic, 0)

	for _, ccy := range contracts.SortedKeys(opening) {
		balance := opening[ccy]
		reported := false
		for day := 0; day <= horizon; day++ {
			for _, f := range flows {
				if f.day == day && f.currency == ccy {
					balance = balance.Add(f.amount)
				}
			}
			ladder.Rows = append(ladder.Rows, contracts.LadderRow{Day: day, Currency: ccy, Balance: balance})

			if balance.IsNegative() && !reported {
				reported = true
				diags = append(diags, contracts.Blocking(contracts.StageSimulation, contracts.CodeSettlementOverdraft,
					fmt.Sprintf("%s cash projected at %s on day %d", ccy, balance, day)).
					ForCurrency(ccy).
					With("day", strconv.Itoa(day)).
					With("balance", balance.String()))
			}
		}
	}

	return ladder, diags
}

// settlementFlows maps intents to dated cash movements
func settlementFlows(intents []contracts.Intent, shelf []contracts.ShelfEntry, opts *options.EngineOptions) []flow {
	out := make([]flow, 0, len(intents))
	for _, it := range intents {
		switch it.Kind {
		case contracts.IntentCashFlow:
			out = append(out, flow{day: 0, currency: it.Currency, amount: it.Notional})
		case contracts.IntentSecurityTrade:
			day := settlementDays(it.InstrumentID, shelf, opts.DefaultSettlementDays)
			amount := it.Notional.Neg().Sub(it.Cost)
			if it.Side == contracts.SideSell {
				amount = it.Notional.Sub(it.Cost)
			}
			out = append(out, flow{day: day, currency: it.Currency, amount: amount})
		case contracts.IntentFXSpot:
			out = append(out,
				flow{day: opts.FXSettlementDays, currency: it.BuyCurrency, amount: it.BuyAmount},
				flow{day: opts.FXSettlementDays, currency: it.SellCurrency, amount: it.SellAmount.Neg()},
			)
		}
	}
	return out
}

func settlementDays(instrumentID string, shelf []contracts.ShelfEntry, fallback int) int {
	for _, e := range shelf {
		if e.InstrumentID == instrumentID && e.SettlementDays != nil {
			// 음수 결제일은 당일 결제로 취급
			return max(*e.SettlementDays, 0)
		}
	}
	return fallback
}
