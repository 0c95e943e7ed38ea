package contracts

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the caller's view of current holdings
// ⭐ SSOT: 파이프라인 입력. 어떤 Stage도 수정하지 않음
type PortfolioSnapshot struct {
	PortfolioID  string        `json:"portfolio_id" yaml:"portfolio_id"`
	BaseCurrency string        `json:"base_currency" yaml:"base_currency"`
	Positions    []Position    `json:"positions" yaml:"positions"`
	Cash         []CashBalance `json:"cash" yaml:"cash"`
}

// Position is a holding of one instrument
type Position struct {
	InstrumentID string          `json:"instrument_id" yaml:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity" yaml:"quantity"`
	Lots         []TaxLot        `json:"lots,omitempty" yaml:"lots,omitempty"`
}

// TaxLot is a single acquisition of an instrument.
// UnitCost is expressed in the instrument's price currency.
type TaxLot struct {
	LotID      string          `json:"lot_id" yaml:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity" yaml:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" yaml:"unit_cost"`
	AcquiredOn time.Time       `json:"acquired_on" yaml:"acquired_on"`
}

// CashBalance is a cash amount in one currency (negative = overdrawn)
type CashBalance struct {
	Currency string          `json:"currency" yaml:"currency"`
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
}

// LotQuantity returns the total quantity covered by tax lots
func (p Position) LotQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range p.Lots {
		total = total.Add(lot.Quantity)
	}
	return total
}

// Position finds a holding by instrument id
func (s PortfolioSnapshot) Position(instrumentID string) (Position, bool) {
	for _, p := range s.Positions {
		if p.InstrumentID == instrumentID {
			return p, true
		}
	}
	return Position{}, false
}

// Quantities aggregates holdings by instrument (duplicate rows are summed)
func (s PortfolioSnapshot) Quantities() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Positions))
	for _, p := range s.Positions {
		out[p.InstrumentID] = out[p.InstrumentID].Add(p.Quantity)
	}
	return out
}

// CashByCurrency aggregates cash balances by currency
func (s PortfolioSnapshot) CashByCurrency() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Cash))
	for _, c := range s.Cash {
		out[c.Currency] = out[c.Currency].Add(c.Amount)
	}
	return out
}

// MarketDataSnapshot holds prices and FX rates as of a point in time
type MarketDataSnapshot struct {
	AsOf    time.Time `json:"as_of" yaml:"as_of"`
	Prices  []Price   `json:"prices" yaml:"prices"`
	FXRates []FXRate  `json:"fx_rates" yaml:"fx_rates"`
}

// Price is an instrument price in its native currency
type Price struct {
	InstrumentID string          `json:"instrument_id" yaml:"instrument_id"`
	Price        decimal.Decimal `json:"price" yaml:"price"`
	Currency     string          `json:"currency" yaml:"currency"`
}

// FXRate is quoted as units of the second currency per one unit of the first.
// Pair format: "EUR/USD".
type FXRate struct {
	Pair string          `json:"pair" yaml:"pair"`
	Rate decimal.Decimal `json:"rate" yaml:"rate"`
}

// Currencies splits the pair into (from, to)
func (r FXRate) Currencies() (string, string, bool) {
	from, to, ok := strings.Cut(r.Pair, "/")
	if !ok || from == "" || to == "" {
		return "", "", false
	}
	return from, to, true
}

// ModelPortfolio holds target weights; the residual to 1.0 is implicit cash
type ModelPortfolio struct {
	ModelID string        `json:"model_id" yaml:"model_id"`
	Targets []ModelTarget `json:"targets" yaml:"targets"`
}

// ModelTarget is a single model weight
type ModelTarget struct {
	InstrumentID string          `json:"instrument_id" yaml:"instrument_id"`
	Weight       decimal.Decimal `json:"weight" yaml:"weight"`
}

// Weights aggregates model weights by instrument
func (m ModelPortfolio) Weights() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m.Targets))
	for _, t := range m.Targets {
		out[t.InstrumentID] = out[t.InstrumentID].Add(t.Weight)
	}
	return out
}

// ShelfStatus is the regulatory status of an instrument
type ShelfStatus string

const (
	ShelfAllowed    ShelfStatus = "ALLOWED"
	ShelfBanned     ShelfStatus = "BANNED"
	ShelfRestricted ShelfStatus = "RESTRICTED"
	ShelfSellOnly   ShelfStatus = "SELL_ONLY"
)

// IsValid reports whether s is a known shelf status
func (s ShelfStatus) IsValid() bool {
	switch s {
	case ShelfAllowed, ShelfBanned, ShelfRestricted, ShelfSellOnly:
		return true
	default:
		return false
	}
}

// AllowsBuy reports whether new buys are permitted
func (s ShelfStatus) AllowsBuy() bool {
	return s == ShelfAllowed
}

// ShelfEntry is the authoritative per-instrument rule for this portfolio's mandate
type ShelfEntry struct {
	InstrumentID   string            `json:"instrument_id" yaml:"instrument_id"`
	Status         ShelfStatus       `json:"status" yaml:"status"`
	Attributes     map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	SettlementDays *int              `json:"settlement_days,omitempty" yaml:"settlement_days,omitempty"`
}

// TradeRequest is an explicit what-if trade supplied by the caller
type TradeRequest struct {
	InstrumentID string          `json:"instrument_id" yaml:"instrument_id"`
	Side         Side            `json:"side" yaml:"side"`
	Quantity     decimal.Decimal `json:"quantity" yaml:"quantity"`
}

// CashFlow is a deposit (positive) or withdrawal (negative) applied on trade date
type CashFlow struct {
	Currency string          `json:"currency" yaml:"currency"`
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
}

// SortedKeys returns map keys in ascending order
// 결정성 보장: map 순회는 항상 정렬된 키로
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
