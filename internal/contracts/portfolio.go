package contracts

import "github.com/shopspring/decimal"

// WeightTolerance is the allowed error of Σ weights + cash weight around 1.0
const WeightTolerance = 1e-9

// ValuedSnapshot is a portfolio normalised into the base currency
// ⭐ SSOT: S1 → S2..S6 "currency truth". before/after 모두 이 형태
type ValuedSnapshot struct {
	BaseCurrency string           `json:"base_currency"`
	TotalValue   decimal.Decimal  `json:"total_value"`
	Positions    []ValuedPosition `json:"positions"`
	Cash         []ValuedCash     `json:"cash"`
	CashWeight   decimal.Decimal  `json:"cash_weight"`
	Unpriced     []string         `json:"unpriced,omitempty"` // 가격/환율 누락으로 평가 제외
}

// ValuedPosition is a holding valued in base currency
type ValuedPosition struct {
	InstrumentID string          `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	FXRate       decimal.Decimal `json:"fx_rate"`
	Value        decimal.Decimal `json:"value"`
	Weight       decimal.Decimal `json:"weight"`
}

// ValuedCash is a cash balance valued in base currency
type ValuedCash struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	FXRate   decimal.Decimal `json:"fx_rate"`
	Value    decimal.Decimal `json:"value"`
	Weight   decimal.Decimal `json:"weight"`
}

// Position finds a valued position by instrument id
func (v *ValuedSnapshot) Position(instrumentID string) (ValuedPosition, bool) {
	if v == nil {
		return ValuedPosition{}, false
	}
	for _, p := range v.Positions {
		if p.InstrumentID == instrumentID {
			return p, true
		}
	}
	return ValuedPosition{}, false
}

// WeightOf returns the current weight of an instrument (0 if not held)
func (v *ValuedSnapshot) WeightOf(instrumentID string) decimal.Decimal {
	p, ok := v.Position(instrumentID)
	if !ok {
		return decimal.Zero
	}
	return p.Weight
}

// CashAmount returns the cash held in a currency
func (v *ValuedSnapshot) CashAmount(currency string) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	for _, c := range v.Cash {
		if c.Currency == currency {
			return c.Amount
		}
	}
	return decimal.Zero
}

// TotalWeight returns Σ instrument weights + cash weight
func (v *ValuedSnapshot) TotalWeight() decimal.Decimal {
	total := v.CashWeight
	for _, p := range v.Positions {
		total = total.Add(p.Weight)
	}
	return total
}

// Quote is a tradable price for an instrument together with its FX conversion to base
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	FXRate       decimal.Decimal `json:"fx_rate"` // base per 1 unit of Currency
}

// PriceInBase returns the unit price converted to base currency
func (q Quote) PriceInBase() decimal.Decimal {
	return q.Price.Mul(q.FXRate)
}

// QuoteBook indexes quotes by instrument id
type QuoteBook map[string]Quote

// Get returns the quote for an instrument
func (b QuoteBook) Get(instrumentID string) (Quote, bool) {
	q, ok := b[instrumentID]
	return q, ok
}

// TargetMethod identifies which target strategy produced weights
type TargetMethod string

const (
	TargetMethodHeuristic TargetMethod = "HEURISTIC"
	TargetMethodSolver    TargetMethod = "SOLVER"
)

// TargetWeights is the final constrained allocation
// ⭐ SSOT: S3 → S4/S5 목표 비중 전달
// 계약: Targets는 비중만 산출, 수량 계산은 S5(Intents)가 담당
type TargetWeights struct {
	Method     TargetMethod    `json:"method"`
	Feasible   bool            `json:"feasible"`
	Weights    []TargetWeight  `json:"weights"`
	CashWeight decimal.Decimal `json:"cash_weight"`
}

// TargetWeight is the target for one instrument
type TargetWeight struct {
	InstrumentID  string          `json:"instrument_id"`
	ModelWeight   decimal.Decimal `json:"model_weight"`
	CurrentWeight decimal.Decimal `json:"current_weight"`
	Weight        decimal.Decimal `json:"weight"`
}

// TotalWeight returns the sum of all target weights
func (t *TargetWeights) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, w := range t.Weights {
		total = total.Add(w.Weight)
	}
	return total
}

// Get finds a target by instrument id
func (t *TargetWeights) Get(instrumentID string) (TargetWeight, bool) {
	if t == nil {
		return TargetWeight{}, false
	}
	for _, w := range t.Weights {
		if w.InstrumentID == instrumentID {
			return w, true
		}
	}
	return TargetWeight{}, false
}
