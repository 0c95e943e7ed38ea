package contracts

import "github.com/shopspring/decimal"

// RunStatus is the terminal status of a run
type RunStatus string

const (
	StatusReady         RunStatus = "READY"
	StatusPendingReview RunStatus = "PENDING_REVIEW"
	StatusBlocked       RunStatus = "BLOCKED"
)

// GateDecision is the stable block read by external workflow state machines
// ⭐ SSOT: reason code만으로 상태 전이 가능해야 함 (자유 텍스트 파싱 금지)
type GateDecision struct {
	Status      RunStatus `json:"status"`
	ReasonCodes []string  `json:"reason_codes"`
	Blocking    int       `json:"blocking"`
	Review      int       `json:"review"`
}

// Outcome is the full audit bundle of one run
type Outcome struct {
	RunID       string            `json:"run_id"`
	Status      RunStatus         `json:"status"`
	Gate        GateDecision      `json:"gate"`
	Before      *ValuedSnapshot   `json:"before"`
	Target      *TargetWeights    `json:"target"`
	TaxPlan     *TaxPlan          `json:"tax_plan,omitempty"`
	Intents     []Intent          `json:"intents"`
	After       *ValuedSnapshot   `json:"after"`
	Settlement  *SettlementLadder `json:"settlement,omitempty"`
	Diagnostics []Diagnostic      `json:"diagnostics"`
}

// IsExecutable reports whether downstream may execute the intents without review
func (o *Outcome) IsExecutable() bool {
	return o.Status == StatusReady
}

// CountIntents counts intents of a kind
func (o *Outcome) CountIntents(kind IntentKind) int {
	n := 0
	for _, in := range o.Intents {
		if in.Kind == kind {
			n++
		}
	}
	return n
}

// TaxPlan is the S4 output: how much of each instrument may be sold and from which lots
type TaxPlan struct {
	Budget            *decimal.Decimal `json:"budget,omitempty"` // nil = 무제한
	TotalRealizedGain decimal.Decimal  `json:"total_realized_gain"`
	Instruments       []TaxSelection   `json:"instruments"`
}

// TaxSelection is the lot selection for one instrument
type TaxSelection struct {
	InstrumentID     string          `json:"instrument_id"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
	AllowedQuantity  decimal.Decimal `json:"allowed_quantity"`
	RealizedGain     decimal.Decimal `json:"realized_gain"` // 기준통화
	Mandatory        bool            `json:"mandatory,omitempty"`
	Unconstrained    bool            `json:"unconstrained,omitempty"` // 로트 정보 없음
	Lots             []LotFill       `json:"lots"`
}

// LotFill is the quantity consumed from one lot
type LotFill struct {
	LotID    string          `json:"lot_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Gain     decimal.Decimal `json:"gain"`
}

// Allowed returns the permitted sell quantity for an instrument
func (p *TaxPlan) Allowed(instrumentID string) (decimal.Decimal, bool) {
	if p == nil {
		return decimal.Zero, false
	}
	for _, s := range p.Instruments {
		if s.InstrumentID == instrumentID {
			return s.AllowedQuantity, true
		}
	}
	return decimal.Zero, false
}

// SettlementLadder is the projected day-by-day cash per currency
type SettlementLadder struct {
	HorizonDays int         `json:"horizon_days"`
	Rows        []LadderRow `json:"rows"`
}

// LadderRow is the projected cash balance of one currency at end of day
type LadderRow struct {
	Day      int             `json:"day"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}
