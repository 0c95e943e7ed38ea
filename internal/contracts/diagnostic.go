package contracts

import (
	"sort"
	"strings"
)

// Severity decides how a diagnostic feeds the gate
type Severity string

const (
	SeverityBlocking Severity = "BLOCKING" // → BLOCKED
	SeverityReview   Severity = "REVIEW"   // → PENDING_REVIEW
	SeverityInfo     Severity = "INFO"     // 추적용, 판정에 영향 없음
)

// Rank orders severities (higher = stronger)
func (s Severity) Rank() int {
	switch s {
	case SeverityBlocking:
		return 2
	case SeverityReview:
		return 1
	default:
		return 0
	}
}

// Class separates business outcomes from internal invariant failures
type Class string

const (
	ClassBusiness  Class = "BUSINESS"
	ClassInvariant Class = "INVARIANT"
)

// Diagnostic codes (SSOT)
// 외부 워크플로우가 reason code로 사용하므로 변경 시 호환성 주의
const (
	// S1
	CodePriceMissing       = "price_missing"
	CodeFXMissing          = "fx_missing"
	CodeCurrencyUnknown    = "currency_unknown"
	CodeZeroPortfolioValue = "zero_portfolio_value"
	CodeWeightInvariant    = "weight_invariant"

	// S2
	CodeShelfMissing          = "shelf_missing"
	CodeForcedExit            = "forced_exit"
	CodeModelInstrumentBanned = "model_instrument_banned"
	CodeRestrictedHolding     = "restricted_holding"
	CodeBuyCappedByShelf      = "buy_capped_by_shelf"

	// S3
	CodeTargetInfeasible       = "target_infeasible"
	CodeGroupConstraintEvent   = "group_constraint_event"
	CodePositionBoundEvent     = "position_bound_event"
	CodeCashBandEvent          = "cash_band_event"
	CodeCashBandBreach         = "cash_band_breach"
	CodeGroupConstraintBreach  = "group_constraint_breach"
	CodeTargetMethodDivergence = "target_method_divergence"
	CodeRedistributionStuck    = "redistribution_not_terminating"

	// S4
	CodeTaxBudgetShortfall = "tax_budget_shortfall"
	CodeTaxLotsIncomplete  = "tax_lots_incomplete"
	CodeTaxLotsMissing     = "tax_lots_missing"
	CodeTaxOversell        = "tax_lot_oversell"

	// S5
	CodeDustSuppressed       = "dust_suppressed"
	CodeTurnoverCapped       = "turnover_capped"
	CodeBuyFundingScaled     = "buy_funding_scaled"
	CodeSellOnlyBuyRejected  = "sell_only_buy_rejected"
	CodeBannedBuyRejected    = "banned_buy_rejected"
	CodeRestrictedBuyBlocked = "restricted_buy_rejected"
	CodeInvalidTradeRequest  = "invalid_trade_request"

	// S6
	CodeSettlementOverdraft = "settlement_overdraft"
	CodeInsufficientCash    = "insufficient_cash"
	CodeOversell            = "oversell"
	CodeValueNotConserved   = "value_not_conserved"
	CodeIntentCycle         = "intent_dependency_cycle"
	CodeTargetDrift         = "target_drift"
)

// Diagnostic is a typed event explaining why a decision was made
type Diagnostic struct {
	Stage        Stage             `json:"stage"`
	Code         string            `json:"code"`
	Severity     Severity          `json:"severity"`
	Class        Class             `json:"class"`
	InstrumentID string            `json:"instrument_id,omitempty"`
	Currency     string            `json:"currency,omitempty"`
	Message      string            `json:"message"`
	Details      map[string]string `json:"details,omitempty"`
}

// Blocking creates a BLOCKING business diagnostic
func Blocking(stage Stage, code, message string) Diagnostic {
	return Diagnostic{Stage: stage, Code: code, Severity: SeverityBlocking, Class: ClassBusiness, Message: message}
}

// Review creates a REVIEW business diagnostic
func Review(stage Stage, code, message string) Diagnostic {
	return Diagnostic{Stage: stage, Code: code, Severity: SeverityReview, Class: ClassBusiness, Message: message}
}

// Info creates an INFO business diagnostic
func Info(stage Stage, code, message string) Diagnostic {
	return Diagnostic{Stage: stage, Code: code, Severity: SeverityInfo, Class: ClassBusiness, Message: message}
}

// ForInstrument returns a copy naming the instrument
func (d Diagnostic) ForInstrument(instrumentID string) Diagnostic {
	d.InstrumentID = instrumentID
	return d
}

// ForCurrency returns a copy naming the currency
func (d Diagnostic) ForCurrency(currency string) Diagnostic {
	d.Currency = currency
	return d
}

// With returns a copy with an extra detail entry
func (d Diagnostic) With(key, value string) Diagnostic {
	details := make(map[string]string, len(d.Details)+1)
	for k, v := range d.Details {
		details[k] = v
	}
	details[key] = value
	d.Details = details
	return d
}

// Trace is the append-only diagnostic accumulator threaded through the pipeline.
// Append never mutates the receiver's backing array.
type Trace struct {
	items []Diagnostic
}

// Append returns a new trace with the diagnostics added
func (t Trace) Append(diags ...Diagnostic) Trace {
	if len(diags) == 0 {
		return t
	}
	items := make([]Diagnostic, 0, len(t.items)+len(diags))
	items = append(items, t.items...)
	items = append(items, diags...)
	return Trace{items: items}
}

// Diagnostics returns a copy of the accumulated diagnostics in stage order
func (t Trace) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(t.items))
	copy(out, t.items)
	return out
}

// Len returns the number of diagnostics
func (t Trace) Len() int {
	return len(t.items)
}

// Has reports whether any diagnostic carries the code
func (t Trace) Has(code string) bool {
	return HasCode(t.items, code)
}

// HasCode reports whether any diagnostic in diags carries the code
func HasCode(diags []Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

// FilterCode returns the diagnostics with the code
func FilterCode(diags []Diagnostic, code string) []Diagnostic {
	out := make([]Diagnostic, 0)
	for _, d := range diags {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// SortDiagnostics orders diagnostics within a stage deterministically
// (code, instrument, currency, message)
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.InstrumentID != b.InstrumentID {
			return a.InstrumentID < b.InstrumentID
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return strings.Compare(a.Message, b.Message) < 0
	})
}
