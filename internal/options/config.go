package options

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// EngineOptions는 리밸런싱 엔진의 모든 동작 스위치 (closed config)
// 모든 필드는 Defaults()에 기본값이 정의되어 있고, 알 수 없는 필드는 로드 시 거부됨
type EngineOptions struct {
	// S3 목표 비중
	TargetMethod         contracts.TargetMethod `yaml:"target_method" json:"target_method"`
	CompareTargetMethods bool                   `yaml:"compare_target_methods" json:"compare_target_methods"`
	DualPathTolerance    float64                `yaml:"dual_path_tolerance" json:"dual_path_tolerance"`
	SinglePositionMax    *decimal.Decimal       `yaml:"single_position_max,omitempty" json:"single_position_max,omitempty"`
	InstrumentBounds     []InstrumentBound      `yaml:"instrument_bounds" json:"instrument_bounds"`
	GroupConstraints     []GroupConstraint      `yaml:"group_constraints" json:"group_constraints"`
	CashBand             *CashBand              `yaml:"cash_band,omitempty" json:"cash_band,omitempty"`

	// S4 세금
	TaxAware         bool             `yaml:"tax_aware" json:"tax_aware"`
	MaxRealizedGains *decimal.Decimal `yaml:"max_realized_gains,omitempty" json:"max_realized_gains,omitempty"` // 기준통화, nil = 무제한

	// S5 매매 의도
	MinNotional          decimal.Decimal  `yaml:"min_notional" json:"min_notional"` // 기준통화 dust 기준
	FractionalQuantities bool             `yaml:"fractional_quantities" json:"fractional_quantities"`
	MaxTurnover          *decimal.Decimal `yaml:"max_turnover,omitempty" json:"max_turnover,omitempty"` // 총 거래대금 / 평가액
	TransactionCostBps   decimal.Decimal  `yaml:"transaction_cost_bps" json:"transaction_cost_bps"`

	// S6 시뮬레이션
	SettlementAware       bool    `yaml:"settlement_aware" json:"settlement_aware"`
	SettlementHorizonDays int     `yaml:"settlement_horizon_days" json:"settlement_horizon_days"`
	DefaultSettlementDays int     `yaml:"default_settlement_days" json:"default_settlement_days"`
	FXSettlementDays      int     `yaml:"fx_settlement_days" json:"fx_settlement_days"`
	ValueTolerance        float64 `yaml:"value_tolerance" json:"value_tolerance"` // 가치 보존 상대 허용오차
}

// InstrumentBound overrides the weight range of one instrument
type InstrumentBound struct {
	InstrumentID string           `yaml:"instrument_id" json:"instrument_id"`
	Min          *decimal.Decimal `yaml:"min,omitempty" json:"min,omitempty"`
	Max          *decimal.Decimal `yaml:"max,omitempty" json:"max,omitempty"`
}

// GroupConstraint caps the aggregate weight of instruments sharing an attribute value.
// Key format: "<attribute_key>:<attribute_value>", e.g. "sector:financials".
type GroupConstraint struct {
	Key       string          `yaml:"key" json:"key"`
	MaxWeight decimal.Decimal `yaml:"max_weight" json:"max_weight"`
}

// Attribute splits the key into attribute name and value
func (g GroupConstraint) Attribute() (string, string, bool) {
	attr, value, ok := strings.Cut(g.Key, ":")
	if !ok || attr == "" || value == "" || strings.Contains(value, ":") {
		return "", "", false
	}
	return attr, value, true
}

// Matches reports whether an instrument with these attributes belongs to the group
func (g GroupConstraint) Matches(attributes map[string]string) bool {
	attr, value, ok := g.Attribute()
	if !ok {
		return false
	}
	return attributes[attr] == value
}

// CashBand bounds the cash weight after rebalancing
type CashBand struct {
	Min decimal.Decimal `yaml:"min" json:"min"`
	Max decimal.Decimal `yaml:"max" json:"max"`
}

// Defaults returns the default engine configuration
func Defaults() EngineOptions {
	return EngineOptions{
		TargetMethod:          contracts.TargetMethodHeuristic,
		CompareTargetMethods:  false,
		DualPathTolerance:     1e-6,
		InstrumentBounds:      []InstrumentBound{},
		GroupConstraints:      []GroupConstraint{},
		TaxAware:              false,
		MinNotional:           decimal.Zero,
		FractionalQuantities:  false,
		TransactionCostBps:    decimal.Zero,
		SettlementAware:       false,
		SettlementHorizonDays: 5,
		DefaultSettlementDays: 2,
		FXSettlementDays:      2,
		ValueTolerance:        1e-6,
	}
}

// BoundFor returns the configured override for an instrument
func (o *EngineOptions) BoundFor(instrumentID string) (InstrumentBound, bool) {
	for _, b := range o.InstrumentBounds {
		if b.InstrumentID == instrumentID {
			return b, true
		}
	}
	return InstrumentBound{}, false
}

// CostRate returns transaction cost as a fraction of notional
func (o *EngineOptions) CostRate() decimal.Decimal {
	return o.TransactionCostBps.Div(decimal.NewFromInt(10_000))
}
