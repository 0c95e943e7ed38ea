package options

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

var one = decimal.NewFromInt(1)

// ValidationError 검증 실패 (실행 전 거부)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks every option value.
// 알 수 없는 값은 조용히 무시하지 않고 에러로 거부
func Validate(o *EngineOptions) error {
	// === Targets ===
	switch o.TargetMethod {
	case contracts.TargetMethodHeuristic, contracts.TargetMethodSolver:
	case "":
		return ValidationError{"target_method", "required"}
	default:
		return ValidationError{"target_method", fmt.Sprintf("must be HEURISTIC or SOLVER, got %q", o.TargetMethod)}
	}
	if math.IsNaN(o.DualPathTolerance) || o.DualPathTolerance <= 0 {
		return ValidationError{"dual_path_tolerance", "must be > 0"}
	}
	if o.SinglePositionMax != nil {
		if err := validateWeight(*o.SinglePositionMax, "single_position_max"); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(o.InstrumentBounds))
	for i, b := range o.InstrumentBounds {
		field := fmt.Sprintf("instrument_bounds[%d]", i)
		if b.InstrumentID == "" {
			return ValidationError{field + ".instrument_id", "required"}
		}
		if seen[b.InstrumentID] {
			return ValidationError{field + ".instrument_id", fmt.Sprintf("duplicate %q", b.InstrumentID)}
		}
		seen[b.InstrumentID] = true
		if b.Min != nil {
			if err := validateWeight(*b.Min, field+".min"); err != nil {
				return err
			}
		}
		if b.Max != nil {
			if err := validateWeight(*b.Max, field+".max"); err != nil {
				return err
			}
		}
		// min > max는 여기서 거부하지 않음: S3가 target_infeasible 진단으로 보고
	}

	groups := make(map[string]bool, len(o.GroupConstraints))
	for i, g := range o.GroupConstraints {
		field := fmt.Sprintf("group_constraints[%d]", i)
		if _, _, ok := g.Attribute(); !ok {
			return ValidationError{field + ".key", fmt.Sprintf("must be <attribute_key>:<attribute_value>, got %q", g.Key)}
		}
		if groups[g.Key] {
			return ValidationError{field + ".key", fmt.Sprintf("duplicate %q", g.Key)}
		}
		groups[g.Key] = true
		if err := validateWeight(g.MaxWeight, field+".max_weight"); err != nil {
			return err
		}
	}

	if o.CashBand != nil {
		if err := validateWeight(o.CashBand.Min, "cash_band.min"); err != nil {
			return err
		}
		if err := validateWeight(o.CashBand.Max, "cash_band.max"); err != nil {
			return err
		}
		if o.CashBand.Min.GreaterThan(o.CashBand.Max) {
			return ValidationError{"cash_band", "min must be <= max"}
		}
	}

	// === Tax ===
	if o.MaxRealizedGains != nil {
		if o.MaxRealizedGains.IsNegative() {
			return ValidationError{"max_realized_gains", "must be >= 0"}
		}
		if !o.TaxAware {
			return ValidationError{"max_realized_gains", "requires tax_aware=true"}
		}
	}

	// === Intents ===
	if o.MinNotional.IsNegative() {
		return ValidationError{"min_notional", "must be >= 0"}
	}
	if o.MaxTurnover != nil && o.MaxTurnover.IsNegative() {
		return ValidationError{"max_turnover", "must be >= 0"}
	}
	if o.TransactionCostBps.IsNegative() || o.TransactionCostBps.GreaterThan(decimal.NewFromInt(10_000)) {
		return ValidationError{"transaction_cost_bps", "must be in range [0, 10000]"}
	}

	// === Simulation ===
	if o.SettlementHorizonDays < 0 {
		return ValidationError{"settlement_horizon_days", "must be >= 0"}
	}
	if o.SettlementAware && o.SettlementHorizonDays < 1 {
		return ValidationError{"settlement_horizon_days", "must be >= 1 when settlement_aware"}
	}
	if o.DefaultSettlementDays < 0 {
		return ValidationError{"default_settlement_days", "must be >= 0"}
	}
	if o.FXSettlementDays < 0 {
		return ValidationError{"fx_settlement_days", "must be >= 0"}
	}
	if math.IsNaN(o.ValueTolerance) || o.ValueTolerance <= 0 || o.ValueTolerance >= 1 {
		return ValidationError{"value_tolerance", "must be in range (0, 1)"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(o *EngineOptions) []Warning {
	var warnings []Warning

	if o.TaxAware && o.MaxRealizedGains == nil {
		warnings = append(warnings, Warning{
			Code:    "TAX_AWARE_NO_BUDGET",
			Message: "tax_aware without max_realized_gains: lots are ordered HIFO but sells are never limited",
		})
	}

	if o.MinNotional.IsZero() {
		warnings = append(warnings, Warning{
			Code:    "NO_DUST_THRESHOLD",
			Message: "min_notional=0: single-unit trades will be generated",
		})
	}

	if o.CompareTargetMethods && o.DualPathTolerance > 0.01 {
		warnings = append(warnings, Warning{
			Code:    "LOOSE_DUAL_PATH",
			Message: "dual_path_tolerance > 1%: divergence will rarely be reported",
		})
	}

	if o.SettlementAware && o.SettlementHorizonDays < o.DefaultSettlementDays {
		warnings = append(warnings, Warning{
			Code:    "SHORT_HORIZON",
			Message: fmt.Sprintf("settlement_horizon_days=%d < default_settlement_days=%d: trades settle outside the ladder", o.SettlementHorizonDays, o.DefaultSettlementDays),
		})
	}

	return warnings
}

// validateWeight는 비중 값이 0~1 범위인지 검증
func validateWeight(w decimal.Decimal, field string) error {
	if w.IsNegative() || w.GreaterThan(one) {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
