package s4_tax

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/internal/sizing"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// Input is everything the tax stage reads
type Input struct {
	Portfolio contracts.PortfolioSnapshot
	Valued    *contracts.ValuedSnapshot
	Quotes    contracts.QuoteBook
	Target    *contracts.TargetWeights
	Universe  *contracts.Universe
	Options   *options.EngineOptions

	// TradeRequests가 있으면 모델 대신 요청된 매도를 세금 계획 대상으로 사용
	TradeRequests []contracts.TradeRequest
}

// Selector picks tax lots highest-cost first under a realized-gains budget
type Selector struct {
	log *logger.Logger
}

// New creates the tax-aware sell selector
func New(log *logger.Logger) *Selector {
	return &Selector{log: log.WithStage(contracts.StageTax.ShortName())}
}

// Select builds the tax plan for every sell the intent stage would emit.
// 매도 수량은 줄어들 수만 있음 (예산 초과분은 REVIEW 진단으로 보고)
func (s *Selector) Select(in Input) (*contracts.TaxPlan, []contracts.Diagnostic, error) {
	plan := &contracts.TaxPlan{
		Budget:            in.Options.MaxRealizedGains,
		TotalRealizedGain: decimal.Zero,
		Instruments:       make([]contracts.TaxSelection, 0),
	}
	diags := make([]contracts.Diagnostic, 0)
	fractional := in.Options.FractionalQuantities

	sells := make([]sizing.Delta, 0)
	for _, d := range sellCandidates(in) {
		if d.IsSell() {
			sells = append(sells, d)
		}
	}
	// 강제 청산 먼저: 예산을 소진해도 축소되지 않으므로 이익을 먼저 반영
	sort.SliceStable(sells, func(i, j int) bool {
		if sells[i].Mandatory != sells[j].Mandatory {
			return sells[i].Mandatory
		}
		return sells[i].InstrumentID < sells[j].InstrumentID
	})

	for _, d := range sells {
		required := d.Quantity.Neg()
		lots := lotsFor(in.Portfolio, d.InstrumentID)

		sel := contracts.TaxSelection{
			InstrumentID:     d.InstrumentID,
			RequiredQuantity: required,
			Mandatory:        d.Mandatory,
			RealizedGain:     decimal.Zero,
			Lots:             make([]contracts.LotFill, 0),
		}

		if len(lots) == 0 {
			sel.Unconstrained = true
			sel.AllowedQuantity = required
			diags = append(diags, contracts.Info(contracts.StageTax, contracts.CodeTaxLotsMissing,
				fmt.Sprintf("%s has no tax lots, sell not tax-constrained", d.InstrumentID)).
				ForInstrument(d.InstrumentID))
			plan.Instruments = append(plan.Instruments, sel)
			continue
		}

		lotTotal := decimal.Zero
		for _, l := range lots {
			lotTotal = lotTotal.Add(l.Quantity)
		}
		sellable := required
		if lotTotal.LessThan(d.Held) {
			diags = append(diags, contracts.Review(contracts.StageTax, contracts.CodeTaxLotsIncomplete,
				fmt.Sprintf("%s lots cover %s of %s held", d.InstrumentID, lotTotal, d.Held)).
				ForInstrument(d.InstrumentID).
				With("lot_quantity", lotTotal.String()).
				With("held", d.Held.String()))
			if !d.Mandatory && lotTotal.LessThan(sellable) {
				sellable = lotTotal
			}
		}

		sortHIFO(lots)
		gainPerUnit := func(l contracts.TaxLot) decimal.Decimal {
			return d.Quote.Price.Sub(l.UnitCost).Mul(d.Quote.FXRate)
		}

		remaining := sellable
		exhausted := false
		for _, lot := range lots {
			if !remaining.IsPositive() || exhausted {
				break
			}
			take := decimal.Min(lot.Quantity, remaining)
			perUnit := gainPerUnit(lot)
			gain := take.Mul(perUnit)

			if plan.Budget != nil && !d.Mandatory && perUnit.IsPositive() &&
				plan.TotalRealizedGain.Add(gain).GreaterThan(*plan.Budget) {
				headroom := plan.Budget.Sub(plan.TotalRealizedGain)
				affordable := decimal.Zero
				if headroom.IsPositive() {
					affordable = sizing.RoundQuantity(headroom.Div(perUnit), fractional)
				}
				take = decimal.Min(affordable, take)
				gain = take.Mul(perUnit)
				exhausted = true
			}

			if take.IsPositive() {
				sel.Lots = append(sel.Lots, contracts.LotFill{
					LotID:    lot.LotID,
					Quantity: take,
					UnitCost: lot.UnitCost,
					Gain:     gain,
				})
				sel.RealizedGain = sel.RealizedGain.Add(gain)
				plan.TotalRealizedGain = plan.TotalRealizedGain.Add(gain)
				remaining = remaining.Sub(take)
			}
		}

		filled := decimal.Zero
		for _, f := range sel.Lots {
			filled = filled.Add(f.Quantity)
		}
		if filled.GreaterThan(lotTotal) {
			return nil, diags, contracts.NewInvariantError(contracts.StageTax, contracts.CodeTaxOversell,
				fmt.Sprintf("%s lot fills %s exceed lot quantity %s", d.InstrumentID, filled, lotTotal)).
				WithDetail("instrument_id", d.InstrumentID)
		}

		sel.AllowedQuantity = filled
		if d.Mandatory {
			// 로트 밖 수량도 강제 청산 대상
			sel.AllowedQuantity = required
		}

		if exhausted && sel.AllowedQuantity.LessThan(required) {
			diags = append(diags, contracts.Review(contracts.StageTax, contracts.CodeTaxBudgetShortfall,
				fmt.Sprintf("%s sell reduced from %s to %s by realized-gains budget", d.InstrumentID, required, sel.AllowedQuantity)).
				ForInstrument(d.InstrumentID).
				With("required_quantity", required.String()).
				With("allowed_quantity", sel.AllowedQuantity.String()).
				With("budget", plan.Budget.String()))
		}

		plan.Instruments = append(plan.Instruments, sel)
	}

	sort.SliceStable(plan.Instruments, func(i, j int) bool {
		return plan.Instruments[i].InstrumentID < plan.Instruments[j].InstrumentID
	})
	contracts.SortDiagnostics(diags)

	s.log.WithFields(map[string]interface{}{
		"sells":         len(plan.Instruments),
		"realized_gain": plan.TotalRealizedGain.String(),
	}).Debug("tax lots selected")

	return plan, diags, nil
}

// sellCandidates mirrors the intent stage: explicit requests replace model deltas
func sellCandidates(in Input) []sizing.Delta {
	fractional := in.Options.FractionalQuantities
	if len(in.TradeRequests) > 0 {
		return sizing.RequestedSells(in.Valued, in.Quotes, in.TradeRequests, in.Universe, fractional)
	}
	return sizing.Deltas(in.Valued, in.Quotes, in.Target, in.Universe, fractional)
}

// lotsFor gathers lots of an instrument across duplicate position rows (copied)
func lotsFor(snap contracts.PortfolioSnapshot, instrumentID string) []contracts.TaxLot {
	out := make([]contracts.TaxLot, 0)
	for _, p := range snap.Positions {
		if p.InstrumentID == instrumentID {
			out = append(out, p.Lots...)
		}
	}
	return out
}

// sortHIFO orders lots by unit cost desc, acquisition asc, lot id asc
func sortHIFO(lots []contracts.TaxLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i], lots[j]
		if !a.UnitCost.Equal(b.UnitCost) {
			return a.UnitCost.GreaterThan(b.UnitCost)
		}
		if !a.AcquiredOn.Equal(b.AcquiredOn) {
			return a.AcquiredOn.Before(b.AcquiredOn)
		}
		return a.LotID < b.LotID
	})
}
