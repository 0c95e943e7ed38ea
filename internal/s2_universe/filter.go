package s2_universe

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

var one = decimal.NewFromInt(1)

// Input is everything the universe filter reads
type Input struct {
	Valued *contracts.ValuedSnapshot
	Quotes contracts.QuoteBook
	Model  contracts.ModelPortfolio
	Shelf  []contracts.ShelfEntry
}

// Filter applies shelf rules before any target weight is computed
type Filter struct {
	log *logger.Logger
}

// New creates a universe filter
func New(log *logger.Logger) *Filter {
	return &Filter{log: log.WithStage(contracts.StageUniverse.ShortName())}
}

// Apply builds the investable universe
// ⭐ SSOT: S2 → S3 투자 가능 종목 전달
func (f *Filter) Apply(in Input) (*contracts.Universe, []contracts.Diagnostic) {
	shelf := make(map[string]contracts.ShelfEntry, len(in.Shelf))
	for _, e := range in.Shelf {
		if _, dup := shelf[e.InstrumentID]; !dup {
			shelf[e.InstrumentID] = e
		}
	}

	modelWeights := in.Model.Weights()
	candidates := make(map[string]bool)
	for _, p := range in.Valued.Positions {
		candidates[p.InstrumentID] = true
	}
	for id := range modelWeights {
		// 가격이 없는 모델 종목은 S1에서 이미 BLOCKING, 목표 계산 대상 아님
		if _, ok := in.Quotes.Get(id); ok {
			candidates[id] = true
		}
	}

	universe := &contracts.Universe{
		Instruments: make([]contracts.UniverseEntry, 0, len(candidates)),
		ForcedExits: make([]string, 0),
	}
	diags := make([]contracts.Diagnostic, 0)

	for _, id := range contracts.SortedKeys(candidates) {
		current := in.Valued.WeightOf(id)
		_, held := in.Valued.Position(id)
		modelWeight, inModel := modelWeights[id]

		entry := contracts.UniverseEntry{
			InstrumentID: id,
			Held:         held,
			InModel:      inModel,
		}

		rule, ok := shelf[id]
		if !ok || !rule.Status.IsValid() {
			d := contracts.Blocking(contracts.StageUniverse, contracts.CodeShelfMissing,
				fmt.Sprintf("no valid shelf entry for %s", id)).ForInstrument(id)
			if ok {
				d = d.With("status", string(rule.Status))
			}
			diags = append(diags, d)
			// 규정 미확인: 현재 비중 동결
			entry.MaxWeight = nonNegative(current)
			entry.MinWeight = entry.MaxWeight
			universe.Instruments = append(universe.Instruments, entry)
			continue
		}

		entry.Status = rule.Status
		entry.OnShelf = true
		entry.Attributes = rule.Attributes

		switch rule.Status {
		case contracts.ShelfAllowed:
			entry.MaxWeight = one

		case contracts.ShelfBanned:
			entry.MaxWeight = decimal.Zero
			if held {
				universe.ForcedExits = append(universe.ForcedExits, id)
				diags = append(diags, contracts.Info(contracts.StageUniverse, contracts.CodeForcedExit,
					fmt.Sprintf("%s is banned, holding scheduled for liquidation", id)).
					ForInstrument(id).With("current_weight", current.String()))
			}
			if inModel && modelWeight.IsPositive() {
				diags = append(diags, contracts.Info(contracts.StageUniverse, contracts.CodeModelInstrumentBanned,
					fmt.Sprintf("%s is banned, model weight redistributed", id)).
					ForInstrument(id).With("model_weight", modelWeight.String()))
			}

		case contracts.ShelfRestricted, contracts.ShelfSellOnly:
			entry.MaxWeight = nonNegative(current)
			if rule.Status == contracts.ShelfRestricted && held {
				diags = append(diags, contracts.Review(contracts.StageUniverse, contracts.CodeRestrictedHolding,
					fmt.Sprintf("%s is restricted, holding tolerated without new buys", id)).
					ForInstrument(id).With("current_weight", current.String()))
			}
			if inModel && modelWeight.GreaterThan(entry.MaxWeight) {
				diags = append(diags, contracts.Info(contracts.StageUniverse, contracts.CodeBuyCappedByShelf,
					fmt.Sprintf("%s is %s, target capped at current weight", id, rule.Status)).
					ForInstrument(id).
					With("model_weight", modelWeight.String()).
					With("max_weight", entry.MaxWeight.String()))
			}
		}

		universe.Instruments = append(universe.Instruments, entry)
	}

	contracts.SortDiagnostics(diags)

	f.log.WithFields(map[string]interface{}{
		"instruments":  len(universe.Instruments),
		"eligible":     universe.Count(),
		"forced_exits": len(universe.ForcedExits),
	}).Debug("universe filtered")

	return universe, diags
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
