package s6_simulation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/currency"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/internal/s1_valuation"
	"github.com/wonny/aegis-rebalance/internal/s5_intents"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// Input is everything the simulation stage reads
type Input struct {
	Before  *contracts.ValuedSnapshot
	Quotes  contracts.QuoteBook
	FX      s1_valuation.FXTable
	Intents []contracts.Intent
	Shelf   []contracts.ShelfEntry
	Target  *contracts.TargetWeights
	Options *options.EngineOptions
}

// Result is the after-state with the final intent arena
type Result struct {
	Intents []contracts.Intent // FX 포함, ID 재부여 완료
	Graph   *contracts.IntentGraph
	After   *contracts.ValuedSnapshot
	Ladder  *contracts.SettlementLadder // settlement_aware일 때만
}

// Simulator applies intents to the before-state and validates the result
type Simulator struct {
	log *logger.Logger
}

// New creates the simulation stage
func New(log *logger.Logger) *Simulator {
	return &Simulator{log: log.WithStage(contracts.StageSimulation.ShortName())}
}

// state is the mutable book the intents are applied to
type state struct {
	quantities map[string]decimal.Decimal
	cash       map[string]decimal.Decimal
	flowsBase  decimal.Decimal // 입출금 (기준통화)
	costsBase  decimal.Decimal // 거래비용 (기준통화)
	fxLoss     decimal.Decimal // 환전 최소단위 반올림 손실 (기준통화)
}

func newState(before *contracts.ValuedSnapshot) *state {
	s := &state{
		quantities: make(map[string]decimal.Decimal, len(before.Positions)),
		cash:       make(map[string]decimal.Decimal, len(before.Cash)),
	}
	for _, p := range before.Positions {
		s.quantities[p.InstrumentID] = p.Quantity
	}
	for _, c := range before.Cash {
		s.cash[c.Currency] = c.Amount
	}
	return s
}

// Simulate produces the after-state.
// Invariant failures (oversell, dependency cycle, value not conserved) are returned
// as *contracts.InvariantError together with their INVARIANT diagnostics.
func (s *Simulator) Simulate(in Input) (*Result, []contracts.Diagnostic, error) {
	base := in.Before.BaseCurrency
	diags := make([]contracts.Diagnostic, 0)

	if oversold := oversells(in.Before, in.Intents); len(oversold) > 0 {
		for _, err := range oversold {
			diags = append(diags, err.Diagnostic())
		}
		s.log.WithError(oversold[0]).Error("oversell detected, intents discarded")
		// 실행 불가: 의도 폐기, after = before
		return &Result{Intents: []contracts.Intent{}, After: in.Before}, diags, oversold[0]
	}

	st := newState(in.Before)
	for _, it := range in.Intents {
		st.apply(it, in.Quotes, in.FX)
	}

	fx, fxDiags := st.fund(base, in.FX)
	diags = append(diags, fxDiags...)

	intents := make([]contracts.Intent, 0, len(in.Intents)+len(fx))
	intents = append(intents, in.Intents...)
	intents = append(intents, fx...)
	s5_intents.SortIntents(intents)
	for i := range intents {
		intents[i].ID = s5_intents.IntentID(i)
	}
	link(intents, base)

	graph, err := contracts.NewIntentGraph(intents)
	if err != nil {
		if inv, ok := contracts.AsInvariant(err); ok {
			diags = append(diags, inv.Diagnostic())
		}
		return &Result{Intents: intents, After: in.Before}, diags, fmt.Errorf("build intent graph: %w", err)
	}

	var ladder *contracts.SettlementLadder
	if in.Options.SettlementAware {
		var d []contracts.Diagnostic
		ladder, d = projectLadder(in.Before, intents, in.Shelf, in.Options)
		diags = append(diags, d...)
	}

	for _, ccy := range contracts.SortedKeys(st.cash) {
		if st.cash[ccy].IsNegative() {
			diags = append(diags, contracts.Blocking(contracts.StageSimulation, contracts.CodeInsufficientCash,
				fmt.Sprintf("%s cash ends at %s after all intents", ccy, st.cash[ccy])).
				ForCurrency(ccy).With("balance", st.cash[ccy].String()))
		}
	}

	after, err := s1_valuation.Revalue(base, st.quantities, st.cash, in.Quotes, in.FX)
	if err != nil {
		if inv, ok := contracts.AsInvariant(err); ok {
			diags = append(diags, inv.Diagnostic())
		}
		return &Result{Intents: intents, Graph: graph, After: in.Before, Ladder: ladder}, diags, fmt.Errorf("revalue after-state: %w", err)
	}

	if inv := checkConservation(in.Before, after, st, in.Options.ValueTolerance); inv != nil {
		diags = append(diags, inv.Diagnostic())
		s.log.WithError(inv).Error("after-state failed value conservation")
		return &Result{Intents: intents, Graph: graph, After: after, Ladder: ladder}, diags, inv
	}

	diags = append(diags, postChecks(after, in.Target, in.Options, len(in.Intents) > 0)...)
	contracts.SortDiagnostics(diags)

	s.log.WithFields(map[string]interface{}{
		"intents":     len(intents),
		"fx_intents":  len(fx),
		"total_value": after.TotalValue.String(),
	}).Debug("simulation complete")

	return &Result{Intents: intents, Graph: graph, After: after, Ladder: ladder}, diags, nil
}

// oversells finds instruments whose post-trade quantity would be negative
func oversells(before *contracts.ValuedSnapshot, intents []contracts.Intent) []*contracts.InvariantError {
	net := make(map[string]decimal.Decimal)
	for _, p := range before.Positions {
		net[p.InstrumentID] = p.Quantity
	}
	for _, it := range intents {
		switch {
		case it.IsBuy():
			net[it.InstrumentID] = net[it.InstrumentID].Add(it.Quantity)
		case it.IsSell():
			net[it.InstrumentID] = net[it.InstrumentID].Sub(it.Quantity)
		}
	}

	out := make([]*contracts.InvariantError, 0)
	for _, id := range contracts.SortedKeys(net) {
		if !net[id].IsNegative() {
			continue
		}
		held := decimal.Zero
		if p, ok := before.Position(id); ok {
			held = p.Quantity
		}
		out = append(out, contracts.NewInvariantError(contracts.StageSimulation, contracts.CodeOversell,
			fmt.Sprintf("%s would end at %s (held %s)", id, net[id], held)).
			WithDetail("instrument_id", id).
			WithDetail("held", held.String()).
			WithDetail("after", net[id].String()))
	}
	return out
}

func (s *state) apply(it contracts.Intent, quotes contracts.QuoteBook, fx s1_valuation.FXTable) {
	switch it.Kind {
	case contracts.IntentCashFlow:
		s.cash[it.Currency] = s.cash[it.Currency].Add(it.Notional)
		s.flowsBase = s.flowsBase.Add(it.NotionalBase)
	case contracts.IntentSecurityTrade:
		rate := decimal.NewFromInt(1)
		if q, ok := quotes.Get(it.InstrumentID); ok {
			rate = q.FXRate
		} else if r, ok := fx.ToBase(it.Currency); ok {
			rate = r
		}
		s.costsBase = s.costsBase.Add(it.Cost.Mul(rate))

		if it.Side == contracts.SideBuy {
			s.quantities[it.InstrumentID] = s.quantities[it.InstrumentID].Add(it.Quantity)
			s.cash[it.Currency] = s.cash[it.Currency].Sub(it.Notional).Sub(it.Cost)
		} else {
			s.quantities[it.InstrumentID] = s.quantities[it.InstrumentID].Sub(it.Quantity)
			s.cash[it.Currency] = s.cash[it.Currency].Add(it.Notional).Sub(it.Cost)
		}
	case contracts.IntentFXSpot:
		s.cash[it.BuyCurrency] = s.cash[it.BuyCurrency].Add(it.BuyAmount)
		s.cash[it.SellCurrency] = s.cash[it.SellCurrency].Sub(it.SellAmount)
	}
}

// fund generates hub-and-spoke FX spots: foreign deficits are bought with base,
// a base deficit is covered by selling surplus foreign cash in ascending currency order.
// 통화 간 직접 환전은 하지 않음 (FX 건수가 통화 수에 선형)
func (s *state) fund(base string, fx s1_valuation.FXTable) ([]contracts.Intent, []contracts.Diagnostic) {
	out := make([]contracts.Intent, 0)
	diags := make([]contracts.Diagnostic, 0)
	funded := make(map[string]bool)

	for _, ccy := range contracts.SortedKeys(s.cash) {
		if ccy == base || !s.cash[ccy].IsNegative() {
			continue
		}
		funded[ccy] = true
		rate, ok := fx.ToBase(ccy)
		if !ok {
			diags = append(diags, contracts.Blocking(contracts.StageSimulation, contracts.CodeFXMissing,
				fmt.Sprintf("cannot fund %s deficit: no %s/%s rate", ccy, ccy, base)).
				ForCurrency(ccy).With("role", "fx_funding"))
			continue
		}
		buy := currency.RoundUp(s.cash[ccy].Neg(), ccy)
		sell := currency.RoundUp(buy.Mul(rate), base)
		out = append(out, s.spot(ccy, base, buy, sell, rate, rate, decimal.NewFromInt(1)))
	}

	for _, ccy := range contracts.SortedKeys(s.cash) {
		if !s.cash[base].IsNegative() {
			break
		}
		if ccy == base || funded[ccy] || !s.cash[ccy].IsPositive() {
			continue
		}
		toBase, ok := fx.ToBase(ccy)
		fromBase, ok2 := fx.FromBase(ccy)
		if !ok || !ok2 {
			continue
		}

		needed := s.cash[base].Neg()
		surplus := s.cash[ccy]
		sell := decimal.Min(currency.RoundUp(needed.Mul(fromBase), ccy), surplus)
		received := currency.RoundDown(sell.Mul(toBase), base)
		if received.LessThan(needed) && sell.LessThan(surplus) {
			sell = decimal.Min(sell.Add(decimal.New(1, -currency.Fraction(ccy))), surplus)
			received = currency.RoundDown(sell.Mul(toBase), base)
		}
		if !received.IsPositive() {
			continue
		}
		out = append(out, s.spot(base, ccy, received, sell, fromBase, decimal.NewFromInt(1), toBase))
	}

	return out, diags
}

// spot books one FX trade. rate = sellCcy per 1 buyCcy; buyToBase/sellToBase value each leg.
func (s *state) spot(buyCcy, sellCcy string, buyAmount, sellAmount, rate, buyToBase, sellToBase decimal.Decimal) contracts.Intent {
	s.cash[buyCcy] = s.cash[buyCcy].Add(buyAmount)
	s.cash[sellCcy] = s.cash[sellCcy].Sub(sellAmount)

	buyBase := buyAmount.Mul(buyToBase)
	sellBase := sellAmount.Mul(sellToBase)
	s.fxLoss = s.fxLoss.Add(sellBase.Sub(buyBase))

	return contracts.Intent{
		Kind:         contracts.IntentFXSpot,
		Currency:     buyCcy,
		Notional:     buyAmount,
		NotionalBase: buyBase,
		BuyCurrency:  buyCcy,
		SellCurrency: sellCcy,
		BuyAmount:    buyAmount,
		SellAmount:   sellAmount,
		Rate:         rate,
		Reason:       contracts.ReasonFXFunding,
	}
}

// link wires funding edges in the final arena:
// buys → FX that buys their currency, FX → sells (and FX) that supply its sell currency
func link(intents []contracts.Intent, base string) {
	for i := range intents {
		intents[i].DependsOn = nil
	}
	for k, fx := range intents {
		if fx.Kind != contracts.IntentFXSpot {
			continue
		}
		for i := range intents {
			it := intents[i]
			switch {
			case it.IsBuy() && it.Currency == fx.BuyCurrency:
				intents[i].DependsOn = append(intents[i].DependsOn, k)
			case it.Kind == contracts.IntentFXSpot && i != k && it.SellCurrency == base && fx.BuyCurrency == base:
				// base → 외화 환전은 외화 → base 환전 대금에 의존
				intents[i].DependsOn = append(intents[i].DependsOn, k)
			}
		}
		for i, it := range intents {
			if it.IsSell() && it.Currency == fx.SellCurrency {
				intents[k].DependsOn = append(intents[k].DependsOn, i)
			}
		}
	}
	for i := range intents {
		sort.Ints(intents[i].DependsOn)
	}
}

// checkConservation: before + flows == after + costs + FX rounding, within relative tolerance
func checkConservation(before, after *contracts.ValuedSnapshot, st *state, tolerance float64) *contracts.InvariantError {
	expected := before.TotalValue.Add(st.flowsBase).Sub(st.costsBase).Sub(st.fxLoss)
	diff := after.TotalValue.Sub(expected).Abs()

	scale := expected.Abs()
	if scale.LessThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	if diff.Div(scale).LessThanOrEqual(decimal.NewFromFloat(tolerance)) {
		return nil
	}
	return contracts.NewInvariantError(contracts.StageSimulation, contracts.CodeValueNotConserved,
		fmt.Sprintf("after value %s differs from expected %s", after.TotalValue, expected)).
		WithDetail("before", before.TotalValue.String()).
		WithDetail("after", after.TotalValue.String()).
		WithDetail("expected", expected.String()).
		WithDetail("costs", st.costsBase.String()).
		WithDetail("flows", st.flowsBase.String())
}

// postChecks re-applies the cash band to the after-state and reports target drift
func postChecks(after *contracts.ValuedSnapshot, target *contracts.TargetWeights, opts *options.EngineOptions, traded bool) []contracts.Diagnostic {
	diags := make([]contracts.Diagnostic, 0)
	if !after.TotalValue.IsPositive() {
		return diags
	}

	if band := opts.CashBand; band != nil && traded {
		if after.CashWeight.LessThan(band.Min) || after.CashWeight.GreaterThan(band.Max) {
			diags = append(diags, contracts.Review(contracts.StageSimulation, contracts.CodeCashBandBreach,
				fmt.Sprintf("cash weight after trades %s outside band [%s, %s]",
					after.CashWeight.StringFixed(6), band.Min, band.Max)).
				With("phase", "after").
				With("cash_weight", after.CashWeight.StringFixed(6)).
				With("min", band.Min.String()).
				With("max", band.Max.String()))
		}
	}

	if target == nil || !target.Feasible || !traded {
		return diags
	}
	worst, worstID := decimal.Zero, ""
	for _, tw := range target.Weights {
		drift := after.WeightOf(tw.InstrumentID).Sub(tw.Weight).Abs()
		if drift.GreaterThan(worst) {
			worst, worstID = drift, tw.InstrumentID
		}
	}
	if worst.GreaterThan(driftThreshold) {
		diags = append(diags, contracts.Info(contracts.StageSimulation, contracts.CodeTargetDrift,
			fmt.Sprintf("after-state deviates from target by up to %s", worst.StringFixed(6))).
			ForInstrument(worstID).
			With("max_drift", worst.StringFixed(6)))
	}
	return diags
}

// 수량 반올림으로 생기는 정상 오차는 보고하지 않음
var driftThreshold = decimal.New(1, -4)
