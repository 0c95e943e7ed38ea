package s1_valuation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/currency"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// Input is everything valuation reads
type Input struct {
	Portfolio     contracts.PortfolioSnapshot
	Market        contracts.MarketDataSnapshot
	Model         contracts.ModelPortfolio
	TradeRequests []contracts.TradeRequest
}

// Result is the S1 output
type Result struct {
	Snapshot *contracts.ValuedSnapshot
	Quotes   contracts.QuoteBook // 보유 + 모델 + 요청 종목 (가격/환율 확보된 것만)
	FX       FXTable
}

// Engine values a portfolio in its base currency
type Engine struct {
	log *logger.Logger
}

// New creates a valuation engine
func New(log *logger.Logger) *Engine {
	return &Engine{log: log.WithStage(contracts.StageValuation.ShortName())}
}

// Value normalises holdings and cash into the base currency.
// ⭐ SSOT: S1 "currency truth". 가격/환율 누락은 BLOCKING 진단, 조용히 0으로 평가하지 않음
func (e *Engine) Value(in Input) (*Result, []contracts.Diagnostic, error) {
	base := in.Portfolio.BaseCurrency
	fx := NewFXTable(base, in.Market.FXRates)
	diags := make([]contracts.Diagnostic, 0)

	prices := make(map[string]contracts.Price, len(in.Market.Prices))
	for _, p := range in.Market.Prices {
		if _, dup := prices[p.InstrumentID]; !dup {
			prices[p.InstrumentID] = p
		}
	}

	quantities := in.Portfolio.Quantities()
	roles := referencedInstruments(quantities, in.Model, in.TradeRequests)
	unknown := map[string]bool{}
	if !currency.Known(base) {
		unknown[base] = true
	}

	quotes := make(contracts.QuoteBook, len(roles))
	for _, id := range contracts.SortedKeys(roles) {
		role := strings.Join(roles[id], ",")

		p, ok := prices[id]
		if !ok || p.Price.IsNegative() {
			d := contracts.Blocking(contracts.StageValuation, contracts.CodePriceMissing,
				fmt.Sprintf("no usable price for %s", id)).ForInstrument(id).With("role", role)
			if ok {
				d = d.With("price", p.Price.String())
			}
			diags = append(diags, d)
			continue
		}

		rate, ok := fx.ToBase(p.Currency)
		if !ok {
			diags = append(diags, contracts.Blocking(contracts.StageValuation, contracts.CodeFXMissing,
				fmt.Sprintf("no FX rate between %s and %s", p.Currency, base)).
				ForInstrument(id).ForCurrency(p.Currency).
				With("pair", p.Currency+"/"+base).With("role", role))
			continue
		}
		if !currency.Known(p.Currency) {
			unknown[p.Currency] = true
		}

		quotes[id] = contracts.Quote{InstrumentID: id, Price: p.Price, Currency: p.Currency, FXRate: rate}
	}

	cash := in.Portfolio.CashByCurrency()
	for _, ccy := range contracts.SortedKeys(cash) {
		if !currency.Known(ccy) {
			unknown[ccy] = true
		}
		if _, ok := fx.ToBase(ccy); !ok {
			diags = append(diags, contracts.Blocking(contracts.StageValuation, contracts.CodeFXMissing,
				fmt.Sprintf("no FX rate between %s and %s", ccy, base)).
				ForCurrency(ccy).With("pair", ccy+"/"+base).With("role", "cash"))
		}
	}

	for _, ccy := range contracts.SortedKeys(unknown) {
		diags = append(diags, contracts.Review(contracts.StageValuation, contracts.CodeCurrencyUnknown,
			fmt.Sprintf("%s is not an ISO 4217 currency, assuming %d minor digits", ccy, currency.DefaultFraction)).
			ForCurrency(ccy))
	}

	snapshot, err := Revalue(base, quantities, cash, quotes, fx)
	if err != nil {
		return nil, diags, err
	}

	if !snapshot.TotalValue.IsPositive() {
		diags = append(diags, contracts.Blocking(contracts.StageValuation, contracts.CodeZeroPortfolioValue,
			"portfolio value is not positive").With("total_value", snapshot.TotalValue.String()))
	}

	contracts.SortDiagnostics(diags)

	e.log.WithFields(map[string]interface{}{
		"positions":   len(snapshot.Positions),
		"unpriced":    len(snapshot.Unpriced),
		"total_value": snapshot.TotalValue.String(),
		"base":        base,
	}).Debug("valuation complete")

	return &Result{Snapshot: snapshot, Quotes: quotes, FX: fx}, diags, nil
}

// Revalue values quantities and cash with already-resolved quotes.
// S6 reuses it for the after-state so before/after share one valuation rule.
// Holdings without a quote are listed in Unpriced and excluded from the total.
func Revalue(base string, quantities, cash map[string]decimal.Decimal, quotes contracts.QuoteBook, fx FXTable) (*contracts.ValuedSnapshot, error) {
	snap := &contracts.ValuedSnapshot{
		BaseCurrency: base,
		TotalValue:   decimal.Zero,
		Positions:    make([]contracts.ValuedPosition, 0, len(quantities)),
		Cash:         make([]contracts.ValuedCash, 0, len(cash)),
		CashWeight:   decimal.Zero,
	}

	for _, id := range contracts.SortedKeys(quantities) {
		qty := quantities[id]
		if qty.IsZero() {
			continue
		}
		q, ok := quotes.Get(id)
		if !ok {
			snap.Unpriced = append(snap.Unpriced, id)
			continue
		}
		value := qty.Mul(q.PriceInBase())
		snap.Positions = append(snap.Positions, contracts.ValuedPosition{
			InstrumentID: id,
			Quantity:     qty,
			Price:        q.Price,
			Currency:     q.Currency,
			FXRate:       q.FXRate,
			Value:        value,
		})
		snap.TotalValue = snap.TotalValue.Add(value)
	}

	for _, ccy := range contracts.SortedKeys(cash) {
		rate, ok := fx.ToBase(ccy)
		if !ok {
			continue
		}
		value := cash[ccy].Mul(rate)
		snap.Cash = append(snap.Cash, contracts.ValuedCash{
			Currency: ccy,
			Amount:   cash[ccy],
			FXRate:   rate,
			Value:    value,
		})
		snap.TotalValue = snap.TotalValue.Add(value)
	}

	// 총액 0 이하: 비중 정의 불가 → 모두 0 (zero_portfolio_value는 호출자가 판단)
	if !snap.TotalValue.IsPositive() {
		return snap, nil
	}

	for i := range snap.Positions {
		snap.Positions[i].Weight = snap.Positions[i].Value.Div(snap.TotalValue)
	}
	for i := range snap.Cash {
		snap.Cash[i].Weight = snap.Cash[i].Value.Div(snap.TotalValue)
		snap.CashWeight = snap.CashWeight.Add(snap.Cash[i].Weight)
	}

	sum := snap.TotalWeight()
	if sum.Sub(one).Abs().GreaterThan(decimal.NewFromFloat(contracts.WeightTolerance)) {
		return nil, contracts.NewInvariantError(contracts.StageValuation, contracts.CodeWeightInvariant,
			fmt.Sprintf("weights sum to %s, want 1", sum)).
			WithDetail("sum", sum.String()).
			WithDetail("total_value", snap.TotalValue.String())
	}

	return snap, nil
}

// referencedInstruments collects every instrument that must be priced, with its roles
func referencedInstruments(quantities map[string]decimal.Decimal, model contracts.ModelPortfolio, requests []contracts.TradeRequest) map[string][]string {
	roles := make(map[string][]string)
	add := func(id, role string) {
		for _, r := range roles[id] {
			if r == role {
				return
			}
		}
		roles[id] = append(roles[id], role)
	}

	for _, id := range contracts.SortedKeys(quantities) {
		if !quantities[id].IsZero() {
			add(id, "holding")
		}
	}
	for _, t := range model.Targets {
		add(t.InstrumentID, "model")
	}
	for _, r := range requests {
		add(r.InstrumentID, "trade_request")
	}
	for id := range roles {
		sort.Strings(roles[id])
	}
	return roles
}
