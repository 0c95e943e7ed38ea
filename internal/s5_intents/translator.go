package s5_intents

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/currency"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/internal/sizing"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// Rates converts a currency into base units
type Rates interface {
	ToBase(ccy string) (decimal.Decimal, bool)
}

// Input is everything the intent stage reads
type Input struct {
	Valued        *contracts.ValuedSnapshot
	Quotes        contracts.QuoteBook
	FX            Rates
	Target        *contracts.TargetWeights
	Universe      *contracts.Universe
	Shelf         []contracts.ShelfEntry
	TaxPlan       *contracts.TaxPlan // nil = 세금 비활성
	TradeRequests []contracts.TradeRequest
	CashFlows     []contracts.CashFlow
	Options       *options.EngineOptions
}

// Translator converts weight deltas (or explicit trade requests) into intents
type Translator struct {
	log *logger.Logger
}

// New creates the intent stage
func New(log *logger.Logger) *Translator {
	return &Translator{log: log.WithStage(contracts.StageIntents.ShortName())}
}

// leg is a security trade under construction (signed quantity)
type leg struct {
	instrumentID string
	quote        contracts.Quote
	quantity     decimal.Decimal
	raw          decimal.Decimal // 반올림 전 기준통화 금액 (dust 판단용)
	mandatory    bool
	reason       string
}

func (l leg) notionalBase() decimal.Decimal {
	return l.quantity.Abs().Mul(l.quote.PriceInBase())
}

// Translate produces the ordered intent arena for S6.
// TradeRequests가 있으면 모델 대신 요청 거래만 생성 (what-if 제안 모드)
func (t *Translator) Translate(in Input) ([]contracts.Intent, []contracts.Diagnostic) {
	opts := in.Options
	diags := make([]contracts.Diagnostic, 0)

	var legs []leg
	explicit := len(in.TradeRequests) > 0
	if explicit {
		var d []contracts.Diagnostic
		legs, d = requestLegs(in)
		diags = append(diags, d...)
	} else {
		var d []contracts.Diagnostic
		legs, d = modelLegs(in)
		diags = append(diags, d...)

		if opts.MaxTurnover != nil {
			diags = append(diags, capTurnover(legs, in.Valued.TotalValue.Mul(*opts.MaxTurnover), opts.FractionalQuantities)...)
		}
		diags = append(diags, fundBuys(in, legs)...)
	}

	intents := make([]contracts.Intent, 0, len(legs)+len(in.CashFlows))
	for _, l := range legs {
		if l.quantity.IsZero() {
			if l.raw.Abs().GreaterThanOrEqual(decimal.New(1, -currency.Fraction(in.Valued.BaseCurrency))) {
				diags = append(diags, dust(l, opts.MinNotional, "rounds_to_zero"))
			}
			continue
		}
		if l.notionalBase().LessThan(opts.MinNotional) {
			diags = append(diags, dust(l, opts.MinNotional, "below_min_notional"))
			continue
		}
		intents = append(intents, securityIntent(l, opts.CostRate()))
	}

	for _, cf := range in.CashFlows {
		if cf.Amount.IsZero() {
			continue
		}
		rate, ok := in.FX.ToBase(cf.Currency)
		if !ok {
			diags = append(diags, contracts.Blocking(contracts.StageIntents, contracts.CodeFXMissing,
				fmt.Sprintf("no FX rate for cash flow in %s", cf.Currency)).
				ForCurrency(cf.Currency).With("role", "cash_flow"))
			continue
		}
		amount := currency.Round(cf.Amount, cf.Currency)
		intents = append(intents, contracts.Intent{
			Kind:         contracts.IntentCashFlow,
			Currency:     cf.Currency,
			Notional:     amount,
			NotionalBase: amount.Mul(rate),
			Reason:       contracts.ReasonCashFlow,
		})
	}

	SortIntents(intents)
	for i := range intents {
		intents[i].ID = IntentID(i)
	}
	contracts.SortDiagnostics(diags)

	t.log.WithFields(map[string]interface{}{
		"intents":  len(intents),
		"explicit": explicit,
	}).Debug("intents generated")

	return intents, diags
}

// IntentID formats the arena position as a stable id
func IntentID(i int) string {
	return fmt.Sprintf("INT-%04d", i+1)
}

// SortIntents orders by instrument id, kind, currency, side
func SortIntents(intents []contracts.Intent) {
	sort.SliceStable(intents, func(i, j int) bool {
		a, b := intents[i], intents[j]
		if a.InstrumentID != b.InstrumentID {
			return a.InstrumentID < b.InstrumentID
		}
		if a.Kind.Rank() != b.Kind.Rank() {
			return a.Kind.Rank() < b.Kind.Rank()
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return a.Side < b.Side
	})
}

// modelLegs sizes target deltas and applies tax caps and shelf rules
func modelLegs(in Input) ([]leg, []contracts.Diagnostic) {
	diags := make([]contracts.Diagnostic, 0)
	legs := make([]leg, 0)

	for _, d := range sizing.Deltas(in.Valued, in.Quotes, in.Target, in.Universe, in.Options.FractionalQuantities) {
		l := leg{
			instrumentID: d.InstrumentID,
			quote:        d.Quote,
			quantity:     d.Quantity,
			raw:          d.TargetWeight.Sub(in.Valued.WeightOf(d.InstrumentID)).Mul(in.Valued.TotalValue),
			mandatory:    d.Mandatory,
			reason:       contracts.ReasonRebalance,
		}
		if d.Mandatory {
			l.reason = contracts.ReasonForcedExit
		}

		if d.IsSell() && in.TaxPlan != nil {
			if allowed, ok := in.TaxPlan.Allowed(d.InstrumentID); ok && allowed.LessThan(l.quantity.Neg()) {
				l.quantity = allowed.Neg()
			}
		}

		if l.quantity.IsPositive() {
			if diag, rejected := governance(in, d.InstrumentID); rejected {
				diags = append(diags, diag.With("quantity", l.quantity.String()))
				continue
			}
		}

		legs = append(legs, l)
	}
	return legs, diags
}

// requestLegs validates explicit trade requests; sells are passed through unchanged (S6 checks oversell)
func requestLegs(in Input) ([]leg, []contracts.Diagnostic) {
	diags := make([]contracts.Diagnostic, 0)

	type key struct {
		id   string
		side contracts.Side
	}
	totals := make(map[key]decimal.Decimal)
	keys := make([]key, 0)

	for i, r := range in.TradeRequests {
		if !r.Side.IsValid() || !r.Quantity.IsPositive() || r.InstrumentID == "" {
			diags = append(diags, contracts.Blocking(contracts.StageIntents, contracts.CodeInvalidTradeRequest,
				fmt.Sprintf("trade request #%d is malformed", i)).
				ForInstrument(r.InstrumentID).
				With("side", string(r.Side)).
				With("quantity", r.Quantity.String()))
			continue
		}
		k := key{r.InstrumentID, r.Side}
		if _, ok := totals[k]; !ok {
			keys = append(keys, k)
		}
		totals[k] = totals[k].Add(r.Quantity)
	}

	legs := make([]leg, 0, len(keys))
	for _, k := range keys {
		// 가격 없는 종목은 S1이 price_missing으로 이미 차단
		q, ok := in.Quotes.Get(k.id)
		if !ok {
			continue
		}
		if k.side == contracts.SideBuy {
			if diag, rejected := governance(in, k.id); rejected {
				diags = append(diags, diag.With("quantity", totals[k].String()))
				continue
			}
		}

		qty := sizing.RoundQuantity(totals[k], in.Options.FractionalQuantities)
		if !qty.Equal(totals[k]) {
			diags = append(diags, contracts.Blocking(contracts.StageIntents, contracts.CodeInvalidTradeRequest,
				fmt.Sprintf("%s quantity %s is fractional", k.id, totals[k])).
				ForInstrument(k.id).With("quantity", totals[k].String()))
			continue
		}
		if k.side == contracts.SideSell {
			qty = capByTaxPlan(in, k.id, qty)
			qty = qty.Neg()
		}
		legs = append(legs, leg{
			instrumentID: k.id,
			quote:        q,
			quantity:     qty,
			raw:          qty.Mul(q.PriceInBase()),
			reason:       contracts.ReasonTradeRequest,
		})
	}
	return legs, diags
}

// capByTaxPlan limits a requested sell to the tax plan's allowance.
// A request above the holding is left intact so the simulation reports the oversell.
func capByTaxPlan(in Input, instrumentID string, qty decimal.Decimal) decimal.Decimal {
	allowed, ok := in.TaxPlan.Allowed(instrumentID)
	if !ok || !allowed.LessThan(qty) {
		return qty
	}
	held := decimal.Zero
	if p, ok := in.Valued.Position(instrumentID); ok {
		held = p.Quantity
	}
	if qty.GreaterThan(held) {
		return qty
	}
	return allowed
}

// governance rejects buys against instruments the shelf does not allow buying
func governance(in Input, instrumentID string) (contracts.Diagnostic, bool) {
	status, ok := shelfStatus(in, instrumentID)
	if !ok {
		return contracts.Blocking(contracts.StageIntents, contracts.CodeShelfMissing,
			fmt.Sprintf("buy of %s has no shelf entry", instrumentID)).ForInstrument(instrumentID), true
	}

	var code string
	switch status {
	case contracts.ShelfAllowed:
		return contracts.Diagnostic{}, false
	case contracts.ShelfSellOnly:
		code = contracts.CodeSellOnlyBuyRejected
	case contracts.ShelfBanned:
		code = contracts.CodeBannedBuyRejected
	case contracts.ShelfRestricted:
		code = contracts.CodeRestrictedBuyBlocked
	default:
		code = contracts.CodeShelfMissing
	}
	return contracts.Blocking(contracts.StageIntents, code,
		fmt.Sprintf("buy of %s rejected: shelf status %s", instrumentID, status)).
		ForInstrument(instrumentID).With("status", string(status)), true
}

func shelfStatus(in Input, instrumentID string) (contracts.ShelfStatus, bool) {
	if e, ok := in.Universe.Get(instrumentID); ok && e.OnShelf {
		return e.Status, true
	}
	for _, e := range in.Shelf {
		if e.InstrumentID == instrumentID {
			return e.Status, true
		}
	}
	return "", false
}

// capTurnover trims non-mandatory legs proportionally so gross notional fits the cap
func capTurnover(legs []leg, limit decimal.Decimal, fractional bool) []contracts.Diagnostic {
	gross, mandatory := decimal.Zero, decimal.Zero
	for _, l := range legs {
		gross = gross.Add(l.notionalBase())
		if l.mandatory {
			mandatory = mandatory.Add(l.notionalBase())
		}
	}
	if gross.LessThanOrEqual(limit) {
		return nil
	}

	trimmable := gross.Sub(mandatory)
	factor := decimal.Zero
	if limit.GreaterThan(mandatory) && trimmable.IsPositive() {
		factor = limit.Sub(mandatory).Div(trimmable)
	}
	for i := range legs {
		if legs[i].mandatory {
			continue
		}
		legs[i].quantity = sizing.RoundQuantity(legs[i].quantity.Mul(factor), fractional)
	}

	return []contracts.Diagnostic{
		contracts.Info(contracts.StageIntents, contracts.CodeTurnoverCapped,
			fmt.Sprintf("gross notional %s trimmed to turnover cap %s", gross, limit)).
			With("gross_notional", gross.String()).
			With("limit", limit.String()).
			With("mandatory_notional", mandatory.String()).
			With("factor", factor.StringFixed(6)),
	}
}

// fundBuys scales buys down when cash plus sell proceeds (net of cost) cannot pay for them
func fundBuys(in Input, legs []leg) []contracts.Diagnostic {
	costRate := in.Options.CostRate()

	available := decimal.Zero
	for _, c := range in.Valued.Cash {
		available = available.Add(c.Value)
	}
	for _, cf := range in.CashFlows {
		if rate, ok := in.FX.ToBase(cf.Currency); ok {
			available = available.Add(cf.Amount.Mul(rate))
		}
	}
	required := decimal.Zero
	for _, l := range legs {
		if l.quantity.IsNegative() {
			available = available.Add(l.notionalBase().Mul(one.Sub(costRate)))
		} else {
			required = required.Add(l.notionalBase().Mul(one.Add(costRate)))
		}
	}
	if !required.IsPositive() || required.LessThanOrEqual(available) {
		return nil
	}

	factor := decimal.Zero
	if available.IsPositive() {
		factor = available.Div(required)
	}
	for i := range legs {
		if legs[i].quantity.IsPositive() {
			legs[i].quantity = sizing.RoundQuantity(legs[i].quantity.Mul(factor), in.Options.FractionalQuantities)
		}
	}

	return []contracts.Diagnostic{
		contracts.Review(contracts.StageIntents, contracts.CodeBuyFundingScaled,
			fmt.Sprintf("buys need %s but only %s is available", required, available)).
			With("required", required.String()).
			With("available", available.String()).
			With("factor", factor.StringFixed(6)),
	}
}

var one = decimal.NewFromInt(1)

func dust(l leg, minNotional decimal.Decimal, reason string) contracts.Diagnostic {
	msg := fmt.Sprintf("%s trade below dust threshold suppressed", l.instrumentID)
	d := contracts.Info(contracts.StageIntents, contracts.CodeDustSuppressed, msg)
	if l.mandatory {
		// 강제 청산이 억제되면 금지 종목이 남음 → 검토 필요
		d = contracts.Review(contracts.StageIntents, contracts.CodeDustSuppressed, msg)
	}
	return d.ForInstrument(l.instrumentID).
		With("reason", reason).
		With("quantity", l.quantity.String()).
		With("notional", l.notionalBase().String()).
		With("min_notional", minNotional.String())
}

func securityIntent(l leg, costRate decimal.Decimal) contracts.Intent {
	side := contracts.SideBuy
	if l.quantity.IsNegative() {
		side = contracts.SideSell
	}
	qty := l.quantity.Abs()
	notional := qty.Mul(l.quote.Price)

	return contracts.Intent{
		Kind:         contracts.IntentSecurityTrade,
		InstrumentID: l.instrumentID,
		Side:         side,
		Quantity:     qty,
		Price:        l.quote.Price,
		Currency:     l.quote.Currency,
		Notional:     notional,
		NotionalBase: notional.Mul(l.quote.FXRate),
		Cost:         currency.RoundUp(notional.Mul(costRate), l.quote.Currency),
		Mandatory:    l.mandatory,
		Reason:       l.reason,
	}
}
