package s3_targets

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/options"
)

var (
	one = decimal.NewFromInt(1)

	// eps is the weight resolution below which redistribution stops
	eps = decimal.New(1, -12)

	// boundTolerance is the slack allowed when checking a final weight against a bound
	boundTolerance = decimal.New(1, -9)
)

// Problem is the constraint set shared by every strategy.
// Index i always refers to IDs[i]; IDs are ascending.
type Problem struct {
	IDs     []string
	Model   []decimal.Decimal
	Current []decimal.Decimal
	Lo      []decimal.Decimal
	Hi      []decimal.Decimal
	Groups  []Group

	Invested decimal.Decimal // 목표 투자 비중 S (나머지는 현금)
	CashMin  decimal.Decimal
	CashMax  decimal.Decimal

	Conflicts []string // 비어 있지 않으면 infeasible
}

// Group is an aggregate cap over member indices
type Group struct {
	Key     string
	Cap     decimal.Decimal
	Members []int
}

// Size returns the number of instruments
func (p *Problem) Size() int {
	return len(p.IDs)
}

// Feasible reports whether the pre-check found no conflicting constraints
func (p *Problem) Feasible() bool {
	return len(p.Conflicts) == 0
}

// MaxPasses bounds the heuristic so it cannot oscillate forever
func (p *Problem) MaxPasses() int {
	return 4*(len(p.IDs)+len(p.Groups)) + 16
}

// inGroups lists the group indices containing instrument i
func (p *Problem) inGroups(i int) []int {
	out := make([]int, 0)
	for g, grp := range p.Groups {
		for _, m := range grp.Members {
			if m == i {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// BuildProblem turns universe, model and options into one constraint set.
// Constraint events are derived here, from model weights, so both strategies report the same events.
func BuildProblem(in Input) (*Problem, []contracts.Diagnostic) {
	opts := in.Options
	modelWeights := in.Model.Weights()
	diags := make([]contracts.Diagnostic, 0)

	p := &Problem{CashMin: decimal.Zero, CashMax: one}
	if opts.CashBand != nil {
		p.CashMin = opts.CashBand.Min
		p.CashMax = opts.CashBand.Max
	}

	sumModel := decimal.Zero
	sumLo := decimal.Zero
	for _, entry := range in.Universe.Instruments {
		id := entry.InstrumentID
		m := modelWeights[id]
		if m.IsNegative() {
			m = decimal.Zero
		}

		lo := entry.MinWeight
		hi := entry.MaxWeight
		source := "shelf"
		// 규정 미확인 종목은 [현재, 현재]로 고정, 옵션 한도 미적용
		frozen := !entry.OnShelf && lo.IsPositive()
		if !frozen {
			lo = decimal.Zero
			if opts.SinglePositionMax != nil && opts.SinglePositionMax.LessThan(hi) {
				hi = *opts.SinglePositionMax
				source = "single_position_max"
			}
			if b, ok := opts.BoundFor(id); ok {
				if b.Min != nil {
					lo = *b.Min
				}
				if b.Max != nil && b.Max.LessThan(hi) {
					hi = *b.Max
					source = "instrument_bound"
				}
			}
		}

		p.IDs = append(p.IDs, id)
		p.Model = append(p.Model, m)
		p.Current = append(p.Current, in.Valued.WeightOf(id))
		p.Lo = append(p.Lo, lo)
		p.Hi = append(p.Hi, hi)
		sumModel = sumModel.Add(m)
		sumLo = sumLo.Add(lo)

		if lo.GreaterThan(hi) {
			p.Conflicts = append(p.Conflicts, "min>max:"+id)
			continue
		}

		// 금지·미확인 종목은 S2 진단으로 충분
		if entry.Status == contracts.ShelfBanned || frozen {
			continue
		}
		if m.GreaterThan(hi) {
			diags = append(diags, contracts.Info(contracts.StageTargets, contracts.CodePositionBoundEvent,
				fmt.Sprintf("%s model weight %s above max %s", id, m, hi)).
				ForInstrument(id).
				With("bound", "max").
				With("source", source).
				With("limit", hi.String()).
				With("excess", m.Sub(hi).String()))
		} else if m.LessThan(lo) {
			diags = append(diags, contracts.Info(contracts.StageTargets, contracts.CodePositionBoundEvent,
				fmt.Sprintf("%s model weight %s below min %s", id, m, lo)).
				ForInstrument(id).
				With("bound", "min").
				With("source", "instrument_bound").
				With("limit", lo.String()).
				With("shortfall", lo.Sub(m).String()))
		}
	}

	constraints := make([]options.GroupConstraint, len(opts.GroupConstraints))
	copy(constraints, opts.GroupConstraints)
	sort.SliceStable(constraints, func(a, b int) bool { return constraints[a].Key < constraints[b].Key })

	for _, gc := range constraints {
		grp := Group{Key: gc.Key, Cap: gc.MaxWeight}
		groupLo := decimal.Zero
		implied := decimal.Zero
		members := make([]string, 0)
		for i, id := range p.IDs {
			entry, _ := in.Universe.Get(id)
			if !gc.Matches(entry.Attributes) {
				continue
			}
			grp.Members = append(grp.Members, i)
			groupLo = groupLo.Add(p.Lo[i])
			implied = implied.Add(clamp(p.Model[i], p.Lo[i], p.Hi[i]))
			members = append(members, id)
		}
		if len(grp.Members) == 0 {
			continue
		}
		p.Groups = append(p.Groups, grp)

		if groupLo.GreaterThan(grp.Cap) {
			p.Conflicts = append(p.Conflicts, "group_min_exceeds_cap:"+gc.Key)
			continue
		}
		if implied.GreaterThan(grp.Cap) {
			diags = append(diags, contracts.Info(contracts.StageTargets, contracts.CodeGroupConstraintEvent,
				fmt.Sprintf("group %s implied weight %s above cap %s", gc.Key, implied, grp.Cap)).
				With("group", gc.Key).
				With("cap", grp.Cap.String()).
				With("implied", implied.String()).
				With("excess", implied.Sub(grp.Cap).String()).
				With("instruments", strings.Join(members, ",")))
		}
	}

	if sumLo.GreaterThan(one.Sub(p.CashMin)) {
		p.Conflicts = append(p.Conflicts, "sum_min_exceeds_investable")
	}

	// S = clamp(Σm, 1-cash_max, 1-cash_min), 상한 적용 후 투자 가능 최대치로 제한
	invested := clamp(sumModel, one.Sub(p.CashMax), one.Sub(p.CashMin))
	if !invested.Equal(sumModel) {
		diags = append(diags, contracts.Info(contracts.StageTargets, contracts.CodeCashBandEvent,
			fmt.Sprintf("model invests %s, cash band moves it to %s", sumModel, invested)).
			With("model_invested", sumModel.String()).
			With("invested", invested.String()).
			With("cash_min", p.CashMin.String()).
			With("cash_max", p.CashMax.String()))
	}
	if capacity := p.maxInvestable(); invested.GreaterThan(capacity) {
		invested = capacity
	}
	if invested.LessThan(sumLo) {
		invested = sumLo
	}
	p.Invested = invested

	return p, diags
}

// maxInvestable fills every model instrument to its max, then scales groups down to their caps
func (p *Problem) maxInvestable() decimal.Decimal {
	x := make([]decimal.Decimal, len(p.IDs))
	for i := range x {
		if p.Model[i].IsPositive() && p.Hi[i].GreaterThan(p.Lo[i]) {
			x[i] = p.Hi[i]
		} else {
			x[i] = p.Lo[i]
		}
	}
	for _, g := range p.Groups {
		scaleGroup(x, p.Lo, g)
	}
	return sum(x)
}

// scaleGroup scales the above-min portion of group members down to the cap.
// Returns true when the group was over its cap.
func scaleGroup(w, lo []decimal.Decimal, g Group) bool {
	total, floor := decimal.Zero, decimal.Zero
	for _, i := range g.Members {
		total = total.Add(w[i])
		floor = floor.Add(lo[i])
	}
	if total.LessThanOrEqual(g.Cap.Add(eps)) {
		return false
	}
	above := total.Sub(floor)
	if !above.IsPositive() {
		return false
	}
	factor := g.Cap.Sub(floor).Div(above)
	if factor.IsNegative() {
		factor = decimal.Zero
	}
	for _, i := range g.Members {
		w[i] = lo[i].Add(w[i].Sub(lo[i]).Mul(factor))
	}
	return true
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func sum(w []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range w {
		total = total.Add(v)
	}
	return total
}
