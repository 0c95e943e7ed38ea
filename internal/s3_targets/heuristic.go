package s3_targets

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// Heuristic clips model weights to their bounds and redistributes the excess
// proportionally to model weight, in ascending instrument id order.
// Works standalone (no numeric dependency).
type Heuristic struct{}

// Method identifies the strategy
func (Heuristic) Method() contracts.TargetMethod {
	return contracts.TargetMethodHeuristic
}

// Solve runs bounded redistribution passes
func (Heuristic) Solve(p *Problem) ([]decimal.Decimal, error) {
	n := p.Size()
	w := make([]decimal.Decimal, n)
	memberOf := make([][]int, n)
	for i := range w {
		w[i] = clamp(p.Model[i], p.Lo[i], p.Hi[i])
		memberOf[i] = p.inGroups(i)
	}

	for pass := 0; pass < p.MaxPasses(); pass++ {
		changed := false

		// 1. 그룹 상한 초과분 축소
		for _, g := range p.Groups {
			if scaleGroup(w, p.Lo, g) {
				changed = true
			}
		}

		// 2. 목표 투자 비중과의 차이 재분배
		pool := p.Invested.Sub(sum(w))
		switch {
		case pool.GreaterThan(eps):
			if distribute(p, w, memberOf, pool) {
				changed = true
			}
		case pool.LessThan(eps.Neg()):
			if withdraw(p, w, pool.Neg()) {
				changed = true
			}
		}

		// 더 이상 움직일 곳이 없으면 잔여분은 현금
		if !changed {
			return w, nil
		}
	}

	return nil, contracts.NewInvariantError(contracts.StageTargets, contracts.CodeRedistributionStuck,
		fmt.Sprintf("redistribution did not settle within %d passes", p.MaxPasses())).
		WithDetail("passes", fmt.Sprintf("%d", p.MaxPasses())).
		WithDetail("residual", p.Invested.Sub(sum(w)).String())
}

// distribute hands pool out to instruments that still have headroom.
// Adds are clipped to the instrument max and to the headroom of every group it belongs to.
func distribute(p *Problem, w []decimal.Decimal, memberOf [][]int, pool decimal.Decimal) bool {
	groupSum := make([]decimal.Decimal, len(p.Groups))
	for g, grp := range p.Groups {
		for _, i := range grp.Members {
			groupSum[g] = groupSum[g].Add(w[i])
		}
	}
	headroom := func(i int) decimal.Decimal {
		room := p.Hi[i].Sub(w[i])
		for _, g := range memberOf[i] {
			if gr := p.Groups[g].Cap.Sub(groupSum[g]); gr.LessThan(room) {
				room = gr
			}
		}
		return room
	}

	eligible := make([]int, 0)
	weight := decimal.Zero
	for i := range w {
		if p.Model[i].IsPositive() && headroom(i).GreaterThan(eps) {
			eligible = append(eligible, i)
			weight = weight.Add(p.Model[i])
		}
	}
	if len(eligible) == 0 {
		return false
	}

	moved := false
	for _, i := range eligible {
		add := pool.Mul(p.Model[i]).Div(weight)
		if room := headroom(i); add.GreaterThan(room) {
			add = room
		}
		if !add.IsPositive() {
			continue
		}
		w[i] = w[i].Add(add)
		for _, g := range memberOf[i] {
			groupSum[g] = groupSum[g].Add(add)
		}
		moved = true
	}
	return moved
}

// withdraw takes excess back from instruments above their min, proportionally to model weight
func withdraw(p *Problem, w []decimal.Decimal, excess decimal.Decimal) bool {
	eligible := make([]int, 0)
	weight := decimal.Zero
	for i := range w {
		if p.Model[i].IsPositive() && w[i].Sub(p.Lo[i]).GreaterThan(eps) {
			eligible = append(eligible, i)
			weight = weight.Add(p.Model[i])
		}
	}
	if len(eligible) == 0 {
		return false
	}

	for _, i := range eligible {
		cut := excess.Mul(p.Model[i]).Div(weight)
		if room := w[i].Sub(p.Lo[i]); cut.GreaterThan(room) {
			cut = room
		}
		w[i] = w[i].Sub(cut)
	}
	return true
}
