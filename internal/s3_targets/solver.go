package s3_targets

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// ErrNotConverged is returned when the projection stops before reaching tolerance
var ErrNotConverged = errors.New("solver did not converge")

// Solver computes the model-weighted Euclidean projection
//
//	min Σ (w_i − m_i)² / m_i  s.t.  lo ≤ w ≤ hi,  Σ_g w ≤ cap_g,  Σ w = S
//
// with Dykstra's alternating projections. Instruments with zero model weight
// (or a degenerate box) are fixed at their min.
type Solver struct {
	MaxIterations int
	Tolerance     float64
}

// NewSolver returns a solver with default limits
func NewSolver() Solver {
	return Solver{MaxIterations: 20000, Tolerance: 1e-13}
}

// Method identifies the strategy
func (Solver) Method() contracts.TargetMethod {
	return contracts.TargetMethodSolver
}

// Solve projects the model weights onto the constraint set
func (s Solver) Solve(p *Problem) ([]decimal.Decimal, error) {
	n := p.Size()
	out := make([]decimal.Decimal, n)

	free := make([]int, 0, n)
	slot := make([]int, n) // 전체 index → free index (-1 = 고정)
	fixedSum := 0.0
	for i := 0; i < n; i++ {
		slot[i] = -1
		out[i] = p.Lo[i]
		if p.Model[i].IsPositive() && p.Hi[i].GreaterThan(p.Lo[i]) {
			slot[i] = len(free)
			free = append(free, i)
			continue
		}
		fixedSum += p.Lo[i].InexactFloat64()
	}
	if len(free) == 0 {
		return out, nil
	}

	k := len(free)
	m := make([]float64, k)
	lo := make([]float64, k)
	hi := make([]float64, k)
	for j, i := range free {
		m[j] = p.Model[i].InexactFloat64()
		lo[j] = p.Lo[i].InexactFloat64()
		hi[j] = p.Hi[i].InexactFloat64()
	}
	target := p.Invested.InexactFloat64() - fixedSum

	groups := make([]halfspace, 0, len(p.Groups))
	for _, g := range p.Groups {
		hs := halfspace{cap: g.Cap.InexactFloat64()}
		for _, i := range g.Members {
			if slot[i] >= 0 {
				hs.members = append(hs.members, slot[i])
			} else {
				hs.cap -= p.Lo[i].InexactFloat64()
			}
		}
		if len(hs.members) > 0 {
			groups = append(groups, hs)
		}
	}

	// 투영 연산자 (가중 노름: d_i = 1/m_i)
	projections := make([]func(y []float64), 0, len(groups)+2)
	projections = append(projections, func(y []float64) {
		for j := range y {
			y[j] = math.Min(math.Max(y[j], lo[j]), hi[j])
		}
	})
	for _, g := range groups {
		g := g
		projections = append(projections, func(y []float64) {
			total, weight := 0.0, 0.0
			for _, j := range g.members {
				total += y[j]
				weight += m[j]
			}
			if total <= g.cap {
				return
			}
			t := (total - g.cap) / weight
			for _, j := range g.members {
				y[j] -= t * m[j]
			}
		})
	}
	projections = append(projections, func(y []float64) {
		total, weight := 0.0, 0.0
		for j := range y {
			total += y[j]
			weight += m[j]
		}
		t := (target - total) / weight
		for j := range y {
			y[j] += t * m[j]
		}
	})

	x := make([]float64, k)
	copy(x, m)
	increments := make([][]float64, len(projections))
	for i := range increments {
		increments[i] = make([]float64, k)
	}
	y := make([]float64, k)
	prev := make([]float64, k)

	converged := false
	for iter := 0; iter < s.MaxIterations; iter++ {
		copy(prev, x)
		for c, project := range projections {
			for j := range y {
				y[j] = x[j] + increments[c][j]
			}
			copy(x, y)
			project(x)
			for j := range y {
				increments[c][j] = y[j] - x[j]
			}
		}

		delta := 0.0
		for j := range x {
			delta = math.Max(delta, math.Abs(x[j]-prev[j]))
		}
		if delta < s.Tolerance && feasible(x, lo, hi, groups, 1e-10) {
			converged = true
			break
		}
	}
	if !converged {
		return nil, ErrNotConverged
	}

	for j, i := range free {
		w := decimal.NewFromFloat(x[j]).Round(12)
		out[i] = clamp(w, p.Lo[i], p.Hi[i])
	}
	return out, nil
}

// halfspace is a group cap restricted to free variables
type halfspace struct {
	members []int
	cap     float64
}

func feasible(x, lo, hi []float64, groups []halfspace, tol float64) bool {
	for j := range x {
		if x[j] < lo[j]-tol || x[j] > hi[j]+tol {
			return false
		}
	}
	for _, g := range groups {
		total := 0.0
		for _, j := range g.members {
			total += x[j]
		}
		if total > g.cap+tol {
			return false
		}
	}
	return true
}
