package s3_targets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// Strategy computes constrained weights for a Problem.
// Both variants share one input/output contract.
type Strategy interface {
	Method() contracts.TargetMethod
	Solve(p *Problem) ([]decimal.Decimal, error)
}

// Input is everything the target stage reads
type Input struct {
	Valued   *contracts.ValuedSnapshot
	Universe *contracts.Universe
	Model    contracts.ModelPortfolio
	Options  *options.EngineOptions
}

// TargetSolver converts filtered model weights into final target weights
type TargetSolver struct {
	log *logger.Logger
}

// New creates the target stage
func New(log *logger.Logger) *TargetSolver {
	return &TargetSolver{log: log.WithStage(contracts.StageTargets.ShortName())}
}

// StrategyFor returns the strategy for a method (exhaustive)
func StrategyFor(method contracts.TargetMethod) (Strategy, error) {
	switch method {
	case contracts.TargetMethodHeuristic:
		return Heuristic{}, nil
	case contracts.TargetMethodSolver:
		return NewSolver(), nil
	default:
		return nil, fmt.Errorf("unknown target method %q", method)
	}
}

// alternate returns the other strategy for dual-path comparison
func alternate(method contracts.TargetMethod) contracts.TargetMethod {
	if method == contracts.TargetMethodSolver {
		return contracts.TargetMethodHeuristic
	}
	return contracts.TargetMethodSolver
}

// Solve produces TargetWeights plus constraint-event diagnostics.
// ⭐ SSOT: S3 → S4/S5 목표 비중. 실패 형태는 전략과 무관하게 동일 (target_infeasible)
func (s *TargetSolver) Solve(in Input) (*contracts.TargetWeights, []contracts.Diagnostic, error) {
	method := in.Options.TargetMethod
	primary, err := StrategyFor(method)
	if err != nil {
		return nil, nil, err
	}

	p, diags := BuildProblem(in)
	if !p.Feasible() {
		diags = append(diags, infeasible(p.Conflicts))
		contracts.SortDiagnostics(diags)
		return holdCurrent(p, method), diags, nil
	}

	weights, err := primary.Solve(p)
	if err != nil {
		if errors.Is(err, ErrNotConverged) {
			diags = append(diags, infeasible([]string{"solver_not_converged"}))
			contracts.SortDiagnostics(diags)
			return holdCurrent(p, method), diags, nil
		}
		return nil, diags, err
	}
	weights = roundWeights(p, weights)

	if in.Options.CompareTargetMethods {
		d, err := s.compare(p, method, weights, in.Options.DualPathTolerance)
		if err != nil {
			return nil, diags, err
		}
		if d != nil {
			diags = append(diags, *d)
		}
	}

	target := assemble(p, method, weights)
	diags = append(diags, postCheck(p, target)...)
	contracts.SortDiagnostics(diags)

	s.log.WithFields(map[string]interface{}{
		"method":      string(method),
		"instruments": p.Size(),
		"groups":      len(p.Groups),
		"invested":    p.Invested.String(),
		"cash_weight": target.CashWeight.String(),
	}).Debug("targets solved")

	return target, diags, nil
}

// compare runs the other strategy on the same problem.
// 관측 전용: 차이는 REVIEW 진단으로만 남고 결과는 primary 사용
func (s *TargetSolver) compare(p *Problem, method contracts.TargetMethod, weights []decimal.Decimal, tolerance float64) (*contracts.Diagnostic, error) {
	secondaryMethod := alternate(method)
	secondary, err := StrategyFor(secondaryMethod)
	if err != nil {
		return nil, err
	}

	other, err := secondary.Solve(p)
	if err != nil {
		if errors.Is(err, ErrNotConverged) {
			d := contracts.Review(contracts.StageTargets, contracts.CodeTargetMethodDivergence,
				fmt.Sprintf("%s did not converge, %s result kept", secondaryMethod, method)).
				With("primary", string(method)).
				With("secondary", string(secondaryMethod)).
				With("secondary_error", err.Error())
			return &d, nil
		}
		return nil, err
	}
	other = roundWeights(p, other)

	maxDiff := decimal.Zero
	worst := ""
	for i := range weights {
		if diff := weights[i].Sub(other[i]).Abs(); diff.GreaterThan(maxDiff) {
			maxDiff = diff
			worst = p.IDs[i]
		}
	}
	if maxDiff.LessThanOrEqual(decimal.NewFromFloat(tolerance)) {
		return nil, nil
	}

	d := contracts.Review(contracts.StageTargets, contracts.CodeTargetMethodDivergence,
		fmt.Sprintf("%s and %s differ by %s", method, secondaryMethod, maxDiff)).
		ForInstrument(worst).
		With("primary", string(method)).
		With("secondary", string(secondaryMethod)).
		With("max_abs_diff", maxDiff.String()).
		With("tolerance", decimal.NewFromFloat(tolerance).String())
	return &d, nil
}

func infeasible(conflicts []string) contracts.Diagnostic {
	return contracts.Blocking(contracts.StageTargets, contracts.CodeTargetInfeasible,
		fmt.Sprintf("constraints cannot be satisfied together (%d conflicts)", len(conflicts))).
		With("conflicts", strings.Join(conflicts, ";"))
}

// holdCurrent is the infeasible result: targets equal current weights so nothing is traded
func holdCurrent(p *Problem, method contracts.TargetMethod) *contracts.TargetWeights {
	t := assemble(p, method, p.Current)
	t.Feasible = false
	return t
}

func roundWeights(p *Problem, w []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(w))
	for i := range w {
		out[i] = clamp(w[i].Round(12), p.Lo[i], p.Hi[i])
	}
	return out
}

func assemble(p *Problem, method contracts.TargetMethod, w []decimal.Decimal) *contracts.TargetWeights {
	t := &contracts.TargetWeights{
		Method:   method,
		Feasible: true,
		Weights:  make([]contracts.TargetWeight, 0, p.Size()),
	}
	for i, id := range p.IDs {
		t.Weights = append(t.Weights, contracts.TargetWeight{
			InstrumentID:  id,
			ModelWeight:   p.Model[i],
			CurrentWeight: p.Current[i],
			Weight:        w[i],
		})
	}
	t.CashWeight = one.Sub(t.TotalWeight())
	return t
}

// postCheck verifies group caps and the cash band on the final weights
func postCheck(p *Problem, t *contracts.TargetWeights) []contracts.Diagnostic {
	diags := make([]contracts.Diagnostic, 0)

	for _, g := range p.Groups {
		total := decimal.Zero
		for _, i := range g.Members {
			total = total.Add(t.Weights[i].Weight)
		}
		if total.GreaterThan(g.Cap.Add(boundTolerance)) {
			diags = append(diags, contracts.Review(contracts.StageTargets, contracts.CodeGroupConstraintBreach,
				fmt.Sprintf("group %s target %s above cap %s", g.Key, total, g.Cap)).
				With("group", g.Key).
				With("cap", g.Cap.String()).
				With("weight", total.String()))
		}
	}

	if t.CashWeight.LessThan(p.CashMin.Sub(boundTolerance)) || t.CashWeight.GreaterThan(p.CashMax.Add(boundTolerance)) {
		diags = append(diags, contracts.Review(contracts.StageTargets, contracts.CodeCashBandBreach,
			fmt.Sprintf("target cash weight %s outside band [%s, %s]", t.CashWeight, p.CashMin, p.CashMax)).
			With("phase", "target").
			With("cash_weight", t.CashWeight.String()).
			With("cash_min", p.CashMin.String()).
			With("cash_max", p.CashMax.String()))
	}

	return diags
}
