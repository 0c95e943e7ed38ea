package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/metrics"
	"github.com/wonny/aegis-rebalance/internal/options"
	"github.com/wonny/aegis-rebalance/internal/s1_valuation"
	"github.com/wonny/aegis-rebalance/internal/s2_universe"
	"github.com/wonny/aegis-rebalance/internal/s3_targets"
	"github.com/wonny/aegis-rebalance/internal/s4_tax"
	"github.com/wonny/aegis-rebalance/internal/s5_intents"
	"github.com/wonny/aegis-rebalance/internal/s6_simulation"
	"github.com/wonny/aegis-rebalance/internal/s7_gate"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

var (
	// ErrEmptyRequest is returned when a request document has no content
	ErrEmptyRequest = errors.New("empty request")

	// ErrMissingBaseCurrency rejects a portfolio without a base currency
	ErrMissingBaseCurrency = errors.New("portfolio base_currency is required")
)

// Engine runs the rebalance pipeline
// ⭐ SSOT: 파이프라인 조율은 여기서만
// S1 → S2 → S3 → (S4) → S5 → S6 → S7
type Engine struct {
	valuation  *s1_valuation.Engine
	universe   *s2_universe.Filter
	targets    *s3_targets.TargetSolver
	tax        *s4_tax.Selector
	intents    *s5_intents.Translator
	simulation *s6_simulation.Simulator

	metrics *metrics.Recorder
	logger  *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger (default: no-op)
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records every run on r
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// New creates an engine. Stages hold no state between runs.
func New(opts ...Option) *Engine {
	e := &Engine{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	e.valuation = s1_valuation.New(e.logger)
	e.universe = s2_universe.New(e.logger)
	e.targets = s3_targets.New(e.logger)
	e.tax = s4_tax.New(e.logger)
	e.intents = s5_intents.New(e.logger)
	e.simulation = s6_simulation.New(e.logger)
	return e
}

// Run executes the pipeline.
// Every well-formed request yields an Outcome. Malformed input returns (nil, err)
// before any stage runs. An internal invariant failure returns a BLOCKED Outcome
// together with a *contracts.InvariantError.
func (e *Engine) Run(req Request) (*contracts.Outcome, error) {
	if req.Portfolio.BaseCurrency == "" {
		return nil, ErrMissingBaseCurrency
	}
	if err := options.Validate(&req.Options); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	runID, err := RunID(req)
	if err != nil {
		return nil, err
	}

	opts := &req.Options
	trace := contracts.Trace{}
	out := &contracts.Outcome{RunID: runID, Intents: []contracts.Intent{}}
	log := e.logger.WithRun(runID)
	start := time.Now()

	// S1: Valuation
	var val *s1_valuation.Result
	var diags []contracts.Diagnostic
	e.timed(contracts.StageValuation, func() {
		val, diags, err = e.valuation.Value(s1_valuation.Input{
			Portfolio:     req.Portfolio,
			Market:        req.Market,
			Model:         req.Model,
			TradeRequests: req.TradeRequests,
		})
	})
	trace = trace.Append(diags...)
	if err != nil {
		return e.fail(out, trace, err, log)
	}
	out.Before = val.Snapshot

	// S2: Universe
	var universe *contracts.Universe
	e.timed(contracts.StageUniverse, func() {
		universe, diags = e.universe.Apply(s2_universe.Input{
			Valued: val.Snapshot,
			Quotes: val.Quotes,
			Model:  req.Model,
			Shelf:  req.Shelf,
		})
	})
	trace = trace.Append(diags...)

	// S3: Targets
	var target *contracts.TargetWeights
	e.timed(contracts.StageTargets, func() {
		target, diags, err = e.targets.Solve(s3_targets.Input{
			Valued:   val.Snapshot,
			Universe: universe,
			Model:    req.Model,
			Options:  opts,
		})
	})
	trace = trace.Append(diags...)
	if err != nil {
		return e.fail(out, trace, err, log)
	}
	out.Target = target

	// S4: Tax (conditional)
	var plan *contracts.TaxPlan
	switch opts.TaxAware {
	case true:
		e.timed(contracts.StageTax, func() {
			plan, diags, err = e.tax.Select(s4_tax.Input{
				Portfolio: req.Portfolio,
				Valued:    val.Snapshot,
				Quotes:    val.Quotes,
				Target:    target,
				Universe:  universe,
				Options:   opts,

				TradeRequests: req.TradeRequests,
			})
		})
		trace = trace.Append(diags...)
		if err != nil {
			return e.fail(out, trace, err, log)
		}
		out.TaxPlan = plan
	case false:
		// 세금 비활성: 매도 수량 제한 없음
	}

	// S5: Intents
	var intents []contracts.Intent
	e.timed(contracts.StageIntents, func() {
		intents, diags = e.intents.Translate(s5_intents.Input{
			Valued:        val.Snapshot,
			Quotes:        val.Quotes,
			FX:            val.FX,
			Target:        target,
			Universe:      universe,
			Shelf:         req.Shelf,
			TaxPlan:       plan,
			TradeRequests: req.TradeRequests,
			CashFlows:     req.CashFlows,
			Options:       opts,
		})
	})
	trace = trace.Append(diags...)

	// S6: Simulation
	var sim *s6_simulation.Result
	e.timed(contracts.StageSimulation, func() {
		sim, diags, err = e.simulation.Simulate(s6_simulation.Input{
			Before:  val.Snapshot,
			Quotes:  val.Quotes,
			FX:      val.FX,
			Intents: intents,
			Shelf:   req.Shelf,
			Target:  target,
			Options: opts,
		})
	})
	trace = trace.Append(diags...)
	if sim != nil {
		out.Intents = sim.Intents
		out.After = sim.After
		out.Settlement = sim.Ladder
	}
	if err != nil {
		return e.fail(out, trace, err, log)
	}

	// S7: Gate
	e.finish(out, trace)

	log.WithFields(map[string]interface{}{
		"status":      string(out.Status),
		"intents":     len(out.Intents),
		"diagnostics": len(out.Diagnostics),
		"reasons":     out.Gate.ReasonCodes,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("rebalance run complete")

	e.metrics.RecordOutcome(out, nil)
	return out, nil
}

// fail closes a run that hit an error inside a stage.
// Invariant failures keep the BLOCKED outcome; anything else is fatal.
func (e *Engine) fail(out *contracts.Outcome, trace contracts.Trace, err error, log *logger.Logger) (*contracts.Outcome, error) {
	inv, ok := contracts.AsInvariant(err)
	if !ok {
		log.WithError(err).Error("rebalance run failed")
		return nil, err
	}

	if !hasInvariant(trace, inv.Code) {
		trace = trace.Append(inv.Diagnostic())
	}
	if out.After == nil {
		out.After = out.Before
	}
	e.finish(out, trace)

	log.WithError(err).WithFields(map[string]interface{}{
		logger.FieldStage: inv.Stage.ShortName(),
		"code":            inv.Code,
	}).Error("invariant failure, run blocked")

	e.metrics.RecordOutcome(out, err)
	return out, err
}

func (e *Engine) finish(out *contracts.Outcome, trace contracts.Trace) {
	e.timed(contracts.StageGate, func() {
		out.Diagnostics = trace.Diagnostics()
		out.Gate = s7_gate.Evaluate(out.Diagnostics)
		out.Status = out.Gate.Status
	})
}

func (e *Engine) timed(stage contracts.Stage, fn func()) {
	start := time.Now()
	fn()
	e.metrics.ObserveStage(stage, time.Since(start))
}

func hasInvariant(trace contracts.Trace, code string) bool {
	for _, d := range trace.Diagnostics() {
		if d.Class == contracts.ClassInvariant && d.Code == code {
			return true
		}
	}
	return false
}
