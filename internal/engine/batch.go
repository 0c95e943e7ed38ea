package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// BatchResult is the outcome of one named scenario
type BatchResult struct {
	Name    string             `json:"name"`
	Hash    string             `json:"hash"`
	Outcome *contracts.Outcome `json:"outcome,omitempty"`
	Err     error              `json:"-"`
	Error   string             `json:"error,omitempty"`
}

// RunBatch runs independent what-if scenarios in parallel (at most parallelism at once).
// Results are returned in sorted scenario-name order; the order only affects presentation.
// A cancelled context stops scenarios that have not started yet; a started run always completes.
func (e *Engine) RunBatch(ctx context.Context, scenarios map[string]Request, parallelism int) ([]BatchResult, error) {
	names := contracts.SortedKeys(scenarios)
	results := make([]BatchResult, len(names))

	if parallelism < 1 {
		parallelism = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res := BatchResult{Name: name}
			defer func() { results[i] = res }()

			if err := gctx.Err(); err != nil {
				res.Err = err
				res.Error = err.Error()
				return nil
			}

			req := scenarios[name]
			if hash, err := CanonicalHash(req); err == nil {
				res.Hash = hash
			}
			res.Outcome, res.Err = e.Run(req)
			if res.Err != nil {
				res.Error = res.Err.Error()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
