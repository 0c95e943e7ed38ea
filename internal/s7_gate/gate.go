package s7_gate

import (
	"sort"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

// =============================================================================
// Gate - S7 최종 판정
// =============================================================================

// Evaluate reduces diagnostics to a status with fixed precedence
// BLOCKING > REVIEW > INFO. The result depends only on the set of diagnostics,
// never on their order.
// ⭐ SSOT: 상태 판정은 여기서만
func Evaluate(diags []contracts.Diagnostic) contracts.GateDecision {
	decision := contracts.GateDecision{Status: contracts.StatusReady, ReasonCodes: []string{}}

	blocking := make(map[string]struct{})
	review := make(map[string]struct{})
	for _, d := range diags {
		switch d.Severity {
		case contracts.SeverityBlocking:
			decision.Blocking++
			blocking[d.Code] = struct{}{}
		case contracts.SeverityReview:
			decision.Review++
			review[d.Code] = struct{}{}
		}
	}

	switch {
	case decision.Blocking > 0:
		decision.Status = contracts.StatusBlocked
		decision.ReasonCodes = codes(blocking)
	case decision.Review > 0:
		decision.Status = contracts.StatusPendingReview
		decision.ReasonCodes = codes(review)
	}
	return decision
}

// HasInvariantFailure reports whether any diagnostic is an internal invariant failure
func HasInvariantFailure(diags []contracts.Diagnostic) bool {
	for _, d := range diags {
		if d.Class == contracts.ClassInvariant {
			return true
		}
	}
	return false
}

func codes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
