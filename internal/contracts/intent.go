package contracts

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Intent is a discriminated union over trade kinds passed from S5/S6 to the caller
// ⭐ SSOT: 주문 의도. 실제 주문 실행은 외부 시스템 책임
type Intent struct {
	ID   string     `json:"id"`
	Kind IntentKind `json:"kind"`

	// SECURITY_TRADE
	InstrumentID string          `json:"instrument_id,omitempty"`
	Side         Side            `json:"side,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`

	// SECURITY_TRADE / CASH_FLOW: settlement currency and notional.
	// SECURITY_TRADE notional is unsigned (Side gives direction); CASH_FLOW is signed (+ deposit).
	Currency     string          `json:"currency,omitempty"`
	Notional     decimal.Decimal `json:"notional"`      // Currency 기준
	NotionalBase decimal.Decimal `json:"notional_base"` // 기준통화 기준
	Cost         decimal.Decimal `json:"cost"`          // 모델링된 거래비용 (Currency)

	// FX_SPOT
	BuyCurrency  string          `json:"buy_currency,omitempty"`
	SellCurrency string          `json:"sell_currency,omitempty"`
	BuyAmount    decimal.Decimal `json:"buy_amount"`
	SellAmount   decimal.Decimal `json:"sell_amount"`
	Rate         decimal.Decimal `json:"rate"` // SellCurrency per 1 BuyCurrency

	Mandatory bool   `json:"mandatory,omitempty"` // 강제 청산: 회전율 상한으로 축소 불가
	Reason    string `json:"reason"`
	DependsOn []int  `json:"depends_on,omitempty"` // arena index
}

// IntentKind is the discriminator of Intent
type IntentKind string

const (
	IntentSecurityTrade IntentKind = "SECURITY_TRADE"
	IntentFXSpot        IntentKind = "FX_SPOT"
	IntentCashFlow      IntentKind = "CASH_FLOW"
)

// Rank fixes the generation order between kinds
func (k IntentKind) Rank() int {
	switch k {
	case IntentCashFlow:
		return 0
	case IntentSecurityTrade:
		return 1
	case IntentFXSpot:
		return 2
	default:
		return 3
	}
}

// Intent reasons
const (
	ReasonRebalance    = "REBALANCE"
	ReasonForcedExit   = "FORCED_EXIT"
	ReasonTradeRequest = "TRADE_REQUEST"
	ReasonCashFlow     = "CASH_FLOW"
	ReasonFXFunding    = "FX_FUNDING"
)

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid reports whether s is BUY or SELL
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// IsBuy checks if the intent buys a security
func (i *Intent) IsBuy() bool {
	return i.Kind == IntentSecurityTrade && i.Side == SideBuy
}

// IsSell checks if the intent sells a security
func (i *Intent) IsSell() bool {
	return i.Kind == IntentSecurityTrade && i.Side == SideSell
}

// IntentGraph is an arena of intents whose DependsOn edges form a DAG
type IntentGraph struct {
	Intents []Intent `json:"intents"`
	Order   []int    `json:"order"` // 위상 정렬 순서 (의존 대상이 먼저)
}

// NewIntentGraph validates dependency indices and rejects cycles.
// A cycle is a construction defect, reported as an invariant failure.
func NewIntentGraph(intents []Intent) (*IntentGraph, error) {
	n := len(intents)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for i, in := range intents {
		for _, dep := range in.DependsOn {
			if dep < 0 || dep >= n {
				return nil, NewInvariantError(StageSimulation, CodeIntentCycle,
					fmt.Sprintf("intent %s depends on unknown index %d", in.ID, dep)).withCause(ErrIntentCycle)
			}
			if dep == i {
				return nil, NewInvariantError(StageSimulation, CodeIntentCycle,
					fmt.Sprintf("intent %s depends on itself", in.ID)).withCause(ErrIntentCycle)
			}
			indegree[i]++
			dependents[dep] = append(dependents[dep], i)
		}
	}

	// Kahn: 낮은 index 우선 → 결정적 순서
	order := make([]int, 0, n)
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(order) != n {
		return nil, NewInvariantError(StageSimulation, CodeIntentCycle,
			fmt.Sprintf("%d of %d intents are on a dependency cycle", n-len(order), n)).withCause(ErrIntentCycle)
	}

	return &IntentGraph{Intents: intents, Order: order}, nil
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}
