package s1_valuation

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-rebalance/internal/contracts"
)

var one = decimal.NewFromInt(1)

// FXTable converts currencies into the base currency.
// Hub-and-spoke: only identity, CCY/BASE or BASE/CCY are used (no triangulation).
type FXTable struct {
	base  string
	rates map[string]decimal.Decimal // "FROM/TO" → TO per 1 FROM
}

// NewFXTable indexes the snapshot rates. Malformed pairs and non-positive rates are ignored.
// 같은 pair가 중복되면 처음 값 사용 (결정성)
func NewFXTable(base string, rates []contracts.FXRate) FXTable {
	t := FXTable{base: base, rates: make(map[string]decimal.Decimal, len(rates))}
	for _, r := range rates {
		if _, _, ok := r.Currencies(); !ok || !r.Rate.IsPositive() {
			continue
		}
		if _, dup := t.rates[r.Pair]; dup {
			continue
		}
		t.rates[r.Pair] = r.Rate
	}
	return t
}

// Base returns the base currency
func (t FXTable) Base() string {
	return t.base
}

// ToBase returns base units per one unit of ccy
func (t FXTable) ToBase(ccy string) (decimal.Decimal, bool) {
	if ccy == t.base {
		return one, true
	}
	if r, ok := t.rates[ccy+"/"+t.base]; ok {
		return r, true
	}
	if r, ok := t.rates[t.base+"/"+ccy]; ok {
		return one.Div(r), true
	}
	return decimal.Zero, false
}

// FromBase returns ccy units per one unit of base
func (t FXTable) FromBase(ccy string) (decimal.Decimal, bool) {
	if ccy == t.base {
		return one, true
	}
	if r, ok := t.rates[t.base+"/"+ccy]; ok {
		return r, true
	}
	if r, ok := t.rates[ccy+"/"+t.base]; ok {
		return one.Div(r), true
	}
	return decimal.Zero, false
}
