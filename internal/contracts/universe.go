package contracts

import "github.com/shopspring/decimal"

// Universe represents the investable instruments passed from S2 to S3
// ⭐ SSOT: S2 → S3 투자 가능 종목 전달
type Universe struct {
	Instruments []UniverseEntry `json:"instruments"`  // 보유 ∪ 모델 (가격 있는 종목), id 오름차순
	ForcedExits []string        `json:"forced_exits"` // BANNED 보유 종목: 강제 청산
}

// UniverseEntry is the shelf verdict for one instrument
type UniverseEntry struct {
	InstrumentID string            `json:"instrument_id"`
	Status       ShelfStatus       `json:"status"`
	OnShelf      bool              `json:"on_shelf"`
	MaxWeight    decimal.Decimal   `json:"max_weight"` // 규제상 상한 (RESTRICTED/SELL_ONLY = 현재 비중)
	MinWeight    decimal.Decimal   `json:"min_weight"` // 규정 미확인 종목만 현재 비중, 그 외 0
	Attributes   map[string]string `json:"attributes,omitempty"`
	Held         bool              `json:"held"`
	InModel      bool              `json:"in_model"`
}

// Get finds an entry by instrument id
func (u *Universe) Get(instrumentID string) (UniverseEntry, bool) {
	if u == nil {
		return UniverseEntry{}, false
	}
	for _, e := range u.Instruments {
		if e.InstrumentID == instrumentID {
			return e, true
		}
	}
	return UniverseEntry{}, false
}

// Contains checks if an instrument can receive weight
func (u *Universe) Contains(instrumentID string) bool {
	e, ok := u.Get(instrumentID)
	return ok && e.OnShelf && e.Status != ShelfBanned
}

// IsForcedExit reports whether the instrument must be fully liquidated
func (u *Universe) IsForcedExit(instrumentID string) bool {
	if u == nil {
		return false
	}
	for _, id := range u.ForcedExits {
		if id == instrumentID {
			return true
		}
	}
	return false
}

// Count returns the number of instruments that can receive weight
func (u *Universe) Count() int {
	n := 0
	for _, e := range u.Instruments {
		if e.OnShelf && e.Status != ShelfBanned {
			n++
		}
	}
	return n
}
