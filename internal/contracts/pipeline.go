package contracts

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 진단(Diagnostic), 메트릭에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   S1 → S2 → S3 → (S4) → S5 → S6 → S7
//   Valuation  Universe  Targets  Tax  Intents  Simulation  Gate

// Stage represents a pipeline stage
type Stage string

const (
	// StageValuation S1: 기준통화 환산 평가
	// 책임: 보유종목/현금을 기준통화로 환산, 비중 계산, 가격/환율 누락 검출
	// 위치: internal/s1_valuation/
	StageValuation Stage = "S1_VALUATION"

	// StageUniverse S2: 투자 가능 종목 (Shelf)
	// 책임: BANNED/RESTRICTED/SELL_ONLY 적용, 강제 청산 대상 산출
	// 위치: internal/s2_universe/
	StageUniverse Stage = "S2_UNIVERSE"

	// StageTargets S3: 목표 비중 산출
	// 책임: 종목/그룹/현금 밴드 제약 적용 (heuristic / solver / dual-path)
	// 위치: internal/s3_targets/
	StageTargets Stage = "S3_TARGETS"

	// StageTax S4: 세금 인식 매도 로트 선택 (조건부)
	// 책임: HIFO 로트 선택, 실현손익 예산 적용
	// 위치: internal/s4_tax/
	StageTax Stage = "S4_TAX"

	// StageIntents S5: 매매 의도 생성
	// 책임: 비중 차이 → 수량, dust 억제, 회전율 상한
	// 위치: internal/s5_intents/
	StageIntents Stage = "S5_INTENTS"

	// StageSimulation S6: 사후 상태 시뮬레이션
	// 책임: FX 자금조달(hub-and-spoke), 결제 현금 사다리, 가치 보존 검증
	// 위치: internal/s6_simulation/
	StageSimulation Stage = "S6_SIMULATION"

	// StageGate S7: 최종 판정
	// 책임: 진단 → READY / PENDING_REVIEW / BLOCKED
	// 위치: internal/s7_gate/
	StageGate Stage = "S7_GATE"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S1", "S2")
func (s Stage) ShortName() string {
	switch s {
	case StageValuation:
		return "S1"
	case StageUniverse:
		return "S2"
	case StageTargets:
		return "S3"
	case StageTax:
		return "S4"
	case StageIntents:
		return "S5"
	case StageSimulation:
		return "S6"
	case StageGate:
		return "S7"
	default:
		return "UNKNOWN"
	}
}

// Description returns a human readable description of the stage
func (s Stage) Description() string {
	switch s {
	case StageValuation:
		return "valuation in base currency"
	case StageUniverse:
		return "shelf / investable universe"
	case StageTargets:
		return "constrained target weights"
	case StageTax:
		return "tax-aware lot selection"
	case StageIntents:
		return "trade intents"
	case StageSimulation:
		return "after-state simulation"
	case StageGate:
		return "gate decision"
	default:
		return "unknown"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageValuation,
		StageUniverse,
		StageTargets,
		StageTax,
		StageIntents,
		StageSimulation,
		StageGate,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}
