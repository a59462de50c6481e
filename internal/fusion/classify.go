package fusion

import (
	"fmt"
	"math"
)

// FatigueStage buckets a fatigue score into the five stage labels of the
// inference log.
func FatigueStage(fi float64) string {
	switch {
	case fi <= 0.25:
		return "A_normal"
	case fi <= 0.40:
		return "B_caution"
	case fi <= 0.60:
		return "C_moderate"
	case fi <= 0.80:
		return "D_fatigued"
	default:
		return "E_severe"
	}
}

// BalanceStage buckets a balance index into five stage labels.
func BalanceStage(bi float64) string {
	switch x := clip01(bi); {
	case x < 0.10:
		return "A_balanced"
	case x < 0.20:
		return "B_good"
	case x < 0.30:
		return "C_moderate"
	case x < 0.40:
		return "D_imbalanced"
	default:
		return "E_severe"
	}
}

// BalanceText renders the imbalance direction sentence. A non-negative
// direction score means the left side is more imbalanced.
func BalanceText(bi, dirScore float64) string {
	pct := int(math.Round(clip01(bi) * 100))
	if dirScore >= 0 {
		return fmt.Sprintf("left more imbalanced than right by %d%%", pct)
	}
	return fmt.Sprintf("right more imbalanced than left by %d%%", pct)
}

// TempoScore maps a raw tempo coefficient of variation to a 0-100 score
// where higher means more consistent timing.
func TempoScore(cvRaw float64) int {
	return int(math.Round(100 * (1 - NormalizeCV(cvRaw))))
}

// TempoStage buckets a tempo score into five stage labels.
func TempoStage(score int) string {
	switch {
	case score >= 80:
		return "A_very_steady"
	case score >= 60:
		return "B_steady"
	case score >= 40:
		return "C_moderate"
	case score >= 20:
		return "D_unsteady"
	default:
		return "E_very_unsteady"
	}
}
