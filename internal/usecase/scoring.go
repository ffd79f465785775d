package usecase

import "math"

const MaxScore = 100.0

// Score rates a candidate in [0, 100]: one point per $1000 of liquidity, one
// per $500 of volume, ten per auxiliary signal.
func Score(liquidity, volume float64, signalCount int) float64 {
	base := math.Min(MaxScore, liquidity/1000+volume/500)
	return math.Min(MaxScore, base+float64(signalCount)*10)
}
