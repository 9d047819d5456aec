package benchmark

import "math"

// rankStep quantizes reported percentile ranks. Ranks are published in
// 5-point steps, rounded half up.
const rankStep = 5.0

// Rank computes the interpolated percentile rank of value within a
// distribution's known p25/p50/p75 points. Inside the known range it
// interpolates linearly; outside it extrapolates using the nearest
// segment's slope rather than clamping, and reports extrapolated=true.
// The final rank is clamped to [0,100]. Boundary convention: a value
// exactly on a percentile point gets that rank (inclusive lower bound).
func Rank(value, p25, p50, p75 float64) (rank float64, extrapolated bool) {
	lowerWidth := p50 - p25
	upperWidth := p75 - p50

	switch {
	case value < p25:
		slope := segmentSlope(lowerWidth, upperWidth)
		rank = 25 - (p25-value)*slope
		extrapolated = true
	case value <= p50:
		rank = 25 + 25*fraction(value-p25, lowerWidth)
	case value <= p75:
		rank = 50 + 25*fraction(value-p50, upperWidth)
	default:
		slope := segmentSlope(upperWidth, lowerWidth)
		rank = 75 + (value-p75)*slope
		extrapolated = true
	}

	return clamp(rank, 0, 100), extrapolated
}

// ReportedRank applies the publication convention to a raw rank.
func ReportedRank(raw float64) float64 {
	return clamp(math.Floor(raw/rankStep+0.5)*rankStep, 0, 100)
}

// segmentSlope returns ranks-per-unit for a segment spanning 25 percentile
// points, falling back to the sibling segment when the preferred one is
// degenerate.
func segmentSlope(preferredWidth, fallbackWidth float64) float64 {
	if preferredWidth > 0 {
		return 25 / preferredWidth
	}
	if fallbackWidth > 0 {
		return 25 / fallbackWidth
	}
	return 0
}

// fraction returns the position of delta within a segment of the given
// width. A degenerate segment maps to its upper bound so that equal
// values land on the higher percentile point.
func fraction(delta, width float64) float64 {
	if width <= 0 {
		return 1
	}
	return delta / width
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
