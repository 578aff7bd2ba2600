package analytics

import "math"

// line is an ordinary least-squares fit y = intercept + slope*x.
type line struct {
	slope     float64
	intercept float64
	r2        float64
}

func (l line) at(x float64) float64 {
	return l.intercept + l.slope*x
}

// fitLine fits y against x with a single predictor. When every x is equal the
// slope is zero and the intercept is the mean of y. R² follows the usual
// convention for a constant target: 1 for a perfect fit, 0 otherwise.
func fitLine(xs, ys []float64) line {
	n := float64(len(xs))
	if len(xs) == 0 || len(xs) != len(ys) {
		return line{}
	}

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}

	var l line
	if sxx > 0 {
		l.slope = sxy / sxx
	}
	l.intercept = meanY - l.slope*meanX

	var ssRes, ssTot float64
	for i := range xs {
		r := ys[i] - l.at(xs[i])
		ssRes += r * r
		d := ys[i] - meanY
		ssTot += d * d
	}
	switch {
	case ssTot > 0:
		l.r2 = 1 - ssRes/ssTot
	case ssRes <= 1e-12:
		l.r2 = 1
	default:
		l.r2 = 0
	}
	return l
}

// Stats summarizes one metric over a window. Fields are nil when the metric
// has no values; Std is nil with fewer than two values.
type Stats struct {
	Mean *float64 `json:"mean"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Std  *float64 `json:"std"`
}

func describe(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	mean := meanOf(values)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	s := Stats{Mean: &mean, Min: &lo, Max: &hi}
	if std, ok := sampleStd(values, mean); ok {
		s.Std = &std
	}
	return s
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the standard deviation with one delta degree of freedom.
func sampleStd(values []float64, mean float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1)), true
}
