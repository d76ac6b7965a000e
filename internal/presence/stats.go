package presence

import "math"

// Stats summarizes the recent heating levels of a side.
type Stats struct {
	Levels     []int   `json:"levels"`
	Mean5      float64 `json:"mean_5"`
	Mean10     float64 `json:"mean_10"`
	StdDev5    float64 `json:"stddev_5"`
	StdDev10   float64 `json:"stddev_10"`
	Variance5  float64 `json:"variance_5"`
	Variance10 float64 `json:"variance_10"`
}

// ComputeStats needs ten non-zero samples; a zero means the history is not
// full yet (or the side sits exactly at its baseline) and ok is false.
func ComputeStats(past func(n int) int) (Stats, bool) {
	levels := make([]int, 10)
	for n := range levels {
		levels[n] = past(n)
		if levels[n] == 0 {
			return Stats{}, false
		}
	}

	s := Stats{Levels: levels}
	s.Mean5, s.Variance5 = meanVariance(levels[:5])
	s.Mean10, s.Variance10 = meanVariance(levels)
	s.StdDev5 = math.Sqrt(s.Variance5)
	s.StdDev10 = math.Sqrt(s.Variance10)
	return s, true
}

// meanVariance returns the mean and sample variance.
func meanVariance(xs []int) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs)-1)
}
