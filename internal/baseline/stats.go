package baseline

import (
	"math"
	"sort"

	"github.com/relabs-tech/focus_streamer/internal/eeg"
)

// madScale turns a median absolute deviation into a standard deviation
// estimate for normally distributed data.
const madScale = 1.4826

// meanStd returns the mean and the sample standard deviation (Bessel's
// correction). A single sample has spread Epsilon.
func meanStd(xs []float64) (mean, sd float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, eeg.Epsilon
	}
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if len(xs) < 2 {
		return mean, eeg.Epsilon
	}

	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	sd = math.Sqrt(sumSq / (n - 1))
	return mean, math.Max(sd, eeg.Epsilon)
}

// robustMeanStd returns the median and 1.4826 × MAD, floored at Epsilon.
func robustMeanStd(xs []float64) (center, spread float64) {
	center = median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - center)
	}
	spread = madScale * median(dev)
	return center, math.Max(spread, eeg.Epsilon)
}

// median averages the two middle values for even-sized input.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
