package memory

import (
	"math"
	"time"
)

// RecencyBoost down-weights older items by exp(-Decay * AgeDays).
type RecencyBoost struct {
	AgeDays float64
	Decay   float64
}

// AgeDays returns the age of t at now in fractional days, never negative.
func AgeDays(now, t time.Time) float64 {
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// CosineSimilarity scores two L2-normalized vectors by their dot product.
// Empty or mismatched vectors score 0.
func CosineSimilarity(a, b []float32, boost *RecencyBoost) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if boost != nil {
		dot *= math.Exp(-boost.Decay * boost.AgeDays)
	}
	return dot
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
