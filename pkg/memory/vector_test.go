package memory

import (
	"math"
	"testing"
	"time"
)

func TestCosineSimilarity(t *testing.T) {
	a := Normalize([]float32{1, 2, 3})
	b := Normalize([]float32{1, 2, 3})
	if got := CosineSimilarity(a, b, nil); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}, nil); got != 0 {
		t.Errorf("orthogonal vectors: got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}, nil); got != 0 {
		t.Errorf("mismatched dimensions: got %f", got)
	}
	if got := CosineSimilarity(nil, nil, nil); got != 0 {
		t.Errorf("empty vectors: got %f", got)
	}
}

func TestCosineSimilarity_RecencyDecay(t *testing.T) {
	v := []float32{1, 0}
	fresh := CosineSimilarity(v, v, &RecencyBoost{AgeDays: 0, Decay: 0.05})
	old := CosineSimilarity(v, v, &RecencyBoost{AgeDays: 10, Decay: 0.05})
	if want := math.Exp(-0.5); math.Abs(old/fresh-want) > 1e-9 {
		t.Errorf("decay ratio = %f, want %f", old/fresh, want)
	}
}

func TestAgeDays(t *testing.T) {
	now := baseTime
	if got := AgeDays(now, now.Add(-36*time.Hour)); got != 1.5 {
		t.Errorf("AgeDays = %f, want 1.5", got)
	}
	if got := AgeDays(now, now.Add(time.Hour)); got != 0 {
		t.Errorf("future timestamps should be age 0, got %f", got)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v", v)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}
