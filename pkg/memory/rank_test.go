package memory

import (
	"reflect"
	"testing"
)

func TestRRFMerge(t *testing.T) {
	tests := []struct {
		name  string
		a, b  []string
		limit int
		want  []string
	}{
		{"shared id wins", []string{"a", "b", "c"}, []string{"b", "d"}, 3, []string{"b", "a", "d"}},
		{"equal scores fall back to id", []string{"y"}, []string{"x"}, 2, []string{"x", "y"}},
		{"duplicates count once", []string{"a", "a", "b"}, nil, 5, []string{"a", "b"}},
		{"limit caps output", []string{"a", "b", "c"}, nil, 2, []string{"a", "b"}},
		{"both empty", nil, nil, 3, []string{}},
		{"one side empty", nil, []string{"q", "p"}, 10, []string{"q", "p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RRFMerge(tt.a, tt.b, tt.limit, DefaultRRFK)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("RRFMerge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRRFMerge_NonPositiveLimit(t *testing.T) {
	if got := RRFMerge([]string{"a"}, []string{"b"}, 0, DefaultRRFK); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestRRFMerge_DefaultK(t *testing.T) {
	a := RRFMerge([]string{"a", "b", "c"}, []string{"b", "d"}, 3, 0)
	b := RRFMerge([]string{"a", "b", "c"}, []string{"b", "d"}, 3, DefaultRRFK)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("k=0 should use the default: %v vs %v", a, b)
	}
}

func TestRRFMerge_Deterministic(t *testing.T) {
	a := []string{"m3", "m1", "m2", "m9"}
	b := []string{"m2", "m7", "m3"}
	first := RRFMerge(a, b, 10, DefaultRRFK)
	for i := 0; i < 20; i++ {
		if got := RRFMerge(a, b, 10, DefaultRRFK); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %v != %v", i, got, first)
		}
	}
}
