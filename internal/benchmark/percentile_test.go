package benchmark

import "testing"

func TestRankInterpolation(t *testing.T) {
	tests := []struct {
		name          string
		value         float64
		p25, p50, p75 float64
		want          float64
		extrapolated  bool
	}{
		{"at p25", 5, 5, 8, 12, 25, false},
		{"at p50", 8, 5, 8, 12, 50, false},
		{"at p75", 12, 5, 8, 12, 75, false},
		{"between p50 and p75", 10, 5, 8, 12, 62.5, false},
		{"between p25 and p50", 6.5, 5, 8, 12, 37.5, false},
		{"below p25", 3, 5, 8, 12, 25 - 2*(25/3.0), true},
		{"above p75", 14, 5, 8, 12, 87.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, extrapolated := Rank(tt.value, tt.p25, tt.p50, tt.p75)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("Rank(%v) = %v, want %v", tt.value, got, tt.want)
			}
			if extrapolated != tt.extrapolated {
				t.Fatalf("Rank(%v) extrapolated = %v, want %v", tt.value, extrapolated, tt.extrapolated)
			}
		})
	}
}

func TestRankMonotonic(t *testing.T) {
	prev := -1.0
	for v := 0.0; v <= 20; v += 0.25 {
		got, _ := Rank(v, 5, 8, 12)
		if got < prev {
			t.Fatalf("rank decreased at value %v: %v < %v", v, got, prev)
		}
		prev = got
	}
}

func TestRankClamped(t *testing.T) {
	if got, _ := Rank(-50, 5, 8, 12); got != 0 {
		t.Fatalf("far-below rank = %v, want 0", got)
	}
	if got, _ := Rank(500, 5, 8, 12); got != 100 {
		t.Fatalf("far-above rank = %v, want 100", got)
	}
}

func TestRankDegenerateSpread(t *testing.T) {
	// All quartiles equal: a value at the point reads as the median.
	if got, _ := Rank(8, 8, 8, 8); got != 50 {
		t.Fatalf("rank at collapsed distribution = %v, want 50", got)
	}
}

func TestReportedRank(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{62.5, 65},
		{62.4, 60},
		{37.5, 40},
		{0, 0},
		{100, 100},
		{98, 100},
	}
	for _, tt := range tests {
		if got := ReportedRank(tt.raw); got != tt.want {
			t.Fatalf("ReportedRank(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
