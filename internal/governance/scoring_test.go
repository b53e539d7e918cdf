package governance

import (
	"errors"
	"testing"
)

func TestWeightedScore(t *testing.T) {
	cases := []struct {
		name    string
		sliders Sliders
		want    int
	}{
		{name: "approval scenario", sliders: Sliders{Human: 80, Safety: 90, Ops: 75}, want: 82},
		{name: "below threshold scenario", sliders: Sliders{Human: 50, Safety: 60, Ops: 70}, want: 60},
		{name: "rounds down below half", sliders: Sliders{Human: 1, Safety: 0, Ops: 0}, want: 0},
		{name: "rounds up above half", sliders: Sliders{Human: 1, Safety: 1, Ops: 0}, want: 1},
		{name: "all zero", sliders: Sliders{}, want: 0},
		{name: "all max", sliders: Sliders{Human: 100, Safety: 100, Ops: 100}, want: 100},
		{name: "exact threshold", sliders: Sliders{Human: 70, Safety: 70, Ops: 70}, want: 70},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := WeightedScore(tc.sliders)
			if err != nil {
				t.Fatalf("WeightedScore() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("WeightedScore(%+v) = %d, want %d", tc.sliders, got, tc.want)
			}
		})
	}
}

func TestWeightedScoreStaysInRange(t *testing.T) {
	for h := 0; h <= 100; h += 7 {
		for s := 0; s <= 100; s += 11 {
			for o := 0; o <= 100; o += 13 {
				got, err := WeightedScore(Sliders{Human: h, Safety: s, Ops: o})
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got < 0 || got > 100 {
					t.Fatalf("score %d out of range for (%d,%d,%d)", got, h, s, o)
				}
				if Eligible(got) != (got >= 70) {
					t.Fatalf("eligibility mismatch for score %d", got)
				}
			}
		}
	}
}

func TestWeightedScoreRejectsOutOfRange(t *testing.T) {
	for _, sliders := range []Sliders{{Human: -1}, {Safety: 101}, {Ops: 500}} {
		_, err := WeightedScore(sliders)
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("expected ValidationError for %+v, got %v", sliders, err)
		}
	}
}
