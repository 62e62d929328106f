package engine

import (
	"testing"
	"time"
)

func TestRangeStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC)
	cases := []struct {
		rng     string
		want    time.Time
		bounded bool
	}{
		{"1mo", day(2024, 5, 15), true},
		{"3mo", day(2024, 3, 15), true},
		{"6mo", day(2023, 12, 15), true},
		{"ytd", day(2024, 1, 1), true},
		{"1y", day(2023, 6, 15), true},
		{"5y", day(2019, 6, 15), true},
		{"max", time.Time{}, false},
		{"bogus", time.Time{}, false},
	}
	for _, tc := range cases {
		got, bounded := rangeStart(tc.rng, now)
		if bounded != tc.bounded {
			t.Fatalf("%s: bounded=%v", tc.rng, bounded)
		}
		if bounded && !got.Equal(tc.want) {
			t.Fatalf("%s: got %v want %v", tc.rng, got, tc.want)
		}
	}
}

func TestFilterRange(t *testing.T) {
	now := day(2024, 6, 15)
	pts := []PricePointSettled{
		{Date: day(2023, 1, 2), Close: 1},
		{Date: day(2023, 12, 29), Close: 2},
		{Date: day(2024, 3, 1), Close: 3},
	}
	got := filterRange(pts, "1y", now)
	if len(got) != 2 || got[0].Close != 2 {
		t.Fatalf("1y: %+v", got)
	}
	if got := filterRange(pts, "max", now); len(got) != 3 {
		t.Fatalf("max: %+v", got)
	}
	if got := filterRange(pts, "1mo", now); len(got) != 0 {
		t.Fatalf("1mo: %+v", got)
	}
}

func TestNormalizeInterval(t *testing.T) {
	for in, want := range map[string]string{"1d": "1d", "1wk": "1wk", "1mo": "1mo", "": "1d", "7h": "1d"} {
		if got := normalizeInterval(in); got != want {
			t.Fatalf("%q: got %q", in, got)
		}
	}
}
