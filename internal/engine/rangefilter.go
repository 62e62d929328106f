package engine

import "time"

// rangeStart computes the first included day for a named range using
// calendar arithmetic. ok=false means no lower bound ("max" or anything
// unrecognized).
func rangeStart(rng string, now time.Time) (time.Time, bool) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch rng {
	case "1mo":
		return day.AddDate(0, -1, 0), true
	case "3mo":
		return day.AddDate(0, -3, 0), true
	case "6mo":
		return day.AddDate(0, -6, 0), true
	case "ytd":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), true
	case "1y":
		return day.AddDate(-1, 0, 0), true
	case "5y":
		return day.AddDate(-5, 0, 0), true
	default: // "max"
		return time.Time{}, false
	}
}

// filterRange drops points before the range start. Input is assumed sorted
// by date, which every adapter guarantees.
func filterRange(points []PricePointSettled, rng string, now time.Time) []PricePointSettled {
	start, bounded := rangeStart(rng, now)
	if !bounded {
		return points
	}
	for i, p := range points {
		if !p.Date.Before(start) {
			return points[i:]
		}
	}
	return []PricePointSettled{}
}
