package health

import "time"

// Rating is a qualitative connection rating derived from the health score.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
)

// Score derives a 0-100 health score from the current snapshot. Pure
// read-only projection; coarse latency buckets, no state mutation.
func (m *Monitor) Score() int {
	return score(m.Snapshot())
}

// Rating maps the health score onto a qualitative rating.
func (m *Monitor) Rating() Rating {
	s := score(m.Snapshot())
	switch {
	case s >= 90:
		return RatingExcellent
	case s >= 70:
		return RatingGood
	case s >= 40:
		return RatingFair
	default:
		return RatingPoor
	}
}

func score(s Snapshot) int {
	if s.State != StateOpen {
		return 0
	}
	switch {
	case s.Latency <= 50*time.Millisecond:
		return 100
	case s.Latency <= 150*time.Millisecond:
		return 80
	case s.Latency <= 400*time.Millisecond:
		return 60
	case s.Latency <= time.Second:
		return 40
	default:
		return 20
	}
}
