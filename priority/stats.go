package priority

import "time"

// Stats tracks wait-time (enqueue to dequeue) observations with a simple
// exponential smoother for the average and a monotonic maximum.
type Stats struct {
	AvgWaitMs float64
	MaxWaitMs float64
	Samples   uint64
}

func (s *Stats) record(wait time.Duration) {
	ms := float64(wait.Microseconds()) / 1000.0
	if s.Samples == 0 {
		s.AvgWaitMs = ms
	} else {
		s.AvgWaitMs = (s.AvgWaitMs + ms) / 2
	}
	if ms > s.MaxWaitMs {
		s.MaxWaitMs = ms
	}
	s.Samples++
}
