package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// stats collects per-operation outcomes. All methods are safe for
// concurrent use.
type stats struct {
	mu        sync.Mutex
	ops       map[string]*opStats
	transport int64
}

type opStats struct {
	latencies []time.Duration
	codes     map[int]int64
	cached    int64
}

func newStats() *stats {
	return &stats{ops: make(map[string]*opStats)}
}

func (s *stats) record(op string, d time.Duration, status int, cached bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.transport++
		return
	}
	o, ok := s.ops[op]
	if !ok {
		o = &opStats{codes: make(map[int]int64)}
		s.ops[op] = o
	}
	o.latencies = append(o.latencies, d)
	o.codes[status]++
	if cached {
		o.cached++
	}
}

// total counts every completed request, including transport failures.
func (s *stats) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.transport
	for _, o := range s.ops {
		n += int64(len(o.latencies))
	}
	return n
}

func (s *stats) report(w io.Writer, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		o := s.ops[name]
		lat := slices.Clone(o.latencies)
		slices.Sort(lat)

		var ok int64
		for code, n := range o.codes {
			if code >= 200 && code < 300 {
				ok += n
			}
		}
		fmt.Fprintf(w, "=== %s ===\n", name)
		fmt.Fprintf(w, "Requests:     %d (%.2f/s)\n", len(lat), float64(len(lat))/elapsed.Seconds())
		fmt.Fprintf(w, "Successful:   %d\n", ok)
		if name == opRanked {
			fmt.Fprintf(w, "Cache hits:   %d\n", o.cached)
		}
		fmt.Fprintf(w, "Latency:      min %s  p50 %s  p95 %s  p99 %s  max %s  stddev %s\n",
			lat[0], percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[len(lat)-1], stddev(lat))

		codes := make([]int, 0, len(o.codes))
		for code := range o.codes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, o.codes[code])
		}
		fmt.Fprintln(w)
	}
	if s.transport > 0 {
		fmt.Fprintf(w, "Transport errors: %d\n", s.transport)
	}
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func stddev(lat []time.Duration) time.Duration {
	if len(lat) == 0 {
		return 0
	}
	var sum float64
	for _, l := range lat {
		sum += float64(l)
	}
	mean := sum / float64(len(lat))
	var sq float64
	for _, l := range lat {
		sq += (float64(l) - mean) * (float64(l) - mean)
	}
	return time.Duration(math.Sqrt(sq / float64(len(lat))))
}
