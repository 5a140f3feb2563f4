package output

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

// Histogram range: 1us to 60s, 3 significant digits.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// LatencySummary describes the response times of the requests that reached
// the server.
type LatencySummary struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"-"`
	Max   time.Duration `json:"-"`
	Mean  time.Duration `json:"-"`
	P50   time.Duration `json:"-"`
	P95   time.Duration `json:"-"`
	P99   time.Duration `json:"-"`

	MinMs  float64 `json:"minMs"`
	MaxMs  float64 `json:"maxMs"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P95Ms  float64 `json:"p95Ms"`
	P99Ms  float64 `json:"p99Ms"`
}

// Latency builds a summary over every outcome that got a response. It
// returns nil when no request did.
func Latency(report *runner.RunReport) *LatencySummary {
	h := hdrhistogram.New(minLatencyUs, maxLatencyUs, 3)
	for _, o := range report.Outcomes {
		if !o.HasStatus {
			continue
		}
		us := o.Duration.Microseconds()
		if us < minLatencyUs {
			us = minLatencyUs
		}
		if us > maxLatencyUs {
			us = maxLatencyUs
		}
		_ = h.RecordValue(us)
	}
	if h.TotalCount() == 0 {
		return nil
	}

	s := &LatencySummary{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P95:   time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
	}
	s.MinMs = ms(s.Min)
	s.MaxMs = ms(s.Max)
	s.MeanMs = ms(s.Mean)
	s.P50Ms = ms(s.P50)
	s.P95Ms = ms(s.P95)
	s.P99Ms = ms(s.P99)
	return s
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
