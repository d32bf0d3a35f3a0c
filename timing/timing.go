// Package timing provides scoped profiling regions for the pipeline stages.
// A region records elapsed time on every exit path, failures included, and
// never suppresses the failure itself.
package timing

import (
	"fmt"
	"time"
)

// Profile accumulates elapsed time over repeated runs of one stage.
// It is not safe for concurrent use; each pipeline owns its own set.
type Profile struct {
	n     int64
	total time.Duration
}

// Start begins a region and returns its stop function. Use with defer so the
// region closes on error and panic paths too:
//
//	defer p.Start()()
func (p *Profile) Start() func() {
	t0 := time.Now()
	return func() {
		p.n++
		p.total += time.Since(t0)
	}
}

// Count returns how many regions have completed.
func (p *Profile) Count() int64 { return p.n }

// Total returns the accumulated elapsed time.
func (p *Profile) Total() time.Duration { return p.total }

// Mean returns the mean elapsed time per completed region.
func (p *Profile) Mean() time.Duration {
	if p.n == 0 {
		return 0
	}
	return p.total / time.Duration(p.n)
}

// Stages groups the per-stage profiles of one inference pipeline.
type Stages struct {
	Preprocess  Profile
	Inference   Profile
	Postprocess Profile
}

// Report formats mean per-stage latency, one stage per line.
func (s *Stages) Report() string {
	return fmt.Sprintf("%7.1f ms [avg] - preprocess\n%7.1f ms [avg] - inference\n%7.1f ms [avg] - postprocess",
		ms(s.Preprocess.Mean()), ms(s.Inference.Mean()), ms(s.Postprocess.Mean()))
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
