package testutil

import (
	"context"
	"sync"

	"github.com/macrat/outpost/internal/probe"
)

// SampleResult is a pair of return values of probe.Sampler.
type SampleResult struct {
	Outcome probe.Outcome
	Err     error
}

// Sample makes a SampleResult that observed the status codes.
// Zero means no response.
func Sample(initial, alive int) SampleResult {
	return SampleResult{
		Outcome: probe.Outcome{
			Initial: probe.Observation{Code: initial},
			Alive:   probe.Observation{Code: alive},
		},
	}
}

// FakeSampler is a probe.Sampler that returns prepared results in order.
// The last result is repeated after all results are consumed.
type FakeSampler struct {
	sync.Mutex

	Results []SampleResult
	Calls   int
}

func (s *FakeSampler) Sample(ctx context.Context, t probe.Target) (probe.Outcome, error) {
	s.Lock()
	defer s.Unlock()

	i := s.Calls
	if i >= len(s.Results) {
		i = len(s.Results) - 1
	}
	s.Calls++

	r := s.Results[i]
	return r.Outcome, r.Err
}

// FakeProber is a prober that returns a prepared result for each target URL.
type FakeProber struct {
	sync.Mutex

	Results map[string]SampleResult
	Probed  []string
}

func (p *FakeProber) Probe(ctx context.Context, t probe.Target) (probe.Outcome, error) {
	p.Lock()
	defer p.Unlock()

	p.Probed = append(p.Probed, t.URL)

	r, ok := p.Results[t.URL]
	if !ok {
		return probe.Outcome{Attempt: 1}, probe.Outcome{}.Check()
	}
	r.Outcome.Attempt = 1
	return r.Outcome, r.Err
}
