package probe_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/macrat/outpost/internal/probe"
	"github.com/macrat/outpost/internal/testutil"
	api "github.com/macrat/outpost/lib-outpost"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		Initial    int
		Alive      int
		Complete   bool
		Consistent bool
		Error      error
	}{
		{200, 200, true, true, nil},
		{500, 500, true, true, nil},
		{200, 503, true, false, probe.ErrInconsistentStatus},
		{0, 200, false, false, probe.ErrIncompleteSample},
		{200, 0, false, false, probe.ErrIncompleteSample},
		{0, 0, false, false, probe.ErrIncompleteSample},
	}

	for _, tt := range tests {
		o := testutil.Sample(tt.Initial, tt.Alive).Outcome

		if o.Complete() != tt.Complete {
			t.Errorf("%d/%d: expected complete=%v", tt.Initial, tt.Alive, tt.Complete)
		}
		if o.Consistent() != tt.Consistent {
			t.Errorf("%d/%d: expected consistent=%v", tt.Initial, tt.Alive, tt.Consistent)
		}

		err := o.Check()
		if tt.Error == nil && err != nil {
			t.Errorf("%d/%d: unexpected error: %s", tt.Initial, tt.Alive, err)
		} else if tt.Error != nil && !errors.Is(err, tt.Error) {
			t.Errorf("%d/%d: expected %v but got %v", tt.Initial, tt.Alive, tt.Error, err)
		}
	}
}

func TestProber_Probe(t *testing.T) {
	t.Parallel()

	bad := []testutil.SampleResult{
		testutil.Sample(200, 503),
		testutil.Sample(0, 200),
		{Err: io.ErrUnexpectedEOF},
		testutil.Sample(0, 0),
	}

	tests := []struct {
		Name     string
		Results  []testutil.SampleResult
		Attempts uint
		Calls    int
		Code     int
		Error    error
	}{
		{"first-ok", []testutil.SampleResult{testutil.Sample(200, 200)}, 3, 1, 200, nil},
		{"first-mismatch-but-consistent", []testutil.SampleResult{testutil.Sample(500, 500)}, 3, 1, 500, nil},
		{"retry-until-consistent", append(bad[:3:3], testutil.Sample(204, 204)), 4, 4, 204, nil},
		{"exhausted-inconsistent", []testutil.SampleResult{bad[1], bad[0], testutil.Sample(200, 200)}, 2, 2, 0, probe.ErrInconsistentStatus},
		{"exhausted-incomplete", []testutil.SampleResult{bad[0], bad[3], testutil.Sample(200, 200)}, 2, 2, 0, probe.ErrIncompleteSample},
		{"exhausted-transport", []testutil.SampleResult{bad[0], bad[2], testutil.Sample(200, 200)}, 2, 2, 0, io.ErrUnexpectedEOF},
		{"single-attempt", []testutil.SampleResult{bad[0], testutil.Sample(200, 200)}, 1, 1, 0, probe.ErrInconsistentStatus},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.Name, func(t *testing.T) {
			t.Parallel()

			s := &testutil.FakeSampler{Results: tt.Results}
			p := probe.Prober{Sampler: s, Attempts: tt.Attempts}

			o, err := p.Probe(context.Background(), probe.Target{URL: "http://example.com"})

			if s.Calls != tt.Calls {
				t.Errorf("expected %d calls but called %d times", tt.Calls, s.Calls)
			}
			if o.Attempt != tt.Calls {
				t.Errorf("outcome should be made by attempt %d but made by %d", tt.Calls, o.Attempt)
			}
			if o.Code() != tt.Code {
				t.Errorf("expected code %d but got %d", tt.Code, o.Code())
			}

			if tt.Error == nil {
				if err != nil {
					t.Errorf("unexpected error: %s", err)
				}
			} else if !errors.Is(err, tt.Error) {
				t.Errorf("expected %v but got %v", tt.Error, err)
			}
		})
	}
}

func TestProber_Probe_failuresThenSuccess(t *testing.T) {
	t.Parallel()

	for n := 0; n < 4; n++ {
		results := make([]testutil.SampleResult, 0, n+1)
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				results = append(results, testutil.Sample(200, 500))
			} else {
				results = append(results, testutil.Sample(0, 200))
			}
		}
		results = append(results, testutil.Sample(200, 200))

		enough := probe.Prober{Sampler: &testutil.FakeSampler{Results: results}, Attempts: uint(n + 1)}
		if o, err := enough.Probe(context.Background(), probe.Target{}); err != nil || o.Code() != 200 {
			t.Errorf("n=%d attempts=%d: expected consistent outcome but got %#v, %v", n, n+1, o, err)
		}

		if n == 0 {
			continue
		}

		short := probe.Prober{Sampler: &testutil.FakeSampler{Results: results}, Attempts: uint(n)}
		o, err := short.Probe(context.Background(), probe.Target{})
		if err == nil {
			t.Errorf("n=%d attempts=%d: expected error but got nil", n, n)
		}
		if last := results[n-1].Outcome; o.Initial.Code != last.Initial.Code || o.Alive.Code != last.Alive.Code {
			t.Errorf("n=%d attempts=%d: expected the last outcome but got %#v", n, n, o)
		}
	}
}

func TestProber_Probe_zeroAttempts(t *testing.T) {
	t.Parallel()

	s := &testutil.FakeSampler{Results: []testutil.SampleResult{testutil.Sample(200, 200)}}
	p := probe.Prober{Sampler: s}

	_, err := p.Probe(context.Background(), probe.Target{})
	if !errors.Is(err, api.ErrInvalidConfig) {
		t.Errorf("expected invalid config error but got %v", err)
	}
	if !errors.Is(err, probe.ErrInvalidAttempts) {
		t.Errorf("expected invalid attempts error but got %v", err)
	}
	if s.Calls != 0 {
		t.Errorf("sampler should not be called but called %d times", s.Calls)
	}
}

func TestProber_Probe_retryDelay(t *testing.T) {
	t.Parallel()

	s := &testutil.FakeSampler{Results: []testutil.SampleResult{testutil.Sample(200, 500)}}
	p := probe.Prober{Sampler: s, Attempts: 3, RetryDelay: 50 * time.Millisecond}

	st := time.Now()
	p.Probe(context.Background(), probe.Target{})
	d := time.Since(st)

	if d < 100*time.Millisecond {
		t.Errorf("prober should sleep between attempts but took only %s", d)
	}
	if d >= 150*time.Millisecond+time.Second {
		t.Errorf("prober took too long: %s", d)
	}
}

func TestProber_Probe_cancel(t *testing.T) {
	t.Parallel()

	s := &testutil.FakeSampler{Results: []testutil.SampleResult{testutil.Sample(200, 500)}}
	p := probe.Prober{Sampler: s, Attempts: 100, RetryDelay: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	o, err := p.Probe(ctx, probe.Target{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded but got %v", err)
	}
	if o.Initial.Code != 200 || o.Alive.Code != 500 {
		t.Errorf("expected the last outcome but got %#v", o)
	}
	if s.Calls != 1 {
		t.Errorf("expected 1 call but called %d times", s.Calls)
	}
}
