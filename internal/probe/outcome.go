package probe

import (
	"errors"
	"time"

	"github.com/macrat/outpost/internal/outposterr"
)

var (
	// ErrInconsistentStatus means the two samples of a double-sample reported different status codes.
	ErrInconsistentStatus = errors.New("inconsistent status codes")

	// ErrIncompleteSample means at least one sample of a double-sample got no status code.
	ErrIncompleteSample = errors.New("incomplete sample")
)

// Observation is the result of a single request.
type Observation struct {
	// Code is the HTTP status code of the response.
	// It is 0 if no response received.
	Code int

	Latency time.Duration
}

// Present reports whether the observation got a status code.
func (o Observation) Present() bool {
	return o.Code != 0
}

// MS returns the latency in milliseconds.
func (o Observation) MS() uint64 {
	if o.Latency < 0 {
		return 0
	}
	return uint64(o.Latency.Milliseconds())
}

// Outcome is the result of a double-sample.
type Outcome struct {
	Initial Observation
	Alive   Observation

	// Attempt is the 1-origin number of the attempt that produced this outcome.
	Attempt int
}

// Complete reports whether the both samples got a status code.
func (o Outcome) Complete() bool {
	return o.Initial.Present() && o.Alive.Present()
}

// Consistent reports whether the both samples got the same status code.
func (o Outcome) Consistent() bool {
	return o.Complete() && o.Initial.Code == o.Alive.Code
}

// Code returns the status code of a consistent outcome, or 0.
func (o Outcome) Code() int {
	if !o.Consistent() {
		return 0
	}
	return o.Initial.Code
}

// Check returns an error if the outcome is not complete or not consistent.
func (o Outcome) Check() error {
	switch {
	case !o.Initial.Present():
		return outposterr.New(ErrIncompleteSample, nil, "no response in the initial sample")
	case !o.Alive.Present():
		return outposterr.New(ErrIncompleteSample, nil, "no response in the alive sample")
	case o.Initial.Code != o.Alive.Code:
		return outposterr.New(ErrInconsistentStatus, nil, "inconsistent status codes: %d and %d", o.Initial.Code, o.Alive.Code)
	}
	return nil
}
