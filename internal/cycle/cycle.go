// Package cycle runs one monitoring cycle of the agent.
package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/macrat/outpost/internal/buffer"
	"github.com/macrat/outpost/internal/incident"
	"github.com/macrat/outpost/internal/logging"
	"github.com/macrat/outpost/internal/probe"
	"github.com/macrat/outpost/internal/report"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Backend is the server that owns services, incidents, and pings.
// *outpost.Client implements this.
type Backend interface {
	FetchServices(ctx context.Context) ([]api.Service, error)
	FetchActiveIncidents(ctx context.Context) ([]api.Incident, error)
	PublishIncidents(ctx context.Context, incidents []api.Incident) error
	PublishPings(ctx context.Context, pings []api.Ping) error
}

// Prober checks a target. *probe.Prober implements this.
type Prober interface {
	Probe(ctx context.Context, t probe.Target) (probe.Outcome, error)
}

// Result is the result of a service in a cycle.
type Result struct {
	Service api.Service
	Outcome probe.Outcome

	// Err is the reason why the probe was inconclusive.
	Err error

	Healthy bool

	// Opened is true if a new incident was opened in this cycle.
	Opened bool

	// Closed is true if the open incident was resolved in this cycle.
	Closed bool
}

// Summary is the statistics of a cycle.
type Summary struct {
	Checked   int
	Healthy   int
	Opened    int
	Closed    int
	StillDown int

	// Pings is the number of pings that made in this cycle.
	Pings int

	// Flushed is the number of pings that published to the backend, including buffered ones.
	Flushed int

	// Buffered is the number of pings that appended to the buffer.
	Buffered int

	// Down is the incidents that still open after this cycle, sorted by start time.
	Down []api.Incident

	Results []Result
}

// Coordinator runs cycles.
type Coordinator struct {
	Backend  Backend
	Prober   Prober
	Buffer   buffer.Buffer
	Location string

	// Reporter receives the fatal error of a cycle. It can be nil.
	Reporter report.Reporter

	Logger zerolog.Logger

	// Now is the clock. time.Now is used if nil.
	Now func() time.Time

	// Parallelism is the number of services to probe at once. Services are probed sequentially if it is 1 or less.
	Parallelism int
}

func (c Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run runs a cycle.
//
// Unhealthy services are not an error.
// The returned error is a failure of the backend, the buffer, or the settings.
func (c Coordinator) Run(ctx context.Context) (Summary, error) {
	s, err := c.run(ctx)
	if err != nil && c.Reporter != nil {
		c.Reporter.Report(ctx, err)
	}
	return s, err
}

func (c Coordinator) run(ctx context.Context) (Summary, error) {
	logger := c.Logger.With().Str("component", "cycle").Logger()

	services, active, err := c.fetch(ctx)
	if err != nil {
		return Summary{}, err
	}
	logger.Debug().Int("services", len(services)).Int("active_incidents", len(active)).Msg("fetched state")

	results, err := c.probeAll(ctx, services)
	if err != nil {
		return Summary{}, err
	}

	var (
		summary   = Summary{Results: results}
		down      = incident.NewIndex(active.Incidents())
		incidents []api.Incident
		pings     []api.Ping
	)

	for i := range results {
		r := &results[i]
		t := incident.Evaluate(active, r.Service, r.Outcome, r.Err, c.now(), c.Location)

		r.Healthy = t.Healthy
		r.Opened = t.Open != nil
		r.Closed = t.Close != nil
		if _, ok := active.Find(r.Service.Key()); ok && !t.Healthy {
			summary.StillDown++
		}

		summary.Checked++
		if t.Healthy {
			summary.Healthy++
		}
		if r.Opened {
			summary.Opened++
		}
		if r.Closed {
			summary.Closed++
		}

		down.Apply(t)
		incidents = append(incidents, t.Incidents()...)
		pings = append(pings, t.Pings...)

		l := logging.ServiceContext(logger.With(), r.Service).Logger()
		switch {
		case r.Opened:
			l.Warn().Err(r.Err).Int("status", r.Outcome.Code()).Msg("incident opened")
		case r.Closed:
			l.Info().Msg("incident closed")
		case !t.Healthy:
			l.Debug().Err(r.Err).Msg("still down")
		default:
			l.Debug().
				Str("initial", logging.Duration(r.Outcome.Initial.Latency)).
				Str("alive", logging.Duration(r.Outcome.Alive.Latency)).
				Int("attempt", r.Outcome.Attempt).
				Msg("healthy")
		}
	}
	summary.Pings = len(pings)
	summary.Down = down.Incidents()

	if err := c.Backend.PublishIncidents(ctx, incidents); err != nil {
		return summary, err
	}

	batch, err := c.Buffer.DrainIfReady(ctx)
	if err != nil {
		return summary, err
	}

	if len(batch) == 0 {
		if err := c.Buffer.Append(ctx, pings); err != nil {
			return summary, err
		}
		summary.Buffered = len(pings)
		logger.Debug().Int("pings", len(pings)).Msg("buffered pings")
		return summary, nil
	}

	batch = append(batch, pings...)
	if err := c.Backend.PublishPings(ctx, batch); err != nil {
		return summary, err
	}
	if err := c.Buffer.Clear(ctx); err != nil {
		return summary, err
	}
	summary.Flushed = len(batch)
	logger.Info().Int("pings", len(batch)).Msg("flushed pings")

	return summary, nil
}

// fetch gets services and active incidents at the same time.
func (c Coordinator) fetch(ctx context.Context) ([]api.Service, incident.Index, error) {
	var (
		services  []api.Service
		incidents []api.Incident
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		services, err = c.Backend.FetchServices(gctx)
		return
	})
	g.Go(func() (err error) {
		incidents, err = c.Backend.FetchActiveIncidents(gctx)
		return
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return services, incident.NewIndex(incidents), nil
}

// probeAll probes all services and returns the results in the same order as services.
func (c Coordinator) probeAll(ctx context.Context, services []api.Service) ([]Result, error) {
	results := make([]Result, len(services))

	g, gctx := errgroup.WithContext(ctx)
	if c.Parallelism > 1 {
		g.SetLimit(c.Parallelism)
	} else {
		g.SetLimit(1)
	}

	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			out, err := c.Prober.Probe(gctx, probe.TargetOf(svc))
			if isFatal(err) || ctx.Err() != nil {
				return err
			}
			results[i] = Result{
				Service: svc,
				Outcome: out,
				Err:     err,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func isFatal(err error) bool {
	return errors.Is(err, api.ErrInvalidConfig)
}
