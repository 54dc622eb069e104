// Package incident decides incident transitions and pings from probe outcomes.
package incident

import (
	"sort"
	"time"

	"github.com/macrat/outpost/internal/probe"
	api "github.com/macrat/outpost/lib-outpost"
)

// Index is the set of open incidents keyed by the service.
type Index map[api.ServiceKey]api.Incident

// NewIndex makes an Index from incidents that fetched from the backend.
//
// Resolved incidents are ignored.
// If there are two or more open incidents for the same service, the earliest one is used.
func NewIndex(incidents []api.Incident) Index {
	idx := make(Index, len(incidents))
	for _, i := range incidents {
		if !i.IsOpen() {
			continue
		}
		if cur, ok := idx[i.Key()]; ok && cur.Start <= i.Start {
			continue
		}
		idx[i.Key()] = i
	}
	return idx
}

// Find returns the open incident of the service.
func (idx Index) Find(key api.ServiceKey) (api.Incident, bool) {
	i, ok := idx[key]
	return i, ok
}

// Incidents returns open incidents sorted by start time.
func (idx Index) Incidents() []api.Incident {
	result := make([]api.Incident, 0, len(idx))
	for _, i := range idx {
		result = append(result, i)
	}
	sort.Sort(byStart(result))
	return result
}

// Apply updates the Index by the Transition.
// An opened incident is added, and a closed incident is removed.
func (idx Index) Apply(t Transition) {
	switch {
	case t.Open != nil:
		idx[t.Open.Key()] = *t.Open
	case t.Close != nil:
		delete(idx, t.Close.Key())
	}
}

type byStart []api.Incident

func (xs byStart) Len() int {
	return len(xs)
}

func (xs byStart) Less(i, j int) bool {
	if xs[i].Start == xs[j].Start {
		return xs[i].Key().String() < xs[j].Key().String()
	}
	return xs[i].Start < xs[j].Start
}

func (xs byStart) Swap(i, j int) {
	xs[i], xs[j] = xs[j], xs[i]
}

// Transition is the changes that caused by a probe.
type Transition struct {
	Service api.Service

	Healthy bool

	// Open is a new incident if the service became unhealthy.
	Open *api.Incident

	// Close is the resolved incident if the service back to healthy.
	Close *api.Incident

	// Pings has INITIAL and ALIVE samples if the service is healthy.
	Pings []api.Ping
}

// Incidents returns the incident to publish, if any.
func (t Transition) Incidents() []api.Incident {
	switch {
	case t.Open != nil:
		return []api.Incident{*t.Open}
	case t.Close != nil:
		return []api.Incident{*t.Close}
	default:
		return nil
	}
}

// IsHealthy reports whether the outcome means the service is healthy.
func IsHealthy(svc api.Service, out probe.Outcome, probeErr error) bool {
	return probeErr == nil && out.Consistent() && out.Code() == svc.Status
}

// Evaluate decides the Transition of the service from the probe result.
//
// It does not modify the Index.
func Evaluate(active Index, svc api.Service, out probe.Outcome, probeErr error, at time.Time, location string) Transition {
	now := at.Unix()
	current, hasIncident := active.Find(svc.Key())

	t := Transition{
		Service: svc,
		Healthy: IsHealthy(svc, out, probeErr),
	}

	if !t.Healthy {
		if !hasIncident {
			t.Open = &api.Incident{
				Namespace: svc.Namespace,
				Service:   svc.ID,
				Start:     now,
			}
		}
		return t
	}

	if hasIncident {
		end := now
		if end < current.Start {
			end = current.Start
		}
		closed := current
		closed.End = &end
		t.Close = &closed
	}

	t.Pings = []api.Ping{
		{
			Namespace: svc.Namespace,
			Service:   svc.ID,
			Time:      now,
			MS:        out.Initial.MS(),
			Location:  location,
			Kind:      api.PingInitial,
		},
		{
			Namespace: svc.Namespace,
			Service:   svc.ID,
			Time:      now,
			MS:        out.Alive.MS(),
			Location:  location,
			Kind:      api.PingAlive,
		},
	}

	return t
}
