package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	api "github.com/macrat/outpost/lib-outpost"
)

// DummyBackend is a fake of the backend API that records published data.
type DummyBackend struct {
	*httptest.Server

	sync.Mutex

	Services        []api.Service
	ActiveIncidents []api.Incident

	Incidents [][]api.Incident
	Pings     [][]api.Ping

	// Authorizations is the list of Authorization headers that received.
	Authorizations []string

	// Failures makes the backend respond the status code to the request that matches the key like "POST /api/pings".
	Failures map[string]int
}

// StartDummyBackend starts a DummyBackend that stopped automatically when the test finished.
func StartDummyBackend(t testing.TB) *DummyBackend {
	t.Helper()

	b := &DummyBackend{
		Failures: make(map[string]int),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)

	return b
}

// Fail makes the backend fail the requests that matches the pattern like "GET /api/services".
func (b *DummyBackend) Fail(pattern string, status int) {
	b.Lock()
	defer b.Unlock()
	b.Failures[pattern] = status
}

func (b *DummyBackend) serve(w http.ResponseWriter, r *http.Request) {
	b.Lock()
	defer b.Unlock()

	b.Authorizations = append(b.Authorizations, r.Header.Get("Authorization"))

	if status, ok := b.Failures[r.Method+" "+r.URL.Path]; ok {
		w.WriteHeader(status)
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /api/services":
		writeJSON(w, b.Services)
	case "GET /api/incidents":
		if r.URL.Query().Get("filter") != "active" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, b.ActiveIncidents)
	case "POST /api/incidents":
		var is []api.Incident
		if !readJSON(w, r, &is) {
			return
		}
		b.Incidents = append(b.Incidents, is)
		w.WriteHeader(http.StatusCreated)
	case "POST /api/pings":
		var ps []api.Ping
		if !readJSON(w, r, &ps) {
			return
		}
		b.Pings = append(b.Pings, ps)
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// PublishedIncidents returns the batches of incidents that received.
func (b *DummyBackend) PublishedIncidents() [][]api.Incident {
	b.Lock()
	defer b.Unlock()
	return append([][]api.Incident(nil), b.Incidents...)
}

// PublishedPings returns the batches of pings that received.
func (b *DummyBackend) PublishedPings() [][]api.Ping {
	b.Lock()
	defer b.Unlock()
	return append([][]api.Ping(nil), b.Pings...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		err = json.Unmarshal(raw, v)
	}
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}
