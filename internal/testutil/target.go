package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// DummyTarget is an HTTP server to be probed in tests.
type DummyTarget struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
}

// Requests returns how many times the path was requested.
func (d *DummyTarget) Requests(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[path]
}

func (d *DummyTarget) count(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests[path]++
	return d.requests[path]
}

// StartDummyTarget starts a DummyTarget that stopped automatically when the test finished.
//
// The paths:
//
//	/ok              200
//	/error           500
//	/redirect        302 to /ok
//	/only/post       200 for POST, 405 otherwise
//	/flap            200 and 503 alternately
//	/slow-page       200 after 5 seconds
func StartDummyTarget(t testing.TB) *DummyTarget {
	t.Helper()

	d := &DummyTarget{requests: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		d.count(r.URL.Path)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		d.count(r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("error"))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		d.count(r.URL.Path)
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/only/post", func(w http.ResponseWriter, r *http.Request) {
		d.count(r.URL.Path)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/flap", func(w http.ResponseWriter, r *http.Request) {
		if d.count(r.URL.Path)%2 == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/slow-page", func(w http.ResponseWriter, r *http.Request) {
		d.count(r.URL.Path)
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
		w.Write([]byte("OK"))
	})

	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Server.Close)

	return d
}
