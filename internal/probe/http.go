package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	api "github.com/macrat/outpost/lib-outpost"
)

var (
	HTTPUserAgent = "outpost health check"
)

// Target is an endpoint to probe.
type Target struct {
	Method string
	URL    string

	// Timeout is the deadline of each request.
	// Zero means using the default timeout of the sampler.
	Timeout time.Duration
}

// TargetOf makes a Target from a Service.
func TargetOf(s api.Service) Target {
	return Target{
		Method:  s.Method,
		URL:     s.URL,
		Timeout: time.Duration(s.Timeout) * time.Second,
	}
}

// Sampler takes a double-sample of a Target.
type Sampler interface {
	Sample(ctx context.Context, t Target) (Outcome, error)
}

// HTTPSampler is a Sampler that sends HTTP requests.
//
// It never follows redirects, so redirect responses are observed with their own status code.
type HTTPSampler struct {
	// Delay is the sleep duration after each request.
	Delay time.Duration

	// DefaultTimeout is used if the Target has no timeout.
	DefaultTimeout time.Duration

	// Transport is the transport for requests.
	// A transport without keep-alive is used if it is nil.
	Transport http.RoundTripper
}

func (s HTTPSampler) client(t Target) *http.Client {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = s.DefaultTimeout
	}

	transport := s.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: true,
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func observe(client *http.Client, req *http.Request) Observation {
	st := time.Now()
	resp, err := client.Do(req)
	d := time.Since(st)

	if err != nil {
		return Observation{Latency: d}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return Observation{
		Code:    resp.StatusCode,
		Latency: d,
	}
}

// Sample sends two requests to the target, sleeping Delay after each request.
//
// A request that got no response at all is reported as an Observation without status code, not as an error.
// The error is only for a target that can not make a request, or cancelled context.
func (s HTTPSampler) Sample(ctx context.Context, t Target) (Outcome, error) {
	method := strings.ToUpper(t.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, t.URL, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to make request: %w", err)
	}
	req.Header.Set("User-Agent", HTTPUserAgent)

	client := s.client(t)

	var o Outcome

	o.Initial = observe(client, req)
	if err := sleep(ctx, s.Delay); err != nil {
		return o, err
	}

	o.Alive = observe(client, req.Clone(ctx))
	if err := sleep(ctx, s.Delay); err != nil {
		return o, err
	}

	return o, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
