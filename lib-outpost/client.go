package outpost

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/macrat/outpost/internal/outposterr"
)

var (
	// UserAgent is the User-Agent header for requests to the backend.
	UserAgent = "outpost"
)

// Client is the client of the backend API that owns services, incidents, and pings.
type Client struct {
	base  *url.URL
	token string

	// HTTPClient is the client to send requests.
	HTTPClient *http.Client
}

// NewClient makes a new Client.
//
// The token is sent as a bearer token if it is not empty.
func NewClient(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, outposterr.New(ErrInvalidConfig, err, "invalid backend URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, outposterr.New(ErrInvalidConfig, nil, "invalid backend URL: %q is not an absolute http(s) URL", baseURL)
	}

	return &Client{
		base:  u,
		token: token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	u, err := c.base.Parse(path)
	if err != nil {
		return outposterr.New(ErrCommunicate, err, "failed to parse URL")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return outposterr.New(ErrCommunicate, err, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return outposterr.New(ErrCommunicate, err, "failed to make request")
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return outposterr.New(ErrCommunicate, err, "failed to %s %s", method, u.Path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return outposterr.New(ErrCommunicate, err, "failed to read response of %s %s", method, u.Path)
	}

	if resp.StatusCode < 200 || 299 < resp.StatusCode {
		return outposterr.New(ErrCommunicate, nil, "%s %s: unexpected status: %s", method, u.Path, resp.Status)
	}

	if result == nil {
		return nil
	}

	if err = json.Unmarshal(raw, result); err != nil {
		return outposterr.New(ErrCommunicate, err, "failed to parse response of %s %s", method, u.Path)
	}

	return nil
}

// FetchServices fetches the list of watched services.
func (c *Client) FetchServices(ctx context.Context) ([]Service, error) {
	var ss []Service
	if err := c.do(ctx, http.MethodGet, "api/services", nil, &ss); err != nil {
		return nil, err
	}
	return ss, nil
}

// FetchActiveIncidents fetches the list of incidents that not yet resolved.
func (c *Client) FetchActiveIncidents(ctx context.Context) ([]Incident, error) {
	var is []Incident
	if err := c.do(ctx, http.MethodGet, "api/incidents?filter=active", nil, &is); err != nil {
		return nil, err
	}
	return is, nil
}

// PublishIncidents sends new or updated incidents.
// The backend creates incidents without ID, and updates incidents with ID.
//
// It does nothing if incidents is empty.
func (c *Client) PublishIncidents(ctx context.Context, incidents []Incident) error {
	if len(incidents) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "api/incidents", incidents, nil)
}

// PublishPings sends latency samples.
//
// It does nothing if pings is empty.
func (c *Client) PublishPings(ctx context.Context, pings []Ping) error {
	if len(pings) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "api/pings", pings, nil)
}
