package config

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/macrat/outpost/internal/meta"
)

var (
	// LocationDiscoveryURL is the service that responds the city name of the client.
	LocationDiscoveryURL = "https://ifconfig.co/city"
)

// DiscoverLocation asks the city name of this host to LocationDiscoveryURL.
// It returns an empty string if the city is unknown.
func DiscoverLocation() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, LocationDiscoveryURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", meta.UserAgent("location discovery"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{resp.Status}
	}

	return strings.TrimSpace(string(raw)), nil
}

type httpStatusError struct {
	status string
}

func (e *httpStatusError) Error() string {
	return "unexpected status: " + e.status
}
