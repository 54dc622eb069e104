// Package buffer implements the local queue of pings that flushed to the backend in batches.
package buffer

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAge is the age of the oldest ping that makes a buffer ready to flush.
	DefaultMaxAge = 30 * time.Minute
)

// Buffer is an append-only queue of pings.
type Buffer interface {
	// Append adds pings to the end of the buffer.
	// It does nothing if pings is empty.
	Append(ctx context.Context, pings []api.Ping) error

	// DrainIfReady returns all pings in the buffer if the oldest one is older than the max age.
	// Otherwise it returns nothing.
	// It does not remove pings from the buffer. Use Clear after the pings are published.
	DrainIfReady(ctx context.Context) ([]api.Ping, error)

	// Clear removes all pings in the buffer.
	Clear(ctx context.Context) error

	// Close releases resources of the buffer.
	Close() error
}

// Options is the common options for buffers.
type Options struct {
	// MaxAge is the age to flush. DefaultMaxAge is used if it is zero.
	MaxAge time.Duration

	// Now returns the current time. time.Now is used if it is nil.
	Now func() time.Time

	Logger zerolog.Logger
}

// gate decides whether a buffer is old enough to flush.
type gate struct {
	maxAge int64
	now    func() time.Time
}

func newGate(opts Options) gate {
	g := gate{
		maxAge: int64(opts.MaxAge / time.Second),
		now:    opts.Now,
	}
	if opts.MaxAge <= 0 {
		g.maxAge = int64(DefaultMaxAge / time.Second)
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// isOldEnough reports whether a ping at the oldest unix time is older than the max age.
func (g gate) isOldEnough(oldest int64) bool {
	return g.now().Unix()-oldest > g.maxAge
}

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]+:`)

// Open opens a Buffer from location.
//
// The location is a file path, or an URL like "file:pings.log", "sqlite:pings.db", or "nats://localhost:4222/PINGS".
func Open(ctx context.Context, location string, opts Options) (Buffer, error) {
	if location == "" {
		return nil, outposterr.New(api.ErrInvalidConfig, nil, "buffer location is required")
	}

	if !schemePattern.MatchString(location) {
		return NewFileBuffer(location, opts), nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, outposterr.New(api.ErrInvalidConfig, err, "invalid buffer location")
	}

	switch u.Scheme {
	case "file":
		return NewFileBuffer(urlPath(u), opts), nil
	case "sqlite", "sqlite3":
		return OpenSQLiteBuffer(ctx, urlPath(u), opts)
	case "nats", "tls":
		return OpenNATSBuffer(ctx, u, opts)
	case "redis", "rediss":
		return nil, outposterr.New(api.ErrUnsupportedBuffer, nil, "redis buffer is not implemented yet")
	default:
		return nil, outposterr.New(api.ErrUnsupportedBuffer, nil, "unsupported buffer scheme: %s", u.Scheme)
	}
}

func urlPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}
