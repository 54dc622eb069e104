package buffer_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/macrat/outpost/internal/buffer"
	api "github.com/macrat/outpost/lib-outpost"
)

type Clock struct {
	sync.Mutex
	t time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2021, 2, 3, 4, 5, 6, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.t
}

func (c *Clock) Add(d time.Duration) {
	c.Lock()
	defer c.Unlock()
	c.t = c.t.Add(d)
}

func makePing(service string, t time.Time, ms uint64, kind api.PingKind) api.Ping {
	return api.Ping{
		Namespace: "web",
		Service:   service,
		Time:      t.Unix(),
		MS:        ms,
		Location:  "tokyo",
		Kind:      kind,
	}
}

type Opener func(t *testing.T, opts buffer.Options) buffer.Buffer

func testBuffer(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		b := open(t, buffer.Options{})

		if ps, err := b.DrainIfReady(ctx); err != nil {
			t.Fatalf("failed to drain: %s", err)
		} else if len(ps) != 0 {
			t.Errorf("empty buffer should not be ready: %v", ps)
		}

		if err := b.Clear(ctx); err != nil {
			t.Fatalf("failed to clear empty buffer: %s", err)
		}
		if err := b.Clear(ctx); err != nil {
			t.Fatalf("failed to clear twice: %s", err)
		}

		if err := b.Append(ctx, nil); err != nil {
			t.Fatalf("failed to append nothing: %s", err)
		}
		if ps, err := b.DrainIfReady(ctx); err != nil {
			t.Fatalf("failed to drain: %s", err)
		} else if len(ps) != 0 {
			t.Errorf("buffer should be empty: %v", ps)
		}
	})

	t.Run("gate", func(t *testing.T) {
		tests := []struct {
			Name  string
			Age   time.Duration
			Ready bool
		}{
			{"just-appended", 0, false},
			{"threshold-1s", buffer.DefaultMaxAge - time.Second, false},
			{"threshold", buffer.DefaultMaxAge, false},
			{"threshold+1s", buffer.DefaultMaxAge + time.Second, true},
			{"very-old", 24 * time.Hour, true},
		}

		for _, tt := range tests {
			t.Run(tt.Name, func(t *testing.T) {
				clock := NewClock()
				b := open(t, buffer.Options{Now: clock.Now})

				pings := []api.Ping{
					makePing("api", clock.Now().Add(-tt.Age), 10, api.PingInitial),
					makePing("api", clock.Now().Add(-tt.Age), 20, api.PingAlive),
					makePing("db", clock.Now(), 30, api.PingInitial),
				}
				if err := b.Append(ctx, pings); err != nil {
					t.Fatalf("failed to append: %s", err)
				}

				got, err := b.DrainIfReady(ctx)
				if err != nil {
					t.Fatalf("failed to drain: %s", err)
				}

				if !tt.Ready {
					if len(got) != 0 {
						t.Errorf("buffer should not be ready: %v", got)
					}
					return
				}

				if diff := cmp.Diff(pings, got); diff != "" {
					t.Errorf("unexpected pings:\n%s", diff)
				}
			})
		}
	})

	t.Run("round-trip", func(t *testing.T) {
		clock := NewClock()
		b := open(t, buffer.Options{Now: clock.Now})

		p1 := makePing("api", clock.Now(), 12, api.PingInitial)
		p2 := makePing("api", clock.Now(), 8, api.PingAlive)

		if err := b.Append(ctx, []api.Ping{p1, p2}); err != nil {
			t.Fatalf("failed to append: %s", err)
		}

		if ps, err := b.DrainIfReady(ctx); err != nil {
			t.Fatalf("failed to drain: %s", err)
		} else if len(ps) != 0 {
			t.Errorf("fresh buffer should not be ready: %v", ps)
		}

		clock.Add(31 * time.Minute)

		p3 := makePing("db", clock.Now(), 3, api.PingKindUnknown)
		if err := b.Append(ctx, []api.Ping{p3}); err != nil {
			t.Fatalf("failed to append: %s", err)
		}

		ps, err := b.DrainIfReady(ctx)
		if err != nil {
			t.Fatalf("failed to drain: %s", err)
		}
		if diff := cmp.Diff([]api.Ping{p1, p2, p3}, ps); diff != "" {
			t.Errorf("unexpected pings:\n%s", diff)
		}

		// drain does not remove anything.
		if ps, err := b.DrainIfReady(ctx); err != nil {
			t.Fatalf("failed to drain: %s", err)
		} else if len(ps) != 3 {
			t.Errorf("drain should not remove pings but got %d pings", len(ps))
		}

		if err := b.Clear(ctx); err != nil {
			t.Fatalf("failed to clear: %s", err)
		}

		if ps, err := b.DrainIfReady(ctx); err != nil {
			t.Fatalf("failed to drain: %s", err)
		} else if len(ps) != 0 {
			t.Errorf("cleared buffer should be empty: %v", ps)
		}

		p4 := makePing("api", clock.Now(), 5, api.PingInitial)
		if err := b.Append(ctx, []api.Ping{p4}); err != nil {
			t.Fatalf("failed to append after clear: %s", err)
		}

		clock.Add(31 * time.Minute)

		ps, err = b.DrainIfReady(ctx)
		if err != nil {
			t.Fatalf("failed to drain: %s", err)
		}
		if diff := cmp.Diff([]api.Ping{p4}, ps); diff != "" {
			t.Errorf("unexpected pings:\n%s", diff)
		}
	})

	t.Run("custom-max-age", func(t *testing.T) {
		clock := NewClock()
		b := open(t, buffer.Options{Now: clock.Now, MaxAge: time.Minute})

		p := makePing("api", clock.Now(), 1, api.PingInitial)
		if err := b.Append(ctx, []api.Ping{p}); err != nil {
			t.Fatalf("failed to append: %s", err)
		}

		clock.Add(61 * time.Second)

		ps, err := b.DrainIfReady(ctx)
		if err != nil {
			t.Fatalf("failed to drain: %s", err)
		}
		if diff := cmp.Diff([]api.Ping{p}, ps); diff != "" {
			t.Errorf("unexpected pings:\n%s", diff)
		}
	})
}

func TestFileBuffer(t *testing.T) {
	t.Parallel()

	testBuffer(t, func(t *testing.T, opts buffer.Options) buffer.Buffer {
		return buffer.NewFileBuffer(filepath.Join(t.TempDir(), "pings.log"), opts)
	})
}

func TestSQLiteBuffer(t *testing.T) {
	t.Parallel()

	testBuffer(t, func(t *testing.T, opts buffer.Options) buffer.Buffer {
		b, err := buffer.OpenSQLiteBuffer(context.Background(), filepath.Join(t.TempDir(), "pings.db"), opts)
		if err != nil {
			t.Fatalf("failed to open buffer: %s", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		Location string
		Type     string
		Error    error
	}{
		{filepath.Join(dir, "a.log"), "*buffer.FileBuffer", nil},
		{"file:" + filepath.ToSlash(filepath.Join(dir, "b.log")), "*buffer.FileBuffer", nil},
		{"sqlite:" + filepath.ToSlash(filepath.Join(dir, "c.db")), "*buffer.SQLiteBuffer", nil},
		{"sqlite3:" + filepath.ToSlash(filepath.Join(dir, "d.db")), "*buffer.SQLiteBuffer", nil},
		{"redis://localhost:6379/0", "", api.ErrUnsupportedBuffer},
		{"s3://bucket/pings", "", api.ErrUnsupportedBuffer},
		{"", "", api.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.Location, func(t *testing.T) {
			b, err := buffer.Open(ctx, tt.Location, buffer.Options{})
			if tt.Error != nil {
				if !errors.Is(err, tt.Error) {
					t.Fatalf("expected %v but got %v", tt.Error, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to open: %s", err)
			}
			defer b.Close()

			if typ := typeName(b); typ != tt.Type {
				t.Errorf("expected %s but got %s", tt.Type, typ)
			}
		})
	}
}

func typeName(b buffer.Buffer) string {
	switch b.(type) {
	case *buffer.FileBuffer:
		return "*buffer.FileBuffer"
	case *buffer.SQLiteBuffer:
		return "*buffer.SQLiteBuffer"
	case *buffer.NATSBuffer:
		return "*buffer.NATSBuffer"
	default:
		return "unknown"
	}
}
