// Package report tells somebody that a cycle of the agent failed.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/macrat/outpost/internal/meta"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/rs/zerolog"
)

// Reporter receives fatal errors of a cycle.
type Reporter interface {
	Report(ctx context.Context, err error)
}

// KindOf returns short name of the kind of err, like "communicate" or "io".
func KindOf(err error) string {
	switch {
	case errors.Is(err, api.ErrInvalidConfig):
		return "config"
	case errors.Is(err, api.ErrCommunicate):
		return "communicate"
	case errors.Is(err, api.ErrIO):
		return "io"
	case errors.Is(err, api.ErrInvalidRecord):
		return "record"
	case errors.Is(err, api.ErrUnsupportedBuffer):
		return "buffer"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// Log reports errors as error logs.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Report(_ context.Context, err error) {
	l.Logger.Error().Err(err).Str("kind", KindOf(err)).Msg("cycle failed")
}

// Payload is the body of a webhook request.
type Payload struct {
	Time     time.Time `json:"time"`
	Location string    `json:"location"`
	Run      string    `json:"run"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
}

// Webhook reports errors by posting Payload as JSON.
type Webhook struct {
	URL      string
	Location string
	Run      string

	// Client is used to send requests. http.DefaultClient with 10 seconds timeout is used if nil.
	Client *http.Client

	// Logger receives the errors of the webhook itself.
	Logger zerolog.Logger

	// Now is the clock. time.Now is used if nil.
	Now func() time.Time
}

func (w Webhook) Report(ctx context.Context, err error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}

	if sendErr := w.send(ctx, Payload{
		Time:     now(),
		Location: w.Location,
		Run:      w.Run,
		Kind:     KindOf(err),
		Message:  err.Error(),
	}); sendErr != nil {
		w.Logger.Warn().Err(sendErr).Str("url", w.URL).Msg("failed to send failure report")
	}
}

func (w Webhook) send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	// The ctx may already be cancelled when the cycle was aborted by a signal.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", meta.UserAgent("failure report"))

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

// Set is a set of reporters.
type Set []Reporter

// Report of Set calls all Report methods of children parallelly.
// This method blocks until all reporters done.
func (s Set) Report(ctx context.Context, err error) {
	wg := &sync.WaitGroup{}

	for _, r := range s {
		wg.Add(1)
		go func(r Reporter) {
			r.Report(ctx, err)
			wg.Done()
		}(r)
	}

	wg.Wait()
}
