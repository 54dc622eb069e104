// Package config loads the settings of the agent.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBackend = "https://status.example.com"
)

// Duration is a time.Duration that written as a string like "500ms" in YAML.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	x, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration: %q", value.Line, value.Value)
	}
	*d = Duration(x)
	return nil
}

// Probe is the settings for probing services.
type Probe struct {
	// Attempts is the maximum number of double-samples for a service.
	Attempts uint `yaml:"attempts"`

	// SampleDelay is the sleep after each sample of a double-sample.
	SampleDelay Duration `yaml:"sample_delay"`

	// RetryDelay is the sleep between attempts.
	RetryDelay Duration `yaml:"retry_delay"`

	// DefaultTimeout is the request timeout for services that have no timeout.
	DefaultTimeout Duration `yaml:"default_timeout"`

	// Parallelism is the number of services to probe at once.
	Parallelism int `yaml:"parallelism"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Report struct {
	URL string `yaml:"url,omitempty"`
}

// Config is the settings of the agent.
type Config struct {
	Backend  string `yaml:"backend"`
	Token    string `yaml:"token"`
	Location string `yaml:"location"`
	Buffer   string `yaml:"buffer"`

	// Cache is the old name of Buffer.
	Cache string `yaml:"cache,omitempty"`

	Probe  Probe  `yaml:"probe"`
	Log    Log    `yaml:"log"`
	Report Report `yaml:"report"`
}

// Default returns the default settings without location.
func Default() Config {
	return Config{
		Backend: DefaultBackend,
		Probe: Probe{
			Attempts:       3,
			SampleDelay:    Duration(500 * time.Millisecond),
			RetryDelay:     Duration(time.Second),
			DefaultTimeout: Duration(10 * time.Second),
			Parallelism:    1,
		},
		Log: Log{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Parse parses YAML as Config.
// Omitted values are filled with the default values.
func Parse(raw []byte) (Config, error) {
	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, outposterr.New(api.ErrInvalidConfig, err, "failed to parse config")
	}

	if c.Buffer == "" {
		c.Buffer = c.Cache
	}
	c.Cache = ""

	return c, nil
}

// Load reads config file.
//
// If the file does not exist, it writes the default settings to the path and returns it.
// The location of the default settings is discovered by the public IP address.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c := Default()
		c.Location, _ = DiscoverLocation()
		if err := c.Save(path); err != nil {
			return Config{}, err
		}
		return c, nil
	} else if err != nil {
		return Config{}, outposterr.New(api.ErrInvalidConfig, err, "failed to read config")
	}

	return Parse(raw)
}

// Save writes the settings as YAML.
func (c Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return outposterr.New(api.ErrInvalidConfig, err, "failed to encode config")
	}

	if err := os.WriteFile(path, raw, 0600); err != nil {
		return outposterr.New(api.ErrInvalidConfig, err, "failed to write config")
	}

	return nil
}

// Validate checks all settings and returns all problems as an error.
func (c Config) Validate() error {
	errs := outposterr.NewListBuilder(api.ErrInvalidConfig)

	if !isHTTPURL(c.Backend) {
		errs.Addf("backend", "%q is not an absolute http(s) URL", c.Backend)
	}
	if c.Location == "" {
		errs.Addf("location", "you need to configure a location")
	}
	if c.Buffer == "" {
		errs.Addf("buffer", "you need to configure the buffer")
	}

	probe := errs.In("probe")
	if c.Probe.Attempts == 0 {
		probe.Addf("attempts", "must be 1 or more")
	}
	if c.Probe.SampleDelay < 0 {
		probe.Addf("sample_delay", "must not be negative")
	}
	if c.Probe.RetryDelay < 0 {
		probe.Addf("retry_delay", "must not be negative")
	}
	if c.Probe.DefaultTimeout <= 0 {
		probe.Addf("default_timeout", "must be positive")
	}
	if c.Probe.Parallelism < 1 {
		probe.Addf("parallelism", "must be 1 or more")
	}

	log := errs.In("log")
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		log.Addf("level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "json", "console":
	default:
		log.Addf("format", "must be auto, json, or console but got %q", c.Log.Format)
	}

	if c.Report.URL != "" && !isHTTPURL(c.Report.URL) {
		errs.In("report").Addf("url", "%q is not an absolute http(s) URL", c.Report.URL)
	}

	return errs.Build()
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
