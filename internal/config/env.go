package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/macrat/outpost/internal/outposterr"
	api "github.com/macrat/outpost/lib-outpost"
)

// LoadEnvFile loads a dotenv file into the environment variables.
// Variables that already set are not overwritten.
//
// It does nothing if the file does not exist.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return outposterr.New(api.ErrInvalidConfig, err, "failed to load %s", path)
	}
	return nil
}

// ApplyEnv overrides settings by environment variables like OUTPOST_LOCATION.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	strs := []struct {
		Key string
		Ptr *string
	}{
		{"OUTPOST_BACKEND", &c.Backend},
		{"OUTPOST_TOKEN", &c.Token},
		{"OUTPOST_LOCATION", &c.Location},
		{"OUTPOST_BUFFER", &c.Buffer},
		{"OUTPOST_LOG_LEVEL", &c.Log.Level},
		{"OUTPOST_LOG_FORMAT", &c.Log.Format},
		{"OUTPOST_REPORT_URL", &c.Report.URL},
	}
	for _, s := range strs {
		if v := getenv(s.Key); v != "" {
			*s.Ptr = v
		}
	}

	if v := getenv("OUTPOST_ATTEMPTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return outposterr.New(api.ErrInvalidConfig, err, "OUTPOST_ATTEMPTS")
		}
		c.Probe.Attempts = uint(n)
	}

	return nil
}
