package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/google/uuid"
	"github.com/macrat/outpost/internal/buffer"
	"github.com/macrat/outpost/internal/config"
	"github.com/macrat/outpost/internal/cycle"
	"github.com/macrat/outpost/internal/logging"
	"github.com/macrat/outpost/internal/meta"
	"github.com/macrat/outpost/internal/probe"
	"github.com/macrat/outpost/internal/report"
	api "github.com/macrat/outpost/lib-outpost"
	"github.com/spf13/pflag"
)

func init() {
	probe.HTTPUserAgent = meta.UserAgent("health check")
	api.UserAgent = meta.UserAgent("agent")
}

type OutpostCommand struct {
	OutStream io.Writer
	ErrStream io.Writer

	ConfigPath  string
	Location    string
	Buffer      string
	Backend     string
	LogLevel    string
	LogFormat   string
	EnvFile     string
	ShowVersion bool
	ShowHelp    bool

	// Getenv reads environment variables. os.Getenv is used if nil.
	Getenv func(string) string

	// Now is the clock. time.Now is used if nil.
	Now func() time.Time
}

var defaultOutpostCommand = &OutpostCommand{
	OutStream: os.Stdout,
	ErrStream: os.Stderr,
}

//go:embed help.txt
var helpText string

func (cmd *OutpostCommand) PrintUsage(detail bool) {
	tmpl := template.Must(template.New("help.txt").Parse(helpText))
	tmpl.Execute(cmd.ErrStream, map[string]interface{}{
		"Version": meta.Version,
		"MaxAge":  buffer.DefaultMaxAge,
		"Short":   !detail,
	})
}

func (cmd *OutpostCommand) PrintVersion() {
	fmt.Fprintf(cmd.OutStream, "Outpost version %s (%s)\n", meta.Version, meta.Commit)
}

func (cmd *OutpostCommand) ParseArgs(args []string) (exitCode int) {
	flags := pflag.NewFlagSet("outpost", pflag.ContinueOnError)

	flags.StringVarP(&cmd.Location, "location", "l", "", "Name of this vantage point")
	flags.StringVarP(&cmd.Buffer, "buffer", "b", "", "Location of the ping buffer")
	flags.StringVar(&cmd.Backend, "backend", "", "Base URL of the backend")
	flags.StringVar(&cmd.LogLevel, "log-level", "", "Log level")
	flags.StringVar(&cmd.LogFormat, "log-format", "", "Log format")
	flags.StringVar(&cmd.EnvFile, "env-file", ".env", "Dotenv file")
	flags.BoolVarP(&cmd.ShowVersion, "version", "v", false, "Show version")
	flags.BoolVarP(&cmd.ShowHelp, "help", "h", false, "Show help message")

	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s -h` for more information.\n", args[0])
		return 2
	}

	if cmd.ShowVersion || cmd.ShowHelp {
		return 0
	}

	switch flags.NArg() {
	case 0:
		cmd.PrintUsage(false)
		return 2
	case 1:
		cmd.ConfigPath = flags.Arg(0)
	default:
		fmt.Fprintf(cmd.ErrStream, "invalid argument: too many arguments: %q\n", flags.Args()[1:])
		fmt.Fprintf(cmd.ErrStream, "\nPlease see `%s -h` for more information.\n", args[0])
		return 2
	}

	return 0
}

// LoadConfig reads the config file, the environment variables, and the command line options in this order.
func (cmd *OutpostCommand) LoadConfig() (config.Config, error) {
	if err := config.LoadEnvFile(cmd.EnvFile); err != nil {
		return config.Config{}, err
	}

	c, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if err := c.ApplyEnv(cmd.Getenv); err != nil {
		return config.Config{}, err
	}

	overrides := []struct {
		Value string
		Ptr   *string
	}{
		{cmd.Location, &c.Location},
		{cmd.Buffer, &c.Buffer},
		{cmd.Backend, &c.Backend},
		{cmd.LogLevel, &c.Log.Level},
		{cmd.LogFormat, &c.Log.Format},
	}
	for _, o := range overrides {
		if o.Value != "" {
			*o.Ptr = o.Value
		}
	}

	return c, c.Validate()
}

func (cmd *OutpostCommand) Run(args []string) (exitCode int) {
	if code := cmd.ParseArgs(args); code != 0 {
		return code
	}

	if cmd.ShowVersion {
		cmd.PrintVersion()
		return 0
	}

	if cmd.ShowHelp {
		cmd.PrintUsage(true)
		return 0
	}

	conf, err := cmd.LoadConfig()
	if err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		return 2
	}

	logger, err := logging.New(cmd.ErrStream, logging.Options{
		Level:  conf.Log.Level,
		Format: conf.Log.Format,
	})
	if err != nil {
		fmt.Fprintln(cmd.ErrStream, err)
		return 2
	}
	runID := uuid.NewString()
	logger = logger.With().Str("run", runID).Str("location", conf.Location).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter := report.Set{report.Log{Logger: logger}}
	if conf.Report.URL != "" {
		reporter = append(reporter, report.Webhook{
			URL:      conf.Report.URL,
			Location: conf.Location,
			Run:      runID,
			Logger:   logger,
		})
	}

	client, err := api.NewClient(conf.Backend, conf.Token)
	if err != nil {
		reporter.Report(ctx, err)
		fmt.Fprintln(cmd.ErrStream, err)
		return 2
	}

	buf, err := buffer.Open(ctx, conf.Buffer, buffer.Options{
		Logger: logger.With().Str("component", "buffer").Logger(),
	})
	if err != nil {
		reporter.Report(ctx, err)
		fmt.Fprintf(cmd.ErrStream, "error: failed to open buffer: %s\n", err)
		if errors.Is(err, api.ErrIO) {
			return 1
		}
		return 2
	}
	defer buf.Close()

	coord := cycle.Coordinator{
		Backend: client,
		Prober: probe.Prober{
			Sampler: probe.HTTPSampler{
				Delay:          time.Duration(conf.Probe.SampleDelay),
				DefaultTimeout: time.Duration(conf.Probe.DefaultTimeout),
			},
			RetryDelay: time.Duration(conf.Probe.RetryDelay),
			Attempts:   conf.Probe.Attempts,
		},
		Buffer:      buf,
		Location:    conf.Location,
		Reporter:    reporter,
		Logger:      logger,
		Now:         cmd.Now,
		Parallelism: conf.Probe.Parallelism,
	}

	summary, err := coord.Run(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		if errors.Is(err, api.ErrInvalidConfig) {
			return 2
		}
		return 1
	}

	cmd.PrintSummary(conf.Location, summary)

	return 0
}

// PrintSummary writes the result of a cycle for humans.
func (cmd *OutpostCommand) PrintSummary(location string, s cycle.Summary) {
	now := time.Now()
	if cmd.Now != nil {
		now = cmd.Now()
	}

	fmt.Fprintf(
		cmd.OutStream,
		"checked %s from %s: %s healthy, %s down\n",
		english.Plural(s.Checked, "service", ""),
		location,
		humanize.Comma(int64(s.Healthy)),
		humanize.Comma(int64(s.Checked-s.Healthy)),
	)

	results := make(map[api.ServiceKey]cycle.Result, len(s.Results))
	for _, r := range s.Results {
		results[r.Service.Key()] = r
		if r.Closed {
			fmt.Fprintf(cmd.OutStream, "  RECOVERED %s\n", r.Service.Key())
		}
	}

	if len(s.Down) > 0 {
		fmt.Fprintln(cmd.OutStream, "following services seem to be down:")
	}
	for _, i := range s.Down {
		since := humanize.RelTime(time.Unix(i.Start, 0), now, "ago", "from now")
		if r, ok := results[i.Key()]; ok && !r.Healthy {
			fmt.Fprintf(cmd.OutStream, "  %s since %s (%s)\n", i.Key(), since, reason(r))
		} else {
			fmt.Fprintf(cmd.OutStream, "  %s since %s\n", i.Key(), since)
		}
	}

	if s.Flushed > 0 {
		fmt.Fprintf(cmd.OutStream, "published %s\n", english.Plural(s.Flushed, "ping", ""))
	} else if s.Buffered > 0 {
		fmt.Fprintf(cmd.OutStream, "buffered %s\n", english.Plural(s.Buffered, "ping", ""))
	}
}

func reason(r cycle.Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return fmt.Sprintf("status %d", r.Outcome.Code())
}

func main() {
	os.Exit(defaultOutpostCommand.Run(os.Args))
}
