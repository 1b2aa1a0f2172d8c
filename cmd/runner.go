package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/desertthunder/cadence/internal/auth"
	"github.com/desertthunder/cadence/internal/backend"
	"github.com/desertthunder/cadence/internal/metrics"
	"github.com/desertthunder/cadence/internal/music"
	"github.com/desertthunder/cadence/internal/playback"
	"github.com/desertthunder/cadence/internal/repositories"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/transport"
	"github.com/desertthunder/cadence/internal/ui"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The client stack is wired on first use so that setup runs without a valid config and the TUI can
// swap the logger before any component captures it.
type Runner struct {
	config      *shared.Config
	configPath  string
	store       repositories.KVStore
	httpClient  *http.Client
	clock       shared.Clock
	registry    *prometheus.Registry
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
	listen      func(network, addr string) (net.Listener, error)

	auth     *auth.Manager
	engine   *playback.Engine
	guidance ui.GuidanceChannel
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Store       repositories.KVStore // opened from Config.Storage when nil
	HTTPClient  *http.Client
	Clock       shared.Clock
	Registry    *prometheus.Registry
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
	Listen      func(network, addr string) (net.Listener, error)
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		store:       opts.Store,
		httpClient:  opts.HTTPClient,
		clock:       opts.Clock,
		registry:    opts.Registry,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
		listen:      opts.Listen,
	}
}

// wire builds transport, backend, Music Service client, token manager and playback engine.
// Later calls are no-ops.
func (r *Runner) wire(ctx context.Context) error {
	if r.engine != nil {
		return nil
	}

	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return err
	}
	if r.store == nil {
		store, err := repositories.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		r.store = store
	}

	m := metrics.New(r.registry)
	clientID := shared.GenerateID()

	rt := func(service, baseURL, apiKey string) *transport.Transport {
		return transport.New(transport.Options{
			Service:     service,
			BaseURL:     baseURL,
			Timeout:     cfg.Transport.Timeout(),
			MaxAttempts: cfg.Transport.MaxAttempts,
			BackoffStep: cfg.Transport.Backoff(),
			ClientID:    clientID,
			APIKey:      apiKey,
			RateLimit:   rateLimit(cfg.Transport.RateLimit),
			RateBurst:   cfg.Transport.RateBurst,
			HTTPClient:  r.httpClient,
			Clock:       r.clock,
			Logger:      r.logger,
			Metrics:     m,
		})
	}

	be := backend.New(rt("backend", cfg.Backend.URL, cfg.Backend.APIKey), r.clock, r.logger)
	mc := music.New(rt("music", cfg.Music.APIURL, ""), r.logger)

	r.auth = auth.NewManager(be, r.store, auth.Options{
		RedirectURI: cfg.Music.RedirectURI,
		Clock:       r.clock,
		Logger:      r.logger,
		Metrics:     m,
	})

	r.guidance = ui.NewGuidanceChannel(16)
	r.engine = playback.New(mc, r.auth, playback.Options{
		SettleDelay:       msDuration(cfg.Playback.SettleDelayMS),
		ConfirmActivation: cfg.Playback.ConfirmActivation,
		MaxSettleWait:     msDuration(cfg.Playback.MaxSettleWaitMS),
		StrictOrdering:    cfg.Playback.StrictOrdering,
		Notifier:          r.guidance,
		Clock:             r.clock,
		Logger:            r.logger,
		Metrics:           m,
	})
	r.auth.OnSignOut(r.engine.Reset)

	r.logger.Debug("client wired", "client_id", clientID, "storage", cfg.Storage.Driver)
	return nil
}

// Close releases the session store.
func (r *Runner) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, devicesCommand, playerCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the runner's logger. Call before the first command wires the client.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// flushGuidance prints any guidance the engine produced during a command.
func (r *Runner) flushGuidance() {
	for {
		select {
		case g := <-r.guidance:
			r.writePlain("⚠ %s\n", g.Message)
		default:
			return
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// rateLimit maps the configured requests per second onto a limiter rate. Zero disables limiting.
func rateLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return 0
	}
	return rate.Limit(perSecond)
}
