package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cadence/internal/server"
	"github.com/desertthunder/cadence/internal/shared"
	"github.com/desertthunder/cadence/internal/ui"
)

// TUI launches the interactive now-playing screen.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	if err := r.wire(ctx); err != nil {
		return err
	}

	if addr := cmd.String("metrics-addr"); addr != "" {
		stop, err := r.serveMetrics(addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	model := ui.NewModel(ctx, r.engine, r.guidance)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// serveMetrics exposes the runner's registry on addr until the returned func is called.
func (r *Runner) serveMetrics(addr string) (func(), error) {
	ln, err := r.listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server stopped", "err", err)
		}
	}()
	r.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

