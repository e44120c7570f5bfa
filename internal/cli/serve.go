package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/presentation/tui"
	httpAdapter "github.com/aretw0/strata/pkg/adapters/http"
)

// ServeOptions configures the serve command.
type ServeOptions struct {
	GlobalOptions
	Addr   string
	DBPath string
	// Ready, when set, receives the bound address once the listener is up.
	Ready chan<- string
}

const shutdownTimeout = 5 * time.Second

// Serve exposes the inspection API until ctx is cancelled.
func Serve(ctx context.Context, opts ServeOptions, out io.Writer) error {
	cfg, err := loadConfig(opts.GlobalOptions, opts.DBPath, 0)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	logger := createLogger(opts.GlobalOptions)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	streams := httpAdapter.NewStreamManager(logger)

	ws, err := openWorkspace(ctx, cfg, factoryOptions{
		Logger:     logger,
		Registerer: reg,
		Hooks:      streams.Hooks(),
	})
	if err != nil {
		return err
	}
	defer ws.Close()

	handler := httpAdapter.NewHandler(ws.Engine.Store(), ws.Engine.Cache(),
		httpAdapter.WithRunStore(ws.Runs),
		httpAdapter.WithGatherer(reg),
		httpAdapter.WithStreams(streams),
		httpAdapter.WithLogger(logger),
		httpAdapter.WithVersion(strings.TrimSpace(strata.Version)),
	)

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	tui.PrintBanner(out)
	printSystemMessage(out, "Serving layers from %s on %s", cfg.Store.Path, ln.Addr())
	go func() {
		serverErrors <- srv.Serve(ln)
	}()
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		}
		printSystemMessage(out, "Server stopped gracefully")
		return nil
	}
}
