package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/browserlog/internal/extract"
	httpserver "github.com/fyrsmithlabs/browserlog/internal/http"
	"github.com/fyrsmithlabs/browserlog/internal/secrets"
)

var serveFlags = map[string]string{
	"addr-host":    "server.host",
	"addr-port":    "server.port",
	"browser-host": "browser.host",
	"browser-port": "browser.port",
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve extraction over HTTP",
		Long: `Start the HTTP API:

  GET  /health            liveness
  GET  /metrics           Prometheus metrics
  POST /api/v1/extract    run one extraction; the JSON body overrides configured options
  POST /api/v1/classify   classify a message
  POST /api/v1/scrub      redact credentials from text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flagOverrides(cmd, serveFlags)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), overrides)
		},
	}
	f := cmd.Flags()
	f.String("addr-host", "", "listen host")
	f.Int("addr-port", 0, "listen port")
	f.String("browser-host", "", "browser debugging host")
	f.Int("browser-port", 0, "browser debugging port")
	return cmd
}

func runServe(ctx context.Context, overrides map[string]any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, overrides)
	if err != nil {
		return err
	}
	defer a.close()

	ext, err := extract.NewFromConfig(a.cfg, a.logger, a.tel)
	if err != nil {
		return err
	}
	sc := secrets.DefaultConfig()
	sc.Gitleaks = a.cfg.Format.Gitleaks
	scrubber, err := secrets.New(sc)
	if err != nil {
		return fmt.Errorf("create scrubber: %w", err)
	}

	zl := a.logger.Underlying()
	srv, err := httpserver.NewServer(ext, extract.OptionsFromConfig(a.cfg), zl.Named("http"),
		&httpserver.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port},
		httpserver.WithScrubber(scrubber),
		httpserver.WithTracer(a.tel.Tracer("github.com/fyrsmithlabs/browserlog/internal/http")),
		httpserver.WithMetrics(httpserver.NewHTTPMetrics(a.tel.Meter("github.com/fyrsmithlabs/browserlog/internal/http"), zl)),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.logger.Info(ctx, "browserlog serving",
		zap.String("addr", a.cfg.Server.Addr()),
		zap.String("browser", fmt.Sprintf("%s:%d", a.cfg.Browser.Host, a.cfg.Browser.Port)),
		zap.String("metrics_endpoint", "/metrics"),
	)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	a.logger.Info(ctx, "server shutdown complete")
	return nil
}
