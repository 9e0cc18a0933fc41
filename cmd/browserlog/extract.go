package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/collector"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/format"
	"github.com/fyrsmithlabs/browserlog/internal/publish"
)

// extractFlags maps extract flags to configuration keys.
var extractFlags = map[string]string{
	"host":            "browser.host",
	"port":            "browser.port",
	"window":          "collection.window",
	"max-entries":     "collection.max_entries",
	"network":         "collection.include_network",
	"console":         "collection.include_console",
	"log":             "collection.include_log",
	"level":           "filters.log_levels",
	"source":          "filters.sources",
	"domain":          "filters.domains",
	"keyword":         "filters.keywords",
	"exclude":         "filters.exclude_patterns",
	"expr":            "filters.advanced_expression",
	"group-by-source": "format.group_by_source",
	"group-by-level":  "format.group_by_level",
	"timestamp":       "format.include_timestamp",
	"stack-trace":     "format.include_stack_trace",
	"redact":          "format.redact",
	"gitleaks":        "format.gitleaks",
	"output":          "format.output",
	"publish":         "publish.enabled",
}

func newExtractCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Collect events from the active page and print them as records",
		Long: `Attach to the first regular page of the browser, collect events for the
configured window, then filter and format them.

Records go to stdout; a summary goes to stderr. Interrupting collection
prints what was gathered so far.

Examples:
  # Ten seconds of everything, as JSON
  browserlog extract

  # Console errors only, grouped by level, as text
  browserlog extract --network=false --log=false --level error --group-by-level -o text

  # Requests to the API that are not health checks
  browserlog extract --expr 'api.example.com AND NOT healthz' --window 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := flagOverrides(cmd, extractFlags)
			if err != nil {
				return err
			}
			return runExtract(cmd.Context(), overrides, cmd.OutOrStdout(), cmd.ErrOrStderr(), quiet)
		},
	}

	f := cmd.Flags()
	f.String("host", "", "browser debugging host")
	f.Int("port", 0, "browser debugging port")
	f.Duration("window", 0, "collection window")
	f.Int("max-entries", 0, "buffer cap, 0 for unbounded")
	f.Bool("network", true, "capture network events")
	f.Bool("console", true, "capture console messages")
	f.Bool("log", true, "capture browser log entries")
	f.StringArray("level", nil, "keep only this level (repeatable)")
	f.StringArray("source", nil, "keep only this kind: network, console, log (repeatable)")
	f.StringArray("domain", nil, "keep only network entries whose URL contains this; * matches any run of characters (repeatable)")
	f.StringArray("keyword", nil, "keep only entries containing this (repeatable)")
	f.StringArray("exclude", nil, "drop entries matching this regular expression (repeatable)")
	f.String("expr", "", "boolean filter expression with AND, OR, NOT and parentheses")
	f.Bool("group-by-source", false, "group records by kind")
	f.Bool("group-by-level", false, "group records by level")
	f.Bool("timestamp", true, "prefix grouped lines with timestamps")
	f.Bool("stack-trace", false, "append stack frames to grouped lines")
	f.Bool("redact", true, "redact credentials in record content")
	f.Bool("gitleaks", false, "also redact with the gitleaks rule set")
	f.StringP("output", "o", "", fmt.Sprintf("output format: %v", format.Outputs()))
	f.Bool("publish", false, "publish records to NATS")
	f.BoolVarP(&quiet, "quiet", "q", false, "no summary or progress on stderr")
	return cmd
}

func runExtract(ctx context.Context, overrides map[string]any, stdout, stderr io.Writer, quiet bool) error {
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

	var opts []extract.Option
	if !quiet {
		opts = append(opts, extract.WithProgress(progressPrinter(stderr)))
	}
	ext, err := extract.NewFromConfig(a.cfg, a.logger, a.tel, opts...)
	if err != nil {
		return err
	}

	result, extractErr := ext.Extract(ctx, extract.OptionsFromConfig(a.cfg))
	if result == nil {
		return extractErr
	}
	interrupted := errors.Is(extractErr, context.Canceled)
	if extractErr != nil && !interrupted {
		return extractErr
	}

	if err := format.Encode(stdout, result.Records, a.cfg.Format.Output); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	if !quiet {
		fmt.Fprint(stderr, renderSummary(result, interrupted))
	}

	if a.cfg.Publish.Enabled {
		// Publish even when interrupted.
		pubCtx := context.WithoutCancel(ctx)
		if err := publishResult(pubCtx, a, result, extractErr); err != nil {
			return err
		}
	}
	return nil
}

func publishResult(ctx context.Context, a *app, result *extract.Result, extractErr error) error {
	p, err := publish.Connect(publish.Config{
		URL:     a.cfg.Publish.URL,
		Subject: a.cfg.Publish.Subject,
		Token:   a.cfg.Publish.Token.Value(),
		Timeout: a.cfg.Publish.Timeout.Duration(),
	}, a.logger.Underlying())
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Warn(ctx, "nats drain failed", zap.Error(err))
		}
	}()
	if err := p.Publish(ctx, result, extractErr); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	a.logger.Info(ctx, "published records",
		zap.String("subject", a.cfg.Publish.Subject),
		zap.Int("records", len(result.Records)),
	)
	return nil
}

func progressPrinter(w io.Writer) collector.ProgressFunc {
	return func(p collector.Progress) {
		fmt.Fprintf(w, "\r%s", renderProgress(p))
	}
}
