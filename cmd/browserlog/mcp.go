package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve extraction as MCP tools on stdio",
		Long: `Run an MCP server on stdin/stdout exposing extract_browser_logs,
classify_error and list_known_errors. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.close()

	ext, err := extract.NewFromConfig(a.cfg, a.logger, a.tel)
	if err != nil {
		return err
	}

	zl := a.logger.Underlying().Named("mcp")
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "browserlog",
		Version: version,
		Logger:  zl,
		Metrics: mcp.NewMetrics(a.tel.Meter("github.com/fyrsmithlabs/browserlog/internal/mcp"), zl),
	}, ext, extract.OptionsFromConfig(a.cfg))
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}
	return srv.Run(ctx)
}
