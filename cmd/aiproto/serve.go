package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/mcptools"
	"github.com/dusk-indust/aiproto/internal/metrics"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
	"github.com/dusk-indust/aiproto/internal/output"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		httpAddr    string
		metricsAddr string
		historyPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation tools over MCP",
		Long: `Serve exposes deliverable generation as MCP tools. Without --http the
server speaks MCP over stdin/stdout, for use as a subprocess of an MCP
client. With --http it serves streamable HTTP on the given address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f := *c.cfg
			if cmd.Flags().Changed("metrics-addr") {
				f.Metrics.Addr = metricsAddr
			}
			if cmd.Flags().Changed("history") {
				f.History.Path = historyPath
			}
			format, err := output.ParseFormat(f.Output.Format)
			if err != nil {
				return withCode(exitValidation, err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			rec, err := metrics.New(reg)
			if err != nil {
				return withCode(exitGeneral, err)
			}

			engine, err := c.newEngine(&f, orchestrator.WithMetrics(rec))
			if err != nil {
				return err
			}
			defer engine.Close()

			store, err := history.Open(ctx, f.History.Path)
			if err != nil {
				return withCode(exitConfig, err)
			}
			defer store.Close()

			svc := mcptools.NewService(engine,
				mcptools.WithHistory(store),
				mcptools.WithOutput(f.Output.Directory, format),
				mcptools.WithLogger(c.logger),
			)
			server := mcptools.NewMCPServer(svc)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				// The metrics listener stops with the MCP server.
				defer cancel()
				if httpAddr == "" {
					c.logger.Info("serving MCP on stdio")
					return mcptools.RunStdio(gctx, server)
				}
				c.logger.Info("serving MCP over HTTP", "addr", httpAddr)
				return mcptools.RunHTTP(gctx, httpAddr, mcptools.Handler(server))
			})
			if f.Metrics.Addr != "" {
				g.Go(func() error {
					c.logger.Info("serving metrics", "addr", f.Metrics.Addr)
					return mcptools.RunHTTP(gctx, f.Metrics.Addr, metrics.Handler(reg))
				})
			}

			err = g.Wait()
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return withCode(exitGeneral, err)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio (e.g. :8080)")
	fl.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	fl.StringVar(&historyPath, "history", "", "history store path (default: in-memory)")
	return cmd
}
