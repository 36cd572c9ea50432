package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dusk-indust/codegraph/internal/config"
	"github.com/dusk-indust/codegraph/internal/mcptools"
	"github.com/dusk-indust/codegraph/internal/workspace"
)

func runServeMCP(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var common commonFlags
	fs := newFlagSet("serve-mcp", stderr, &common)
	addr := fs.String("addr", "", "HTTP listen address (default: mcpAddr from codegraph.yml)")
	stdio := fs.Bool("stdio", false, "serve on stdin/stdout instead of HTTP")
	noOpen := fs.Bool("no-open", false, "start without a workspace; clients call open_workspace")
	watch := fs.Bool("watch", false, "re-index the opened workspace on file changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := newLogger(stderr, common)
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := workspace.NewMetrics(reg)

	svc := mcptools.NewCodeIntelService(logger, metrics)
	defer svc.Close()

	if !*noOpen {
		ws, _, err := workspace.Open(ctx, common.Root, workspace.WithLogger(logger), workspace.WithMetrics(metrics))
		if err != nil {
			return err
		}
		// The watcher is stopped by the service before ws is closed.
		var onStop []func()
		if *watch {
			stop, err := watchWorkspace(ctx, ws, func(rep *workspace.ScanReport, err error) {
				if err == nil {
					logger.Info("workspace rescanned", slog.String("scan", rep.ID), slog.Int("parsed", len(rep.Parsed)))
				}
			})
			if err != nil {
				_ = ws.Close()
				return err
			}
			onStop = append(onStop, stop)
		}
		svc.SetWorkspace(ws, onStop...)
	}

	if *stdio {
		return mcptools.RunMCPServerStdio(ctx, svc)
	}

	listen := *addr
	if listen == "" {
		cfg, err := config.Load(common.Root)
		if err != nil {
			return err
		}
		listen = cfg.MCPAddr
	}
	fmt.Fprintf(stdout, "serving MCP on http://%s/mcp, metrics on http://%s/metrics\n", listen, listen)
	return mcptools.RunMCPServer(ctx, svc, listen, map[string]http.Handler{
		"/metrics": promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}
