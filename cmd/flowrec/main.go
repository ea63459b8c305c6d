// CLAUDE:SUMMARY CLI entry point for flowrec: recording daemon (browser capture, aggregator, HTTP panel, MCP) and offline FlowMap compilation.
// Command flowrec records a web workflow demonstrated in a browser and
// compiles it into a FlowMap.
//
// Usage:
//
//	flowrec -config flowrec.yaml                       # record: browser + panel
//	flowrec -start-url https://portal.example/form     # record with defaults
//	flowrec -mcp stdio                                 # record, MCP tools on stdio
//	flowrec -compile session.raw.json -out flow.json -md report.md
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/flowrec/capture"
	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/recorder"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to flowrec.yaml config file")
	compilePath := flag.String("compile", "", "compile a raw session file and exit")
	outPath := flag.String("out", "", "FlowMap output file for -compile (default stdout)")
	mdPath := flag.String("md", "", "Markdown report output file for -compile")
	startURL := flag.String("start-url", "", "URL opened when the browser starts")
	remote := flag.String("remote", "", "CDP websocket URL of an existing Chrome")
	headful := flag.Bool("headful", false, "show the browser window")
	noBrowser := flag.Bool("no-browser", false, "serve the panel and MCP tools without launching a browser")
	mcpMode := flag.String("mcp", "", "MCP transport: stdio or http (overrides config)")
	addr := flag.String("addr", "", "panel listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := recorder.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = recorder.LoadConfigFile(*configPath)
		if err != nil {
			logger.Error("flowrec: load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	if *compilePath != "" {
		if err := runCompile(cfg, *compilePath, *outPath, *mdPath); err != nil {
			logger.Error("flowrec: compile", "file", *compilePath, "error", err)
			os.Exit(1)
		}
		return
	}

	if *startURL != "" {
		cfg.Browser.StartURL = *startURL
	}
	if *remote != "" {
		cfg.Browser.Remote = *remote
	}
	if *headful {
		cfg.Browser.Headful = true
	}
	if *mcpMode != "" {
		cfg.Panel.MCP = *mcpMode
	}
	if *addr != "" {
		cfg.Panel.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runRecord(ctx, stop, logger, cfg, !*noBrowser); err != nil {
		logger.Error("flowrec: fatal", "error", err)
		os.Exit(1)
	}
}

// runCompile compiles a raw session file without any live recording.
func runCompile(cfg *recorder.Config, path, out, md string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	raw, err := horosafe.LimitedReadAll(f, horosafe.MaxRawSession)
	f.Close()
	if err != nil {
		return err
	}

	opts := cfg.CompileOptions()
	opts.RawFile = filepath.Base(path)
	fm, err := flowmap.CompileJSON(raw, opts)
	if err != nil {
		return err
	}
	data, err := flowmap.Encode(fm)
	if err != nil {
		return err
	}
	if out == "" {
		os.Stdout.Write(data)
		os.Stdout.Write([]byte("\n"))
	} else if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}

	if md != "" {
		report, err := flowmap.RenderMarkdown(fm)
		if err != nil {
			return err
		}
		if err := os.WriteFile(md, []byte(report), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// runRecord runs the recording daemon until ctx is cancelled or the stdio
// MCP client goes away.
func runRecord(ctx context.Context, stop context.CancelFunc, logger *slog.Logger, cfg *recorder.Config, withBrowser bool) error {
	rec, err := recorder.New(cfg, recorder.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rec.Close()
	go rec.Run(ctx)
	defer func() { <-rec.Aggregator().Done() }()

	if withBrowser {
		capt := capture.New(capture.ConfigFrom(cfg, logger), rec.Aggregator())
		if err := capt.Start(ctx); err != nil {
			stop()
			return err
		}
		defer capt.Close()
		rec.SetTabs(capt)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "flowrec", Version: version}, nil)
	rec.RegisterMCP(mcpSrv)

	var panelMCP *mcp.Server
	if cfg.Panel.MCP == "http" {
		panelMCP = mcpSrv
	}
	srv := &http.Server{
		Addr:              cfg.Panel.Addr,
		Handler:           rec.Handler(panelMCP),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("flowrec: panel starting", "addr", cfg.Panel.Addr, "mcp", cfg.Panel.MCP)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("flowrec: panel", "error", err)
			stop()
		}
	}()

	if cfg.Panel.MCP == "stdio" {
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("flowrec: mcp stdio", "error", err)
			}
			stop()
		}()
	}

	<-ctx.Done()
	logger.Info("flowrec: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("panel shutdown: %w", err)
	}
	return nil
}
