// Command httpreq sends one HTTP request and prints the result.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"http-wrapper/application/binding"
	"http-wrapper/application/http/actor/client"
	"http-wrapper/config"
	"http-wrapper/metrics"
	"http-wrapper/session/engine"
	"http-wrapper/transport/tcp"

	"github.com/alecthomas/kong"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Set by ldflags.
var version = "dev"

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("httpreq"),
		kong.Description("Send a single HTTP request through the session engine."),
		kong.Vars{"version": version},
	)

	cfg, err := config.Load(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	os.Exit(run(cfg, newLogger(cfg)))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	m := metrics.New()
	clk := clock.New()

	provider := engine.New(tcp.NewDialer(tcp.DefaultDialerOptions), logger, clk, engine.DefaultOptions)

	result := binding.SendHTTPRequest(provider, logger, clk, client.Options{
		Metrics:      m,
		NewRequestID: uuid.NewString,
	}, cfg.Args())

	p := printer{w: os.Stdout, format: cfg.Output.Format, query: cfg.Output.Query}
	if err := p.print(result); err != nil {
		logger.Error("print result", "err", err)
		return 1
	}

	if cfg.Output.Metrics {
		if err := dumpMetrics(os.Stderr, m.Registry); err != nil {
			logger.Error("dump metrics", "err", err)
		}
	}

	if result.Error != nil {
		return 1
	}
	return 0
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(h)
}
