// Package main implements the gzweb command line client: it connects to a
// Gazebo-style simulation server over websocket and exposes the session's
// topics, world, scene and asset channel from the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gazebo-web/gzweb-sub000/config"
	"github.com/gazebo-web/gzweb-sub000/gzclient"
	"github.com/gazebo-web/gzweb-sub000/metric"
	"github.com/gazebo-web/gzweb-sub000/pkg/retry"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "gzweb"
)

type cliFlags struct {
	configPath  string
	url         string
	key         string
	verbose     bool
	showVersion bool
	readyWait   time.Duration
	count       int
	output      string
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() (*cliFlags, []string) {
	flags := &cliFlags{}

	flag.StringVar(&flags.configPath, "config", "", "Path to a TOML or JSON config file")
	flag.StringVar(&flags.url, "url", "", "Simulation server websocket URL (overrides config)")
	flag.StringVar(&flags.key, "key", "", "Authorization key (overrides config)")
	flag.BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")
	flag.DurationVar(&flags.readyWait, "ready-wait", 15*time.Second,
		"How long to wait for the session to become ready")
	flag.IntVar(&flags.count, "n", 0, "Number of messages to echo before exiting (0 = until interrupted)")
	flag.StringVar(&flags.output, "o", "", "Output file for fetched assets (default stdout)")
	flag.Usage = printUsage
	flag.Parse()

	return flags, flag.Args()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  topics              List the topics the server advertises
  world               Print the active world name
  scene               Print the scene snapshot as JSON
  echo <topic>        Subscribe to a topic and print its messages
  asset <uri>         Fetch an asset by URI and write its bytes

Flags:
`, appName)
	flag.PrintDefaults()
}

func run() error {
	flags, args := parseFlags()

	if flags.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("no command given")
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.url != "" {
		cfg.Server.URL = flags.url
	}
	if flags.key != "" {
		cfg.Auth.Key = flags.key
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	registry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer func() { _ = metricsServer.Stop() }()
		logger.Info("metrics endpoint started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	client, err := gzclient.New(cfg.Server.URL, clientOptions(cfg, logger, registry)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var readyOnce sync.Once
	ready := make(chan struct{})
	fail := make(chan error, 1)
	scenes := make(chan map[string]any, 1)

	client.OnStateChange(func(sc gzclient.StateChange) {
		switch sc.To {
		case gzclient.StateReady:
			readyOnce.Do(func() { close(ready) })
		case gzclient.StateError:
			select {
			case fail <- sc.Err:
			default:
			}
		}
	})
	client.OnScene(func(scene map[string]any) {
		select {
		case scenes <- scene:
		default:
		}
	})

	logger.Info("connecting", "url", cfg.Server.URL)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = client.Disconnect() }()

	select {
	case <-ready:
	case err := <-fail:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(flags.readyWait):
		return fmt.Errorf("session did not become ready within %s", flags.readyWait)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runCommand(gctx, client, scenes, flags, args)
	})
	g.Go(func() error {
		// Surface a mid-command session failure as the command error.
		select {
		case err := <-fail:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	return g.Wait()
}

func clientOptions(cfg config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) []gzclient.ClientOption {
	opts := []gzclient.ClientOption{
		gzclient.WithLogger(logger),
		gzclient.WithMetrics(registry),
		gzclient.WithHandshakeTimeout(cfg.Connection.HandshakeTimeout.Duration),
	}
	if cfg.Auth.Key != "" {
		opts = append(opts, gzclient.WithKey(cfg.Auth.Key))
	}
	if cfg.Connection.AutoReconnect {
		opts = append(opts, gzclient.WithReconnect(retry.Config{
			MaxAttempts:  cfg.Connection.ReconnectMaxAttempts,
			InitialDelay: cfg.Connection.ReconnectInitialDelay.Duration,
			MaxDelay:     cfg.Connection.ReconnectMaxDelay.Duration,
			Multiplier:   2.0,
			AddJitter:    true,
		}))
	}
	if cfg.Connection.PublishRateLimit > 0 {
		opts = append(opts, gzclient.WithPublishRateLimit(
			rate.Limit(cfg.Connection.PublishRateLimit), cfg.Connection.PublishBurst))
	}
	return opts
}
