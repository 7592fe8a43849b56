// Package main provides the tapwatch command: it follows one network
// interface, printing its link state, bridge membership, default route
// ownership and throughput, and optionally serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/tapwatch/internal/config"
	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/monitor"
	"github.com/opd-ai/tapwatch/internal/profiling"
	"github.com/opd-ai/tapwatch/internal/server"
	"github.com/opd-ai/tapwatch/pkg/tapwatch"
)

// Version is the current version of tapwatch.
// This default value can be overridden at build time using:
//
//	go build -ldflags "-X main.Version=x.y.z"
var Version = "0.1.0-dev"

// onceTimeout bounds the wait for the first sample in -once mode.
const onceTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type flags struct {
	configPath string
	iface      string
	json       bool
	once       bool
	list       bool
	listen     string
	version    bool
	dumpConfig bool
	watch      bool
	leakWatch  bool
	cpuProfile string
	memProfile string
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	fs := flag.NewFlagSet("tapwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &flags{}
	fs.StringVar(&f.configPath, "c", "", "Path to configuration file (legacy, Lua or YAML)")
	fs.StringVar(&f.iface, "i", "", "Interface to watch (overrides the configuration)")
	fs.BoolVar(&f.json, "json", false, "Print one JSON object per sample")
	fs.BoolVar(&f.once, "once", false, "Print a single sample and exit")
	fs.BoolVar(&f.list, "list", false, "List interfaces and default route owners, then exit")
	fs.StringVar(&f.listen, "listen", "", "Serve the HTTP API on this address (overrides the configuration)")
	fs.BoolVar(&f.version, "v", false, "Print version and exit")
	fs.BoolVar(&f.dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit")
	fs.BoolVar(&f.watch, "watch", true, "Reload the configuration file when it changes")
	fs.BoolVar(&f.leakWatch, "leakwatch", false, "Log sustained heap or goroutine growth")
	fs.StringVar(&f.cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	fs.StringVar(&f.memProfile, "memprofile", "", "Write memory profile to file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if f.version {
		fmt.Fprintf(stdout, "tapwatch version %s\n", Version)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	if f.iface != "" {
		cfg.Interface = f.iface
	}
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}

	if f.dumpConfig {
		out, err := config.EncodeYAML(cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error encoding configuration: %v\n", err)
			return 1
		}
		stdout.Write(out)
		return 0
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error configuring logging: %v\n", err)
		return 1
	}
	defer logCloser.Close()

	profConfig := profiling.Config{CPUProfilePath: f.cpuProfile, MemProfilePath: f.memProfile}
	if profConfig.Enabled() {
		profiler := profiling.New(profConfig)
		if err := profiler.Start(); err != nil {
			fmt.Fprintf(stderr, "Failed to start profiling: %v\n", err)
			return 1
		}
		defer func() {
			if err := profiler.Stop(); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to stop profiling: %v\n", err)
			}
		}()
	}

	metrics := monitor.NewMetrics()
	opts := tapwatch.Options{
		Interface:   f.iface,
		Logger:      logger,
		Metrics:     metrics,
		WatchConfig: f.watch && f.configPath != "",
	}

	switch {
	case f.list:
		return runList(f, opts, stdout, stderr)
	case f.once:
		return runOnce(f, opts, stdout, stderr)
	}
	return runDaemon(f, cfg, opts, logger, stdout, stderr)
}

// runList prints the kernel's interfaces, marking default route owners.
func runList(f *flags, opts tapwatch.Options, stdout, stderr io.Writer) int {
	inst, err := tapwatch.New(f.configPath, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating tapwatch instance: %v\n", err)
		return 1
	}
	defer inst.Stop()
	if err := printInterfaces(stdout, inst.Interfaces(), inst.DefaultRouteInterfaces(), f.json); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runOnce prints the first sample. It carries no rate: a rate needs two.
func runOnce(f *flags, opts tapwatch.Options, stdout, stderr io.Writer) int {
	views := make(chan monitor.View, 1)
	opts.Sinks = []monitor.Sink{monitor.ChannelSink(views)}
	opts.WatchConfig = false

	inst, err := tapwatch.New(f.configPath, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating tapwatch instance: %v\n", err)
		return 1
	}
	if err := inst.Start(); err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer inst.Stop()

	select {
	case v := <-views:
		if err := printView(stdout, v, f.json); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case <-time.After(onceTimeout):
		fmt.Fprintln(stderr, "No sample within", onceTimeout)
		return 1
	}
}

// instanceSource lets the HTTP server be built before the instance whose
// sinks it provides.
type instanceSource struct {
	tapwatch.Instance
}

func runDaemon(f *flags, cfg *config.Config, opts tapwatch.Options, logger *logging.SlogAdapter, stdout, stderr io.Writer) int {
	opts.Sinks = []monitor.Sink{printer(stdout, f.json)}

	var srv *server.Server
	src := &instanceSource{}
	if cfg.Server.Listen != "" {
		srv = server.New(src,
			server.WithLogger(logger.With("component", "http")),
			server.WithMetricsPath(cfg.Server.MetricsPath),
			server.WithMonitorMetrics(opts.Metrics),
			server.WithHealth(func() (bool, any) {
				h := src.Health()
				return !h.IsUnhealthy(), h
			}),
		)
		opts.Sinks = append(opts.Sinks, srv.Sinks()...)
	}

	inst, err := tapwatch.New(f.configPath, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating tapwatch instance: %v\n", err)
		return 1
	}
	src.Instance = inst
	opts.Metrics.RegisterExpvar("tapwatch")

	inst.SetErrorHandler(func(err error) {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	})
	inst.SetEventHandler(func(e tapwatch.Event) {
		logger.Info("event", "type", e.Type.String(), "message", e.Message)
	})

	if err := inst.Start(); err != nil {
		fmt.Fprintf(stderr, "Failed to start: %v\n", err)
		return 1
	}
	if srv != nil {
		if err := srv.Start(cfg.Server.Listen); err != nil {
			fmt.Fprintf(stderr, "Failed to start HTTP server: %v\n", err)
			inst.Stop()
			return 1
		}
	}
	if f.leakWatch {
		lw := profiling.NewLeakWatch(profiling.LeakWatchConfig{}, func(g profiling.Growth) {
			logger.Warn("possible leak", "reason", g.Reason, "heap_delta", g.HeapDelta, "goroutine_delta", g.GoroutineDelta)
		})
		lw.Start()
		defer lw.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading configuration")
			if err := inst.ReloadConfig(); err != nil {
				fmt.Fprintf(stderr, "Reload failed: %v\n", err)
			}
		case syscall.SIGUSR1:
			logger.Info("received SIGUSR1, restarting")
			if err := inst.Restart(); err != nil {
				fmt.Fprintf(stderr, "Restart failed: %v\n", err)
			}
		default:
			logger.Info("shutting down", "signal", sig.String())
			code := 0
			if srv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), tapwatch.DefaultShutdownTimeout)
				if err := srv.Shutdown(ctx); err != nil {
					fmt.Fprintf(stderr, "HTTP shutdown error: %v\n", err)
					code = 1
				}
				cancel()
			}
			if err := inst.Stop(); err != nil {
				fmt.Fprintf(stderr, "Stop error: %v\n", err)
				code = 1
			}
			return code
		}
	}
	return 0
}
