// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// waterci-executor connects to a WaterCI core, registers, and runs the
// jobs of the build requests it is sent until the core closes the
// session or goes away.
//
// Configuration comes from docker-executor.waterci.yml in the working
// directory (or --config-file), WATERCI_* environment variables, and
// flags, in increasing precedence. The process exits 0 when the session
// ends normally (closed by the core, core disconnected between
// commands, or SIGINT/SIGTERM) and 1 on any error.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"

	"github.com/waterci/executor/lib/clock"
	"github.com/waterci/executor/lib/codec"
	"github.com/waterci/executor/lib/config"
	"github.com/waterci/executor/lib/executor"
	"github.com/waterci/executor/lib/executor/shell"
	"github.com/waterci/executor/lib/logging"
	"github.com/waterci/executor/lib/protocol"
	"github.com/waterci/executor/lib/session"
	"github.com/waterci/executor/lib/telemetry"
	"github.com/waterci/executor/lib/version"
	"github.com/waterci/executor/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// commandFlags holds the command-line flags. Only flags the user set
// override the resolved configuration.
type commandFlags struct {
	configFile  string
	envFile     string
	coreHost    string
	corePort    int
	wireFormat  string
	logLevel    string
	logFormat   string
	showVersion bool

	set *pflag.FlagSet
}

func newCommandFlags() *commandFlags {
	flags := &commandFlags{set: pflag.NewFlagSet("waterci-executor", pflag.ContinueOnError)}
	flags.set.StringVarP(&flags.configFile, "config-file", "c", config.DefaultPath, "path to the configuration file (YAML or JSONC); a missing file means defaults")
	flags.set.StringVar(&flags.envFile, "env-file", "", "dotenv file layered beneath the process environment")
	flags.set.StringVar(&flags.coreHost, "core-host", "", "core hostname or IP address")
	flags.set.IntVar(&flags.corePort, "core-port", 0, "core TCP port")
	flags.set.StringVar(&flags.wireFormat, "wire-format", "", "wire encoding shared with the core (cbor, msgpack)")
	flags.set.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.set.StringVar(&flags.logFormat, "log-format", "", "log format (auto, text, json)")
	flags.set.BoolVar(&flags.showVersion, "version", false, "print version information and exit")
	return flags
}

// apply overrides cfg with every flag given on the command line.
func (f *commandFlags) apply(cfg *config.Config) {
	if f.set.Changed("core-host") {
		cfg.Core.Host = f.coreHost
	}
	if f.set.Changed("core-port") {
		cfg.Core.Port = f.corePort
	}
	if f.set.Changed("wire-format") {
		cfg.Core.WireFormat = f.wireFormat
	}
	if f.set.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.set.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

func run(args []string, stdout io.Writer) error {
	flags := newCommandFlags()
	if err := flags.set.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flags.set.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.set.Arg(0))
	}
	if flags.showVersion {
		fmt.Fprintf(stdout, "waterci-executor %s\n", version.Info())
		return nil
	}

	lookup, err := config.EnvironmentLookup(flags.envFile)
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(config.ResolveOptions{
		Path:     flags.configFile,
		Lookup:   lookup,
		Override: flags.apply,
	})
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel, err := telemetry.Setup(ctx, cfg.Telemetry, version.Short())
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: flushing telemetry: %v\n", err)
		}
	}()

	level, _ := cfg.Log.SlogLevel()
	logger := logging.New(logging.Options{
		Level:          level,
		Format:         logging.Format(cfg.Log.Format),
		LoggerProvider: otel.LoggerProvider(),
		Name:           cfg.Telemetry.ServiceName,
	})
	logger.Info("starting executor",
		"version", version.Info(),
		"core", transport.Address(cfg.Core.Host, cfg.Core.Port),
		"wire_format", cfg.Core.WireFormat,
	)

	jobs := shell.New(shell.Config{
		WorkspaceRoot:     cfg.Executor.WorkspaceRoot,
		KeepWorkspaces:    cfg.Executor.KeepWorkspaces,
		DefaultImage:      cfg.Executor.DefaultImage,
		ContainerRuntime:  cfg.Executor.ContainerRuntime,
		StepTimeout:       cfg.Executor.StepTimeout,
		KillGracePeriod:   cfg.Executor.KillGracePeriod,
		OutputLimit:       cfg.Executor.OutputLimit,
		OutputCompression: protocol.OutputEncoding(cfg.Executor.OutputCompression),
	}, logger, clock.Real())

	dialer := &transport.TCPDialer{Timeout: cfg.Core.DialTimeout}
	return serve(ctx, cfg, dialer, jobs, logger, otel.Tracer())
}

// serve runs one session against the core. It returns nil for every
// orderly end of the session. Fatal errors are logged before they are
// returned so the record reaches the telemetry pipeline ahead of its
// shutdown.
func serve(ctx context.Context, cfg *config.Config, dialer transport.Dialer, jobs executor.Executor, logger *slog.Logger, tracer trace.Tracer) error {
	address := transport.Address(cfg.Core.Host, cfg.Core.Port)
	options := session.Options{
		Format:           codec.Format(cfg.Core.WireFormat),
		Logger:           logger,
		Tracer:           tracer,
		HandshakeTimeout: cfg.Core.HandshakeTimeout,
	}

	executorSession, err := session.Dial(ctx, dialer, address, options)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("interrupted before registration completed")
			return nil
		}
		logger.Error("executor failed", "error", err)
		return err
	}
	defer executorSession.Close()

	reason, err := executorSession.Serve(ctx, jobs)
	if err != nil {
		logger.Error("executor failed", "error", err, "executor_id", executorSession.ID())
		return err
	}
	logger.Info("session ended", "reason", reason.String())
	return nil
}
