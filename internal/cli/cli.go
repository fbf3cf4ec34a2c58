// Package cli holds the start-up plumbing shared by the supportchat and
// supportadmin commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SupportChat/internal/backend"
	"SupportChat/internal/config"
	"SupportChat/internal/telemetry"
)

// Flags are the persistent flags every command accepts.
type Flags struct {
	ConfigPath string
	APIURL     string
	StatePath  string
	Debug      bool
}

// Register adds the persistent flags to cmd.
func (f *Flags) Register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.ConfigPath, "config", os.Getenv(config.EnvConfig), "path to YAML config file")
	pf.StringVar(&f.APIURL, "api-url", "", "support API base URL (overrides config)")
	pf.StringVar(&f.StatePath, "state", "", "local state database (overrides config)")
	pf.BoolVar(&f.Debug, "debug", false, "enable debug logging")
}

// Env is the initialised runtime shared by a command invocation.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter

	closers []func()
}

// Bootstrap loads .env and the config file, applies flag overrides, and starts
// logging and telemetry. Call Close when done.
func Bootstrap(ctx context.Context, f Flags, serviceName string) (*Env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f.APIURL != "" {
		cfg.API.BaseURL = f.APIURL
	}
	if f.StatePath != "" {
		cfg.Storage.Path = f.StatePath
	}
	if f.Debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}
	// Each binary gets its own log and telemetry files unless the config names them.
	if serviceName != "" {
		defaults := config.Default()
		if cfg.Logging.File == defaults.Logging.File {
			cfg.Logging.File = serviceName + ".log"
		}
		if cfg.Telemetry.ServiceName == defaults.Telemetry.ServiceName {
			cfg.Telemetry.ServiceName = serviceName
		}
	}

	env := &Env{Config: cfg}

	logger, closeLog, err := telemetry.InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	env.Logger = logger
	env.closers = append(env.closers, closeLog)

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	env.Tracer = tracer
	env.Meter = meter
	env.closers = append(env.closers, shutdown)

	logger.Info("starting", "service", serviceName, "api", cfg.API.BaseURL, "state", cfg.Storage.Path)
	return env, nil
}

// Client builds a backend client from the env's config and telemetry.
func (e *Env) Client() *backend.Client {
	return backend.New(e.Config.API.BaseURL,
		backend.WithTimeout(e.Config.API.Timeout),
		backend.WithLogger(e.Logger),
		backend.WithTracer(e.Tracer),
		backend.WithMeter(e.Meter),
	)
}

// Close flushes telemetry and closes the log file, in reverse start order.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
