package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/farmbot/core/config"
	"github.com/m3rciful/farmbot/core/logger"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// Options describe how to load configuration and what to run with it.
type Options struct {
	// ConfigPath wins over the environment variable and the default.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	// Task runs with a context cancelled on SIGINT or SIGTERM.
	Task func(ctx context.Context, cfg ConfigCarrier) error

	ShutdownLogger func() error
}

// ResolveConfigPath picks the explicit path, then the env variable, then def.
func ResolveConfigPath(explicit, envVar, def string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := strings.TrimSpace(os.Getenv(envVar)); p != "" {
		return p
	}
	return def
}

// Run loads configuration and runs the task until it returns or a signal arrives.
func Run(opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Task == nil {
		return fmt.Errorf("cmd: Task is required")
	}

	cfgPath := ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath)
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via flag, %s or DefaultConfigPath", opts.ConfigEnvVar)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	err = opts.Task(ctx, cfg)
	attrs := []slog.Attr{slog.Duration("uptime", logger.RoundMS(time.Since(startedAt)))}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.Info(context.Background(), logger.CompApp, "stopped", attrs...)
	return err
}
