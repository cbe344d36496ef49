package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/farmbot/core/config"
	coredatabase "github.com/m3rciful/farmbot/core/database"
	"github.com/m3rciful/farmbot/core/logger"
	"github.com/m3rciful/farmbot/core/paramstore"
)

const defaultWaitTimeout = 30 * time.Second

// Options control the bootstrap pipeline shared by every command.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	// ResolveToken fetches the bot token from the parameter store when only
	// telegram.token_param is set.
	ResolveToken bool
	// Params overrides the parameter store client built from the AWS environment.
	Params paramstore.Getter
	// WaitTimeout bounds how long a Postgres database may take to come up.
	WaitTimeout time.Duration

	LoggerInit func(*coreconfig.Config) error
	Wait       func(dsn string, timeout time.Duration) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, resolves secrets, connects to the database and
// applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if opts.ResolveToken {
		if err := resolveToken(ctx, opts); err != nil {
			return nil, fmt.Errorf("bootstrap: token: %w", err)
		}
	}

	if opts.Database.Driver == coredatabase.DriverPostgres {
		wait := opts.Wait
		if wait == nil {
			wait = coredatabase.WaitForPostgres
		}
		timeout := opts.WaitTimeout
		if timeout <= 0 {
			timeout = defaultWaitTimeout
		}
		if err := wait(opts.Database.DSN(), timeout); err != nil {
			return nil, fmt.Errorf("bootstrap: database not ready: %w", err)
		}
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{DB: db}, nil
}

func resolveToken(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		return nil
	}
	params := opts.Params
	if params == nil {
		client, err := paramstore.NewFromEnv(ctx)
		if err != nil {
			return err
		}
		params = client
	}
	if err := paramstore.ResolveToken(ctx, params, cfg); err != nil {
		return err
	}
	logger.Info(ctx, logger.CompApp, "token.resolved",
		slog.String("source", "ssm"),
		slog.String("param", cfg.Telegram.TokenParam),
	)
	return nil
}
