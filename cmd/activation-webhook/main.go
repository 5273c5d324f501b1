package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	activation "github.com/goliatone/go-checkout-activation"
	"github.com/goliatone/go-checkout-activation/adapters/gocommand"
	"github.com/goliatone/go-checkout-activation/core"
	activationmigrations "github.com/goliatone/go-checkout-activation/migrations"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "activation-webhook" }

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	driver := flag.String("db", "", "database driver: sqlite|postgres|memory (overrides DATABASE_DRIVER)")
	resend := flag.String("resend", "", "resend the activation email for a checkout session id and exit")
	sweep := flag.Bool("sweep", true, "queue pending activation emails on startup")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level: trace|debug|info|warn|error")
	debugSQL := flag.Bool("debug-sql", false, "log SQL statements")
	flag.Parse()

	logger := newLogger(os.Stdout, *logLevel)

	if err := run(logger, options{
		addr:     *addr,
		driver:   *driver,
		resend:   *resend,
		sweep:    *sweep,
		debugSQL: *debugSQL,
	}); err != nil {
		logger.Error("activation-webhook: exiting", "error", err.Error())
		os.Exit(1)
	}
}

// newLogger writes one JSON object per line to w, tagged with the
// process name.
func newLogger(w io.Writer, level string) glog.Logger {
	root := glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithWriter(w),
		glog.WithLevel(level),
	)
	return root.GetLogger("activation-webhook")
}

type options struct {
	addr     string
	driver   string
	resend   string
	sweep    bool
	debugSQL bool
}

func run(logger glog.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}

	deps := activation.RuntimeDependencies{Logger: logger}
	if cfg.DatabaseDriver() != core.DatabaseDriverMemory {
		client, err := openPersistence(ctx, cfg, opts.debugSQL)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.DB = client.DB()

		cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
		if err != nil {
			return err
		}
		deps.Cache = cacheService
	}

	rt, err := activation.NewRuntime(cfg, deps)
	if err != nil {
		return err
	}

	if sessionID := strings.TrimSpace(opts.resend); sessionID != "" {
		return resendActivation(ctx, rt, sessionID)
	}

	if opts.sweep {
		if _, err := rt.SweepPendingNotifications(ctx, time.Now(), 0); err != nil {
			logger.Warn("activation-webhook: pending notification sweep failed", "error", err.Error())
		}
	}
	return rt.Run(ctx, cfg.HTTP.Addr)
}

// loadConfig layers defaults < environment < flags.
func loadConfig(ctx context.Context, opts options) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded, err := core.NewCfgxConfigProvider(core.NewEnvConfigLoader()).Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}
	runtime := core.Config{}
	runtime.HTTP.Addr = strings.TrimSpace(opts.addr)
	runtime.Database.Driver = strings.TrimSpace(opts.driver)
	return core.GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
}

func openPersistence(ctx context.Context, cfg core.Config, debug bool) (*persistence.Client, error) {
	target, err := activationmigrations.DialectForDriver(cfg.DatabaseDriver())
	if err != nil {
		return nil, err
	}
	sqlDriver, dialect := "sqlite3", schema.Dialect(sqlitedialect.New())
	if target == activationmigrations.DialectPostgres {
		sqlDriver, dialect = "postgres", pgdialect.New()
	}

	sqlDB, err := sql.Open(sqlDriver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("activation-webhook: open %s: %w", sqlDriver, err)
	}
	if sqlDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	client, err := persistence.New(persistenceConfig{driver: sqlDriver, dsn: cfg.Database.DSN, debug: debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	_, err = activationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == target {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, activationmigrations.WithValidationTargets(target))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("activation-webhook: migrate: %w", err)
	}
	return client, nil
}

func resendActivation(ctx context.Context, rt *activation.Runtime, sessionID string) error {
	adapter := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	subs, err := gocommand.RegisterActivationCommands(adapter, rt.Service)
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		return err
	}

	outcome, ok, err := gocommand.DispatchRetryNotification(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("activation-webhook: no outcome recorded for %s", sessionID)
	}
	fmt.Fprintf(os.Stdout, "session=%s status=%s notified=%t\n", outcome.SessionID, outcome.Status, outcome.Notified)
	if !outcome.Notified {
		return fmt.Errorf("activation-webhook: email for %s was not delivered", sessionID)
	}
	return nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
