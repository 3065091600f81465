package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"service-tourbooking/internal/app"
	"service-tourbooking/internal/cache"
	"service-tourbooking/internal/repository"
	"service-tourbooking/internal/service"
	servicemigrations "service-tourbooking/migrations"
)

func main() {
	envFile := pflag.String("env-file", "", "load environment variables from this file before reading config")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	store := pflag.String("store", "", "storage backend: postgres or badger (overrides STORE)")
	pflag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *store != "" {
		config.Store = *store
	}

	logger := newLogger(os.Stdout, config.LogFormat, config.LogLevel)
	slog.SetDefault(logger)

	if err := run(config, *migrateOnly, logger); err != nil {
		logger.Error("service-tourbooking stopped", "error", err)
		os.Exit(1)
	}
}

func run(config config, migrateOnly bool, logger *slog.Logger) error {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var txManager repository.TxManager
	switch config.Store {
	case "postgres":
		db, err := openPostgres(shutdownCtx, config, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := servicemigrations.Up(shutdownCtx, db, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Debug("migrations completed")
		if migrateOnly {
			return nil
		}
		txManager = repository.NewPostgresTxManager(db)
	case "badger":
		if migrateOnly {
			return errors.New("--migrate-only requires the postgres store")
		}
		db, err := repository.OpenBadger(config.BadgerDir)
		if err != nil {
			return fmt.Errorf("open badger at %q: %w", config.BadgerDir, err)
		}
		defer closeBadger(db, logger)
		txManager = repository.NewBadgerTxManager(db)
	default:
		return &configError{message: "unknown STORE: " + config.Store}
	}

	var ruleCache service.RuleCache
	if config.RedisURL != "" {
		client := cache.NewRedisClient(config.RedisURL)
		defer client.Close()
		if err := client.Ping(shutdownCtx).Err(); err != nil {
			logger.Warn("redis unreachable, rules will be read from storage", "error", err)
		}
		ruleCache = cache.NewRuleCache(client, config.RuleCacheTTL, logger)
	}

	application := app.New(txManager, ruleCache, app.Config{
		Location:           config.Location,
		MaxHorizonDays:     config.MaxHorizonDays,
		MaxSlotsPerBooking: config.MaxSlotsPerBooking,
		RequireSchedule:    config.RequireSchedule,
		AdmissionRetries:   config.AdmissionRetries,
		RequestTimeout:     config.RequestTimeout,
	}, logger)

	server := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown error", "error", err)
		}
	}()

	logger.Info("service-tourbooking listening", "addr", config.HTTPAddr, "store", config.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func openPostgres(ctx context.Context, config config, logger *slog.Logger) (*sqlx.DB, error) {
	if config.DatabaseURL == "" {
		return nil, &configError{message: "missing required environment variable: DATABASE_URL"}
	}

	db, err := sqlx.Open("pgx", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug("database connection successful",
		"db_max_open", config.DBMaxOpenConns,
		"db_max_idle", config.DBMaxIdleConns,
		"db_conn_max_lifetime", config.DBConnMaxLifetime,
	)
	return db, nil
}

func closeBadger(db *badger.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("badger close error", "error", err)
	}
}

func loadEnvFile(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	// A missing default .env is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type config struct {
	Store              string
	DatabaseURL        string
	BadgerDir          string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	Location           *time.Location
	RedisURL           string
	RuleCacheTTL       time.Duration
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	RequestTimeout     time.Duration
	MaxHorizonDays     int
	MaxSlotsPerBooking int
	RequireSchedule    bool
	AdmissionRetries   int
}

func loadConfig() (config, error) {
	var cfg config

	var err error
	cfg.Store = strings.ToLower(getEnv("STORE", "postgres"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.BadgerDir = getEnv("BADGER_DIR", "")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if cfg.Location, err = getEnvLocation("TIME_ZONE", time.UTC); err != nil {
		return cfg, err
	}
	if cfg.RuleCacheTTL, err = getEnvDuration("RULE_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.DBMaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 10); err != nil {
		return cfg, err
	}
	if cfg.DBMaxIdleConns, err = getEnvInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return cfg, err
	}
	if cfg.DBConnMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.MaxHorizonDays, err = getEnvInt("MAX_HORIZON_DAYS", 366); err != nil {
		return cfg, err
	}
	if cfg.MaxSlotsPerBooking, err = getEnvInt("MAX_SLOTS_PER_BOOKING", 50); err != nil {
		return cfg, err
	}
	if cfg.RequireSchedule, err = getEnvBool("REQUIRE_SCHEDULE", false); err != nil {
		return cfg, err
	}
	if cfg.AdmissionRetries, err = getEnvInt("ADMISSION_RETRIES", 3); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, &configError{message: "invalid int for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, &configError{message: "invalid bool for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, &configError{message: "invalid duration for " + key + ": " + err.Error()}
	}
	return parsed, nil
}

func getEnvLocation(key string, fallback *time.Location) (*time.Location, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		return nil, &configError{message: "invalid time zone for " + key + ": " + err.Error()}
	}
	return loc, nil
}

type configError struct {
	message string
}

func (e *configError) Error() string {
	return e.message
}

var _ error = (*configError)(nil)
