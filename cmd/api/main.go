package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yogaflow/attendance/internal/api"
	"github.com/yogaflow/attendance/internal/attendance"
	"github.com/yogaflow/attendance/internal/auth"
	"github.com/yogaflow/attendance/internal/config"
	"github.com/yogaflow/attendance/internal/database"
	"github.com/yogaflow/attendance/internal/export"
	"github.com/yogaflow/attendance/internal/metrics"
	"github.com/yogaflow/attendance/internal/notify"
	"github.com/yogaflow/attendance/internal/ratelimit"
	"github.com/yogaflow/attendance/internal/scheduler"
)

const version = "1.0.0"

// application holds everything main starts and must stop
type application struct {
	api        *api.Api
	accounts   *auth.Accounts
	db         *database.DB
	scheduler  *scheduler.Scheduler
	dispatcher *notify.Dispatcher
	publisher  *notify.AMQPPublisher
	redis      *redis.Client
	log        *slog.Logger
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.IsProduction() || strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("env", cfg.Environment))
}

func initializeAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app := &application{db: db, log: log}

	m := metrics.New()

	sinks := []notify.Sink{notify.NewInboxSink(db), notify.NewLogSink(log)}
	if cfg.Notify.AMQPURL != "" {
		pub, err := notify.NewAMQPPublisher(ctx, cfg.Notify.AMQPURL, cfg.Notify.Exchange, log)
		if err != nil {
			log.Warn("notification events disabled", slog.Any("error", err))
		} else {
			app.publisher = pub
			sinks = append(sinks, notify.NewAMQPSink(pub))
		}
	}
	app.dispatcher = notify.NewDispatcher(log, sinks, notify.WithAsync(), notify.WithMetrics(m))

	var mailer auth.Mailer
	if cfg.SMTP.Host != "" {
		mailer = notify.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, log)
	}

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	sessions := auth.NewSessionRegistry(db)
	revocation := auth.NewRevocationCoordinator(db, sessions, log)
	issuer := auth.NewIssuer(tokens, db, db, cfg.Auth.RefreshTokenTTL, log)
	authService := auth.NewService(auth.NewVerifier(db, hasher), issuer, sessions, revocation, m, log)
	accounts := auth.NewAccounts(db, hasher, revocation, app.dispatcher, mailer, cfg.Auth.ResetCodeTTL, log)
	app.accounts = accounts

	clock := attendance.SystemClock(cfg.Location())
	engine := attendance.NewEngine(db, app.dispatcher, m, cfg.Progression.Threshold, cfg.Progression.MaxLevel, log)
	recorder := attendance.NewRecorder(db, engine, attendance.NewBackfiller(db), clock, m, log)
	reminder := attendance.NewReminder(db, app.dispatcher, clock, log)

	var archiver export.Archiver
	if cfg.S3.Bucket != "" {
		s3Archiver, err := export.NewS3Archiver(ctx, export.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("init s3 archiver: %w", err)
		}
		archiver = s3Archiver
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Retention, cfg.RateLimit.MaxKeys)
		if cfg.RateLimit.RedisAddr != "" {
			client, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisAddr)
			if err != nil {
				log.Warn("redis unavailable, rate limiting in memory", slog.Any("error", err))
			} else {
				app.redis = client
				limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Requests, cfg.RateLimit.Window)
			}
		}
	}

	app.api, err = api.NewApi(cfg, api.Deps{
		Auth:     authService,
		Accounts: accounts,
		Recorder: recorder,
		Reminder: reminder,
		Exporter: export.NewExporter(recorder, archiver, log),
		Inbox:    db,
		Limiter:  limiter,
		Metrics:  m,
	}, log)
	if err != nil {
		app.close()
		return nil, err
	}

	app.scheduler = scheduler.New(log,
		scheduler.ProgressionTask(engine, cfg.Scheduler.ProgressionInterval, log),
		scheduler.TokenPurgeTask(db, cfg.Scheduler.TokenPurgeInterval, log),
		scheduler.ReminderCleanupTask(db, cfg.Scheduler.ReminderInterval, log),
	)
	return app, nil
}

func (app *application) close() {
	if app.accounts != nil {
		app.accounts.Wait()
	}
	if app.dispatcher != nil {
		app.dispatcher.Close()
	}
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.log.Warn("closing rabbitmq publisher", slog.Any("error", err))
		}
	}
	if app.redis != nil {
		app.redis.Close()
	}
	if err := app.db.Close(); err != nil {
		app.log.Warn("closing database", slog.Any("error", err))
	}
}

func (app *application) run(ctx context.Context) error {
	app.scheduler.Start(ctx)
	err := app.api.Serve(ctx)
	app.scheduler.Wait()
	return err
}

func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env", slog.Any("error", err))
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := newLogger(cfg)
	log.Info("starting yoga attendance API", slog.String("version", version), slog.String("config", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	app, err := initializeAPI(initCtx, cfg, log)
	cancel()
	if err != nil {
		log.Error("failed to initialize API", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.close()

	if err := app.run(ctx); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		app.close()
		os.Exit(1)
	}
	log.Info("server stopped")
}
