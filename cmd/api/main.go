package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pneumax/pneumax-api/internal/application"
	"github.com/pneumax/pneumax-api/internal/application/accounts"
	"github.com/pneumax/pneumax-api/internal/application/auth"
	"github.com/pneumax/pneumax-api/internal/application/enrich"
	"github.com/pneumax/pneumax-api/internal/application/pipeline"
	"github.com/pneumax/pneumax-api/internal/application/quality"
	"github.com/pneumax/pneumax-api/internal/config"
	"github.com/pneumax/pneumax-api/internal/domain/diagnosis"
	"github.com/pneumax/pneumax-api/internal/domain/scans"
	"github.com/pneumax/pneumax-api/internal/domain/users"
	"github.com/pneumax/pneumax-api/internal/infra/ai/openai"
	"github.com/pneumax/pneumax-api/internal/infra/classifier/dummy"
	"github.com/pneumax/pneumax-api/internal/infra/classifier/tfserving"
	"github.com/pneumax/pneumax-api/internal/infra/db/memory"
	mongop "github.com/pneumax/pneumax-api/internal/infra/db/mongo"
	mysqlp "github.com/pneumax/pneumax-api/internal/infra/db/mysql"
	pgp "github.com/pneumax/pneumax-api/internal/infra/db/postgres"
	"github.com/pneumax/pneumax-api/internal/infra/httpserver"
	minioStore "github.com/pneumax/pneumax-api/internal/infra/storage"
	"github.com/pneumax/pneumax-api/internal/middleware"
)

const modelType = "Multi-class Lung Disease Detection"

type store struct {
	scans  scans.Repository
	users  users.Repository
	pinger middleware.Pinger
	close  func()
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	log := logrus.New()
	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}
	configureLogger(log, cfg)

	insecure, err := cfg.Validate()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if insecure {
		log.Warn("JWT_SECRET not set; using the development secret")
	}

	ctx := context.Background()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Database.Driver).Fatal("database connect error")
	}
	defer st.close()

	classifier := newClassifier(cfg)

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL(), application.SystemClock{})
	if err != nil {
		log.WithError(err).Fatal("token service init error")
	}

	pipe := &pipeline.Service{
		Gate:            quality.DefaultGate(),
		Classifier:      classifier,
		Enricher:        enrich.New(nil),
		Tokens:          tokens,
		Scans:           st.scans,
		Clock:           application.SystemClock{},
		Log:             log,
		ModelVersion:    cfg.Classifier.ModelVersion,
		ClassifyTimeout: cfg.ClassifierTimeout(),
		StorageTimeout:  cfg.DatabaseTimeout(),
	}
	acc := &accounts.Service{
		Users:   st.users,
		Tokens:  tokens,
		Clock:   application.SystemClock{},
		Log:     log,
		Timeout: cfg.DatabaseTimeout(),
	}

	checks := map[string]middleware.HealthChecker{}
	if cfg.Minio.Enabled {
		images, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.WithError(err).Fatal("minio init error")
		}
		pipe.Images = images
		checks["storage"] = middleware.PingChecker{Target: images}
	}

	classes := make([]string, len(diagnosis.Classes))
	for i, c := range diagnosis.Classes {
		classes[i] = string(c)
	}
	opts := httpserver.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Model:          middleware.ModelInfo{Loaded: pipe.ModelLoaded, Type: modelType, Classes: classes},
		Database: middleware.DatabaseInfo{
			Driver:  cfg.Database.Driver,
			Name:    cfg.Database.Name,
			Checker: middleware.PingChecker{Target: st.pinger},
		},
		Checks: checks,
	}
	opts.RateLimit.Capacity = cfg.Server.RateLimit.Capacity
	opts.RateLimit.RefillRate = cfg.Server.RateLimit.RefillRate

	handler, closeRouter := httpserver.NewRouter(pipe, acc, log, opts)
	defer closeRouter()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ClassifierTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":       addr,
			"driver":     cfg.Database.Driver,
			"classifier": cfg.Classifier.Backend,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithField("level", cfg.Log.Level).Warn("unknown log level, using info")
	}
	if cfg.Log.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}

func newClassifier(cfg *config.Config) diagnosis.Classifier {
	switch cfg.Classifier.Backend {
	case "tfserving":
		return tfserving.New(cfg.Classifier.TFServing.URL, cfg.Classifier.TFServing.Model, cfg.ClassifierTimeout())
	case "openai":
		return openai.NewClient(cfg.Classifier.OpenAI.APIKey, cfg.Classifier.OpenAI.BaseURL, cfg.Classifier.OpenAI.Model)
	default:
		return dummy.New()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*store, error) {
	switch cfg.Database.Driver {
	case "mongo":
		cli, err := mongop.Connect(ctx, cfg.Database.URI)
		if err != nil {
			return nil, err
		}
		db := cli.Database(cfg.Database.Name)
		if err := mongop.EnsureIndexes(ctx, db); err != nil {
			_ = cli.Disconnect(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		repo := mongop.NewScanRepository(db)
		return &store{
			scans:  repo,
			users:  mongop.NewUserRepository(db),
			pinger: repo,
			close:  func() { _ = cli.Disconnect(context.Background()) },
		}, nil

	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		return sqlStore(ctx, cfg, db, mysqlp.Migrate, mysqlp.NewScanRepository(db), mysqlp.NewUserRepository(db))

	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return sqlStore(ctx, cfg, db, pgp.Migrate, pgp.NewScanRepository(db), pgp.NewUserRepository(db))

	default:
		log.Warn("using in-memory store; data is lost on restart")
		repo := memory.NewScanRepository()
		return &store{scans: repo, users: memory.NewUserRepository(), pinger: repo, close: func() {}}, nil
	}
}

type scanPinger interface {
	scans.Repository
	middleware.Pinger
}

func sqlStore(ctx context.Context, cfg *config.Config, db *sql.DB,
	migrate func(context.Context, *sql.DB) error, sr scanPinger, ur users.Repository) (*store, error) {
	if cfg.Database.Migrate {
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &store{scans: sr, users: ur, pinger: sr, close: func() { _ = db.Close() }}, nil
}
