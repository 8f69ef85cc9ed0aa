package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/survey-intake/internal/config"
	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	mysqlp "github.com/bryanwahyu/survey-intake/internal/infra/db/mysql"
	"github.com/bryanwahyu/survey-intake/internal/infra/db/postgres"
	"github.com/bryanwahyu/survey-intake/internal/infra/notify"
	"github.com/bryanwahyu/survey-intake/internal/infra/storage"
	"github.com/bryanwahyu/survey-intake/internal/infra/store"
	"github.com/bryanwahyu/survey-intake/internal/middleware"
)

// OpenStore opens the CSV store described by cfg.Storage.
func OpenStore(cfg *config.Config, schema *domain.Schema, log *zap.Logger) (*store.FileStore, error) {
	return store.Open(schema, store.Options{
		DataDir:   cfg.Storage.DataDir,
		CSVFile:   cfg.Storage.CSVFile,
		BackupDir: cfg.Storage.BackupDir,
		Sync:      cfg.Storage.SyncWrites(),
	}, log)
}

type SinkOptions struct {
	// IncludeEmail adds the email notifier when it is configured.
	IncludeEmail bool
	// Strict fails on a configured sink that cannot be reached instead of
	// skipping it.
	Strict bool
}

// Sinks holds the delivery targets built from config plus their health checks.
type Sinks struct {
	List    []domain.Sink
	Health  map[string]middleware.HealthChecker
	closers []func() error
}

func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *Sinks) add(sink domain.Sink, check middleware.HealthChecker) {
	s.List = append(s.List, sink)
	if check != nil {
		s.Health[sink.Name()] = check
	}
}

func BuildSinks(ctx context.Context, cfg *config.Config, schema *domain.Schema, log *zap.Logger, opts SinkOptions) (*Sinks, error) {
	s := &Sinks{Health: map[string]middleware.HealthChecker{}}

	skip := func(name string, err error) error {
		if opts.Strict {
			s.Close()
			return fmt.Errorf("%s sink: %w", name, err)
		}
		log.Warn("sink unavailable, continuing without it", zap.String("sink", name), zap.Error(err))
		return nil
	}

	if opts.IncludeEmail {
		if cfg.EmailEnabled() {
			s.add(notify.NewEmailNotifier(cfg.Notify(), schema, log), nil)
		} else {
			log.Info("email not configured, notifications disabled")
		}
	}

	if cfg.Minio.Enabled {
		m, err := storage.New(ctx, storage.Options{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			BucketName: cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			Prefix:     cfg.Minio.Prefix,
		}, log)
		if err != nil {
			if err := skip("minio", err); err != nil {
				return nil, err
			}
		} else {
			s.add(m, m)
		}
	}

	if cfg.Archive.Driver != "" {
		sink, db, err := openArchive(ctx, cfg)
		if err != nil {
			if err := skip(cfg.Archive.Driver, err); err != nil {
				return nil, err
			}
		} else {
			s.add(sink, &middleware.DatabaseHealthChecker{DB: db})
			s.closers = append(s.closers, db.Close)
		}
	}

	return s, nil
}

type archive interface {
	domain.Sink
	Migrate(ctx context.Context) error
}

func openArchive(ctx context.Context, cfg *config.Config) (domain.Sink, *sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Archive.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.ArchiveDSN())
	case "postgres":
		db, err = postgres.Connect(ctx, cfg.ArchiveDSN())
	default:
		return nil, nil, fmt.Errorf("unknown archive driver %q", cfg.Archive.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	var repo archive
	if cfg.Archive.Driver == "mysql" {
		repo = mysqlp.NewResponseRepository(db)
	} else {
		repo = postgres.NewResponseRepository(db)
	}
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}
