// Package app wires configuration into the executor, query client, catalog
// repository, storage service, and auth clients shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/config"
	"github.com/reyadatime/reyadatime/internal/localstore"
	"github.com/reyadatime/reyadatime/internal/query"
	"github.com/reyadatime/reyadatime/internal/sqlexec"
	"github.com/reyadatime/reyadatime/internal/storage"
	s3store "github.com/reyadatime/reyadatime/internal/storage/s3"
)

type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Executor sqlexec.Executor
	DB       *query.Client
	Catalog  *catalog.Store
	Storage  *storage.Service

	sqlDB *sql.DB
}

// Open connects the database executor and object store described by cfg.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	exec, sqlDB, err := OpenExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Executor: exec,
		sqlDB:    sqlDB,
	}
	rt.DB = query.NewClient(exec, query.Options{
		Logger:          logger,
		StrictOrFilters: cfg.Query.StrictOrFilters,
	})
	rt.Catalog = catalog.NewStore(rt.DB, catalog.Options{
		Logger:               logger,
		ProfileFetchAttempts: cfg.ProfileFetch.Attempts,
		ProfileFetchBackoff:  cfg.ProfileFetch.Backoff,
	})

	objects, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize object store: %w", err)
	}
	rt.Storage = storage.NewService(objects, cfg.ObjectStore.PublicBaseURL, logger)
	return rt, nil
}

// OpenExecutor returns the executor for cfg.Database.Driver. The *sql.DB is nil
// for drivers that do not hold a pool.
func OpenExecutor(ctx context.Context, cfg config.Config) (sqlexec.Executor, *sql.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := sqlexec.Open(ctx, cfg.Database.DSN, sqlexec.Pool{
			MaxOpen:     cfg.Database.MaxOpenConns,
			MaxIdle:     cfg.Database.MaxIdleConns,
			MaxIdleTime: cfg.Database.ConnMaxIdleTime,
			MaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return sqlexec.NewPostgres(db), db, nil
	case config.DriverNeonHTTP:
		exec, err := sqlexec.NewNeonHTTP(sqlexec.NeonConfig{
			ConnectionString: cfg.Database.DSN,
			Endpoint:         cfg.Database.HTTPEndpoint,
			Timeout:          cfg.Database.HTTPTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return exec, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// NewAuth builds an auth client whose session lives in store. An empty language
// falls back to the configured one.
func (r *Runtime) NewAuth(store localstore.Store, language string) *auth.Client {
	return NewAuthClient(r.Config, r.DB, store, language, r.Logger)
}

func NewAuthClient(cfg config.Config, db *query.Client, store localstore.Store, language string, logger *slog.Logger) *auth.Client {
	if language == "" {
		language = cfg.Auth.Language
	}
	return auth.New(db, auth.Options{
		Store:         store,
		Logger:        logger,
		TokenSecret:   cfg.Auth.TokenSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
		Language:      language,
		AuthUserTable: cfg.Auth.AuthUserTable,
	})
}

func (r *Runtime) Close() error {
	if r.sqlDB == nil {
		return nil
	}
	err := r.sqlDB.Close()
	r.sqlDB = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
