package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opendreams/opendreams/internal/config"
	"github.com/opendreams/opendreams/internal/database"
	"github.com/opendreams/opendreams/internal/identity"
	"github.com/opendreams/opendreams/internal/storage"
)

// Storage bundles the persistence pieces shared by the session store and the
// identity client: the selected backend, the snapshot store on top of it,
// and the token jar next to the snapshot.
type Storage struct {
	Backend   storage.Backend
	Snapshots *storage.SnapshotStore
	Jar       *storage.TokenJar

	closers []func() error
}

// OpenStorage connects the backend named by STORAGE_BACKEND. The database
// backend runs its migrations before returning.
func OpenStorage(cfg *config.Config) (*Storage, error) {
	var (
		backend storage.Backend
		closers []func() error
	)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		backend = storage.NewMemoryBackend()

	case config.BackendFile:
		fb, err := storage.NewFileBackend(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening file storage: %w", err)
		}
		backend = fb

	case config.BackendRedis:
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		backend = storage.NewRedisBackend(rdb)
		closers = append(closers, rdb.Close)

	case config.BackendDatabase:
		db, err := database.NewSQL(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.RunMigrations(db, cfg.Database.Driver); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		dialect := storage.DialectMySQL
		if cfg.Database.Driver == config.DriverPostgres {
			dialect = storage.DialectPostgres
		}
		backend = storage.NewSQLBackend(db, dialect)
		closers = append(closers, db.Close)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	s, err := NewStorage(cfg, backend)
	if err != nil {
		backend.Close()
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	s.closers = append(s.closers, closers...)

	slog.Info("storage ready",
		slog.String("backend", cfg.Storage.Backend),
		slog.String("key", s.Snapshots.Key()),
		slog.Bool("sealed", cfg.Storage.SecretKey != ""),
	)
	return s, nil
}

// NewStorage layers the snapshot store and token jar over backend, sealed
// when STORAGE_SECRET_KEY is set.
func NewStorage(cfg *config.Config, backend storage.Backend) (*Storage, error) {
	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		Backend:   backend,
		Snapshots: storage.NewSnapshotStore(backend, cfg.Storage.Key, storage.WithSealer(sealer)),
		Jar:       storage.NewTokenJar(backend, cfg.Storage.Key, sealer),
		closers:   []func() error{backend.Close},
	}, nil
}

func newSealer(cfg *config.Config) (*storage.Sealer, error) {
	if cfg.Storage.SecretKey == "" {
		return nil, nil
	}
	sealer, err := storage.NewSealer(cfg.Storage.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("creating sealer: %w", err)
	}
	return sealer, nil
}

// Close releases the backend and any connection behind it.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewGateway creates the identity client for cfg, presenting the token held
// in jar. redirector may be nil when social sign-in is not offered.
func NewGateway(cfg *config.Config, jar identity.TokenJar, redirector identity.Redirector) *identity.Client {
	opts := []identity.ClientOption{
		identity.WithTimeout(cfg.Identity.Timeout),
		identity.WithTokenJar(jar),
	}
	if redirector != nil {
		opts = append(opts, identity.WithRedirector(redirector))
	}
	return identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.BasePath, opts...)
}
