// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sistema POS Contributors

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/sistemapos/posadmin/internal/auth"
	"github.com/sistemapos/posadmin/internal/auth/postgres"
	"github.com/sistemapos/posadmin/internal/auth/redisstore"
	"github.com/sistemapos/posadmin/internal/config"
	"github.com/sistemapos/posadmin/internal/store"
	"github.com/sistemapos/posadmin/pkg/errutil"
)

// userStore is what the user subcommands need from the users table.
type userStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error)
	Create(ctx context.Context, u postgres.NewUser) (int64, error)
	UpdatePassword(ctx context.Context, id int64, salt, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// sessionPurger removes expired sessions.
type sessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Stores bundles the repositories opened for an admin command.
type Stores struct {
	Users    userStore
	Sessions sessionPurger
	Close    func()
}

// migrator is the part of *store.Migrator the migrate subcommands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// Deps contains injectable dependencies for the admin commands.
// Nil fields use their default implementations.
type Deps struct {
	// OpenStores connects to the configured database and session store.
	// Default: store.Open plus the postgres (or redis) repositories
	OpenStores func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error)

	// NewMigrator opens the schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string) (migrator, error)

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string
}

func (d Deps) withDefaults() Deps {
	if d.OpenStores == nil {
		d.OpenStores = openStores
	}
	if d.NewMigrator == nil {
		d.NewMigrator = func(databaseURL string) (migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	return d
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	opts := store.DefaultConnectOptions()
	opts.Logger = logger
	pool, err := store.Open(ctx, cfg.Database.URL, opts)
	if err != nil {
		return nil, err
	}
	users := postgres.NewUserRepository(pool)

	sessions, err := openSessionStore(ctx, cfg, pool, users, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{
		Users:    users,
		Sessions: sessions.store,
		Close: func() {
			sessions.close()
			pool.Close()
		},
	}, nil
}

// sessionBackend is an opened session store with its health check and
// cleanup.
type sessionBackend struct {
	store auth.SessionStore
	ping  func(ctx context.Context) error
	close func()
}

// openSessionStore opens the backend named by session.store. The postgres
// backend makes sure its table exists; the redis backend must answer a ping.
func openSessionStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, users *postgres.UserRepository, logger *slog.Logger) (*sessionBackend, error) {
	if cfg.Session.Store != config.SessionStoreRedis {
		repo := postgres.NewSessionRepository(pool, postgres.WithSessionLogger(logger))
		if err := repo.EnsureSchema(ctx); err != nil {
			// Missing tables surface on the first login as a store error.
			errutil.LogErrorContext(ctx, logger, "ensure sessions schema failed", err)
		}
		return &sessionBackend{store: repo, ping: pool.Ping, close: func() {}}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "redis.url").Wrap(err)
	}
	client := redis.NewClient(redisOpts)
	sessions := redisstore.New(client, users)
	if err := sessions.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("using redis session store", "addr", redisOpts.Addr, "db", redisOpts.DB)
	return &sessionBackend{
		store: sessions,
		ping: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return sessions.Ping(ctx)
		},
		close: func() { _ = client.Close() },
	}, nil
}
