package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"buddy/internal/conversation"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Options struct {
	Backend     string
	Path        string
	DSN         string
	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	// Sealer encrypts file and redis snapshots; SQL backends store rows
	// and ignore it.
	Sealer Sealer
}

// Backend is a snapshot persister that may hold a connection.
type Backend interface {
	conversation.Persister
	Close() error
}

type nopCloser struct{ conversation.Persister }

func (nopCloser) Close() error { return nil }

func Open(ctx context.Context, opts Options) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("history path is empty")
		}
		return nopCloser{&FileStore{Path: opts.Path, Sealer: opts.Sealer}}, nil

	case BackendSQLite, "sqlite3":
		dsn := opts.DSN
		if dsn == "" {
			dsn = opts.Path
		}
		return OpenSQL(ctx, BackendSQLite, dsn, opts.AutoMigrate)

	case BackendPostgres, "pgx":
		return OpenSQL(ctx, BackendPostgres, opts.DSN, opts.AutoMigrate)

	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &redisBackend{RedisStore: NewRedisStore(rdb, opts.RedisKey).WithSealer(opts.Sealer), client: rdb}, nil

	default:
		return nil, fmt.Errorf("unsupported history backend %q", opts.Backend)
	}
}

type redisBackend struct {
	*RedisStore
	client *redis.Client
}

func (r *redisBackend) Close() error { return r.client.Close() }
