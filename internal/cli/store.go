package cli

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.uber.org/zap"
	"quiz-intake-service/internal/app"
	"quiz-intake-service/internal/config"
	"quiz-intake-service/internal/infra/memory"
	mongoinfra "quiz-intake-service/internal/infra/mongo"
	pginfra "quiz-intake-service/internal/infra/postgres"
)

type backend int

const (
	backendUnknown backend = iota
	backendMemory
	backendPostgres
	backendMongo
)

func backendOf(url string) backend {
	switch {
	case url == "":
		return backendMemory
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return backendPostgres
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		return backendMongo
	default:
		return backendUnknown
	}
}

// openStore builds the submission repository for the configured URL. An
// unreachable database is logged and tolerated; operations fail until it is up.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (app.SubmissionRepository, func(), error) {
	url := cfg.Store.URL
	selection := config.TTLDuration(cfg.Store.ServerSelectionTimeout, config.DefaultServerSelectionTimeout)
	socket := config.TTLDuration(cfg.Store.SocketTimeout, config.DefaultSocketTimeout)

	switch backendOf(url) {
	case backendMemory:
		logger.Warn("no database configured, submissions are kept in memory")
		return memory.NewSubmissionRepository(), func() {}, nil

	case backendPostgres:
		pool, err := pginfra.NewPool(ctx, url, pginfra.PoolOptions{
			MaxConns:         cfg.Store.PoolSize,
			ConnectTimeout:   selection,
			StatementTimeout: socket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres pool: %w", err)
		}
		if err := pginfra.Ping(ctx, pool, selection); err != nil {
			logger.Warn("database unreachable at startup", zap.Error(err))
		} else {
			logger.Info("connected to postgres", zap.Int("pool_size", cfg.Store.PoolSize))
		}
		return pginfra.NewSubmissionRepository(pool), pool.Close, nil

	case backendMongo:
		client, err := mongoinfra.NewClient(ctx, url, mongoinfra.ClientOptions{
			PoolSize:               cfg.Store.PoolSize,
			ServerSelectionTimeout: selection,
			SocketTimeout:          socket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mongo client: %w", err)
		}
		repo := mongoinfra.NewSubmissionRepository(client.Database(mongoDatabase(url, cfg.Store.Database)))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("database unreachable at startup", zap.Error(err))
		} else {
			logger.Info("connected to mongodb", zap.Int("pool_size", cfg.Store.PoolSize))
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		return repo, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database url scheme: %q", schemeOf(url))
	}
}

// mongoDatabase prefers the database named in the URI path.
func mongoDatabase(url, fallback string) string {
	cs, err := connstring.ParseAndValidate(url)
	if err == nil && cs.Database != "" {
		return cs.Database
	}
	return fallback
}

func schemeOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i]
	}
	return url
}
