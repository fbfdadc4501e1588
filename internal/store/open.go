package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rowles/inverted-index/pkg/config"
	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/postgres"
	pkgredis "github.com/rowles/inverted-index/pkg/redis"
	"github.com/rowles/inverted-index/pkg/resilience"
)

const dialTimeout = 5 * time.Second

// Open builds the backend named by cfg.Backend. Remote backends are dialled
// with retries and, when cfg.Breaker.Enabled, put behind a circuit breaker.
// A non-nil m instruments the result.
func Open(ctx context.Context, cfg config.StoreConfig, m *metrics.Metrics) (Store, error) {
	log := logger.WithComponent("store").With("backend", cfg.Backend)

	var s Store
	remote := false
	switch cfg.Backend {
	case config.BackendMemory, "":
		s = NewMemory()
	case config.BackendBolt:
		b, err := OpenBolt(cfg.Bolt.Path, cfg.Bolt.Bucket, cfg.Bolt.Timeout)
		if err != nil {
			return nil, err
		}
		log.Info("bolt store opened", "path", cfg.Bolt.Path, "bucket", cfg.Bolt.Bucket)
		s = b
	case config.BackendRedis:
		var client *pkgredis.Client
		err := resilience.Retry(ctx, "redis-connect", retryConfig(cfg.Connect, nil), func(ctx context.Context) error {
			var err error
			attemptCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			client, err = pkgredis.NewClient(attemptCtx, cfg.Redis)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info("redis store connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.KeyPrefix)
		s = NewRedis(client, cfg.Redis.KeyPrefix)
		remote = true
	case config.BackendPostgres:
		var client *postgres.Client
		err := resilience.Retry(ctx, "postgres-connect", retryConfig(cfg.Connect, postgres.Transient), func(ctx context.Context) error {
			var err error
			attemptCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()
			client, err = postgres.New(attemptCtx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Postgres.Host, cfg.Postgres.Port, err)
		}
		p, err := NewPostgres(ctx, client, cfg.Postgres.Table)
		if err != nil {
			client.Close()
			return nil, err
		}
		log.Info("postgres store connected",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Database,
			"table", cfg.Postgres.Table,
		)
		s = p
		remote = true
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if remote && cfg.Breaker.Enabled {
		cbCfg := resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Breaker.ResetTimeout,
		}
		if m != nil {
			cbCfg.OnStateChange = func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		}
		s = WithBreaker(s, "store-"+cfg.Backend, cbCfg)
	}
	if m != nil {
		s = Instrument(s, m, cfg.Backend)
	}
	return s, nil
}

func retryConfig(c config.RetryConfig, retryable func(error) bool) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: c.MaxAttempts,
		Backoff: resilience.Backoff{
			Initial: c.InitialDelay,
			Max:     c.MaxDelay,
		},
		Retryable: retryable,
	}
}
