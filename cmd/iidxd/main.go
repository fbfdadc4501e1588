package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rowles/inverted-index/internal/api"
	"github.com/rowles/inverted-index/internal/codec"
	"github.com/rowles/inverted-index/internal/index"
	"github.com/rowles/inverted-index/internal/ingest/consumer"
	"github.com/rowles/inverted-index/internal/store"
	"github.com/rowles/inverted-index/pkg/config"
	"github.com/rowles/inverted-index/pkg/health"
	"github.com/rowles/inverted-index/pkg/kafka"
	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/ratelimit"
	"github.com/rowles/inverted-index/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting inverted index daemon",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"byte_order", cfg.Codec.ByteOrder,
		"kafka", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
	slog.Info("inverted index daemon stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	c, err := codec.ByName(cfg.Codec.ByteOrder)
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, cfg.Store, m)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	ix := index.NewLocked(index.New(s,
		index.WithCodec(c),
		index.WithVerify(cfg.Index.Verify),
		index.WithMetrics(m),
		index.WithAtomicUpdates(true),
	))
	defer func() {
		if err := ix.Close(); err != nil {
			slog.Error("closing index", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck("store", 2*time.Second, health.StatusDown, func(ctx context.Context) error {
		return store.Ping(ctx, s)
	}))
	if _, ok := store.CircuitState(s); ok {
		checker.Register("store-circuit", func(context.Context) health.ComponentHealth {
			state, _ := store.CircuitState(s)
			if state == resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusUp}
			}
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		})
	}

	opts := api.RouterOptions{Metrics: m, Timeout: cfg.Server.RequestTimeout}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		opts.Limiter = ratelimit.New(rl.Requests, rl.Window)
		defer opts.Limiter.Close()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.New(ix), checker, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Metrics.Enabled {
		ms, err := metrics.Listen(fmt.Sprintf(":%d", cfg.Metrics.Port), reg)
		if err != nil {
			return err
		}
		g.Go(ms.Serve)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Postings, consumer.HandleMessage(ix, m))
		slog.Info("consuming postings from kafka",
			"topic", cfg.Kafka.Topics.Postings,
			"group", cfg.Kafka.ConsumerGroup,
		)
		g.Go(func() error {
			return kc.Start(gctx)
		})
	}

	return g.Wait()
}
