package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	eventsredis "github.com/ogurasousui/codex-onboarding/internal/adapters/events/redis"
	"github.com/ogurasousui/codex-onboarding/internal/adapters/grpc/employee"
	"github.com/ogurasousui/codex-onboarding/internal/adapters/repository/memory"
	"github.com/ogurasousui/codex-onboarding/internal/adapters/repository/postgres"
	repositoryredis "github.com/ogurasousui/codex-onboarding/internal/adapters/repository/redis"
	"github.com/ogurasousui/codex-onboarding/internal/core/onboarding"
	"github.com/ogurasousui/codex-onboarding/internal/platform/config"
	pg "github.com/ogurasousui/codex-onboarding/internal/platform/db/postgres"
	"github.com/ogurasousui/codex-onboarding/internal/platform/logger"
	"github.com/ogurasousui/codex-onboarding/internal/platform/metrics"
	platformredis "github.com/ogurasousui/codex-onboarding/internal/platform/redis"
	"github.com/ogurasousui/codex-onboarding/internal/platform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	recorder := metrics.New()

	var (
		state       onboarding.StateStore
		redisClient *goredis.Client
	)

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		dbPool, err := pg.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("initialize database pool: %w", err)
		}
		defer dbPool.Close()

		collector := metrics.NewCollector(recorder, func() metrics.PoolStats {
			s := dbPool.Stat()
			return metrics.PoolStats{Acquired: s.AcquiredConns(), Idle: s.IdleConns(), Max: s.MaxConns()}
		}, 15*time.Second)
		collector.Start(ctx)
		defer collector.Stop()

		state = postgres.NewCaseStateStore(dbPool)
	case config.StoreBackendRedis:
		client, err := platformredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("initialize redis client: %w", err)
		}
		redisClient = client
		state = repositoryredis.NewCaseStateStore(client, cfg.Redis.KeyPrefix)
	case config.StoreBackendMemory:
		log.Warn("using in-memory case store; data is lost on restart")
		state = memory.NewCaseStateStore()
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}

	var publisher onboarding.Publisher
	if cfg.Redis.Addr != "" {
		if redisClient == nil {
			client, err := platformredis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return fmt.Errorf("initialize redis client: %w", err)
			}
			redisClient = client
		}
		publisher = eventsredis.NewPublisher(redisClient, map[string]string{
			onboarding.TopicCaseCompleted: cfg.Redis.Channel,
		}, log)
	} else {
		log.Warn("redis.addr is not set; case completed events are not published")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	directoryConn, err := employee.Dial(cfg.EmployeeDirectory.Addr)
	if err != nil {
		return err
	}
	defer directoryConn.Close()

	policy := retryPolicy(cfg.Onboarding.Retry)
	publishPolicy := policy
	publishPolicy.MaxAttempts = cfg.Onboarding.PublishAttempts

	coreLog := log.With("component", "onboarding")
	svc := onboarding.NewService(
		onboarding.NewCaseStore(state, policy, recorder, coreLog),
		employee.NewClient(directoryConn, cfg.EmployeeDirectory.Timeout),
		onboarding.NewNotifier(publisher, publishPolicy, recorder, coreLog),
		taskTemplates(cfg.Onboarding.Templates),
		onboarding.WithMetrics(recorder),
		onboarding.WithLogger(coreLog),
	)

	if cfg.Metrics.ListenAddr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.ListenAddr, recorder.Handler(), log)
		defer stopMetrics()
	}

	grpcServer := server.New(cfg.Server.ListenAddr, svc,
		grpc.UnaryInterceptor(server.UnaryInterceptor(recorder, log.With("component", "grpc"))),
	)

	log.Info("gRPC server listening",
		"addr", cfg.Server.ListenAddr,
		"store", cfg.Store.Backend,
		"templates", len(cfg.Onboarding.Templates),
	)
	return grpcServer.Run(ctx)
}

func retryPolicy(cfg config.RetryConfig) onboarding.RetryPolicy {
	policy := onboarding.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.BaseDelay = cfg.BaseDelay
	policy.MaxDelay = cfg.MaxDelay
	return policy
}

func taskTemplates(cfgs []config.TemplateConfig) []onboarding.TaskTemplate {
	templates := make([]onboarding.TaskTemplate, 0, len(cfgs))
	for _, c := range cfgs {
		templates = append(templates, onboarding.TaskTemplate{
			Description:       c.Description,
			TaskType:          c.TaskType,
			Order:             c.Order,
			DueDateOffsetDays: c.DueDateOffsetDays,
		})
	}
	return templates
}

func serveMetrics(addr string, h http.Handler, log *logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
