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

	"github.com/gin-gonic/gin"
	"github.com/lvdashuaibi/onevote/config"
	"github.com/lvdashuaibi/onevote/internal/api/graph"
	"github.com/lvdashuaibi/onevote/internal/api/rest"
	"github.com/lvdashuaibi/onevote/internal/audit"
	"github.com/lvdashuaibi/onevote/internal/auth"
	intkafka "github.com/lvdashuaibi/onevote/internal/kafka"
	"github.com/lvdashuaibi/onevote/internal/lock"
	"github.com/lvdashuaibi/onevote/internal/policy"
	"github.com/lvdashuaibi/onevote/internal/repository"
	"github.com/lvdashuaibi/onevote/internal/service"
)

const (
	ServiceStartLockName = "onevote:service:start:lock"
	LockAcquireTimeout   = 30 * time.Second
	shutdownTimeout      = 10 * time.Second
)

var (
	configPath = flag.String("config", "config/config.yaml", "配置文件路径")
	debug      = flag.Bool("debug", false, "输出debug级别日志")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("加载配置失败", "event", "config_load_failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("服务异常退出", "event", "server_exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 分布式锁
	locker, err := lock.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化分布式锁失败: %w", err)
	}
	defer locker.Close()
	logger.Info("分布式锁初始化成功", "event", "lock_ready", "backend", cfg.Lock.Backend)

	// 持久化存储
	store, err := openStore(ctx, cfg, locker, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("存储初始化成功", "event", "store_ready", "backend", cfg.Store.Backend)

	// Redis缓存，未启用时服务使用空缓存
	var (
		cache     service.CandidateCache
		recorder  audit.VoteRecorder
		publisher service.VotePublisher
	)
	if cfg.Redis.Enabled {
		redisRepo, err := repository.NewRedisRepository(cfg.Redis)
		if err != nil {
			return fmt.Errorf("初始化Redis仓库失败: %w", err)
		}
		defer redisRepo.Close()
		cache = redisRepo
		recorder = redisRepo
		logger.Info("Redis缓存初始化成功", "event", "redis_ready")
	}

	// Kafka投票事件
	if cfg.Kafka.Enabled {
		producer, err := intkafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("初始化Kafka生产者失败: %w", err)
		}
		defer producer.Close()
		publisher = producer
		logger.Info("Kafka生产者初始化成功", "event", "kafka_producer_ready", "topic", cfg.Kafka.Topic)
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	pol := policy.New(store, logger)

	accounts := service.NewAccountService(store, hasher, tokens, logger)
	candidates := service.NewCandidateService(store, pol, cache, logger)
	votes := service.NewVoteService(store, cache, publisher, logger)

	// 票数核对任务，多实例时由锁选出执行者
	if cfg.Audit.Enabled {
		auditor := audit.NewAuditor(store, recorder, locker, cfg.Audit.Interval, cfg.Lock.Timeout, logger)
		auditor.Start()
		defer auditor.Stop()

		if cfg.Kafka.Enabled {
			consumer, err := intkafka.NewConsumer(cfg.Kafka, logger)
			if err != nil {
				return fmt.Errorf("初始化Kafka消费者失败: %w", err)
			}
			consumer.StartConsuming(auditor.ObserveVote)
			defer consumer.Stop()
		}
		logger.Info("票数核对任务已启动", "event", "auditor_started", "interval", cfg.Audit.Interval.String())
	}

	gin.SetMode(cfg.Server.Mode)
	graphqlServer := graph.NewGraphQLServer(accounts, candidates, votes, tokens)
	restServer := rest.NewServer(accounts, candidates, votes, tokens, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           restServer.Router(cfg.GraphQL.Path, graphqlServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("OneVote 服务已启动", "event", "server_started", "addr", srv.Addr, "graphql", cfg.GraphQL.Path)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP服务异常: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务...", "event", "server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("关闭HTTP服务失败: %w", err)
	}
	return nil
}

// openStore 按配置选择存储后端。MySQL建表在服务启动锁内执行，避免多实例同时执行DDL。
func openStore(ctx context.Context, cfg *config.Config, locker lock.Lock, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return repository.NewMemoryRepository(), nil
	case "mysql":
	default:
		return nil, fmt.Errorf("未知的存储后端: %q", cfg.Store.Backend)
	}

	mysqlRepo, err := repository.NewMySQLRepository(cfg.MySQL, cfg.Store.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL仓库失败: %w", err)
	}

	if err := acquireStartLock(ctx, locker, logger); err != nil {
		mysqlRepo.Close()
		return nil, err
	}
	defer func() {
		if err := locker.ReleaseLock(ServiceStartLockName); err != nil {
			logger.Warn("释放服务启动锁失败", "event", "start_lock_release_failed", "error", err)
		}
	}()

	if err := mysqlRepo.Migrate(ctx); err != nil {
		mysqlRepo.Close()
		return nil, fmt.Errorf("初始化数据表失败: %w", err)
	}
	return mysqlRepo, nil
}

func acquireStartLock(ctx context.Context, locker lock.Lock, logger *slog.Logger) error {
	deadline := time.Now().Add(LockAcquireTimeout)
	for {
		acquired, err := locker.AcquireLock(ServiceStartLockName, LockAcquireTimeout)
		if err != nil {
			return fmt.Errorf("获取服务启动锁失败: %w", err)
		}
		if acquired {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("等待服务启动锁超时")
		}

		logger.Info("其他实例正在初始化数据表，等待中", "event", "start_lock_waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
