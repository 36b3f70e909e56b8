package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salatiso-escalation/internal/config"
	httpapi "salatiso-escalation/internal/http"
	"salatiso-escalation/internal/logger"
	"salatiso-escalation/internal/notify"
	"salatiso-escalation/internal/repository"
	"salatiso-escalation/internal/service"
	"salatiso-escalation/internal/store"
	"salatiso-escalation/internal/subscriber"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "salatiso-escalation")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 连接 Redis（推送通道 + 指标缓存）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping redis", zap.Error(err))
	}
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	// 4. 连接数据库
	// DB 未就绪时退回内存 repo，保证本地联测可用
	var escalationsRepo repository.EscalationsRepository
	var db *sql.DB
	if d, err := openDatabase(cfg); err == nil {
		db = d
		defer db.Close()
		escalationsRepo = repository.NewPostgresEscalationsRepository(db, log)
		log.Info("Escalation store backed by PostgreSQL",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database),
		)
	} else {
		escalationsRepo = repository.NewMemoryEscalationsRepository()
		log.Warn("Database unavailable, falling back to in-memory store", zap.Error(err))
	}

	// 5. 通知链路（MQTT / Webhook 均为可选）
	var notifiers []service.Notifier
	if cfg.MQTT.Broker != "" {
		mqttNotifier, err := notify.NewMQTTNotifier(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT notifier disabled", zap.Error(err))
		} else {
			defer mqttNotifier.Disconnect()
			notifiers = append(notifiers, mqttNotifier)
			log.Info("MQTT notifier enabled", zap.String("broker", cfg.MQTT.Broker))
		}
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notify.NewWebhookForwarder(&cfg.Webhook, log))
		log.Info("Webhook forwarder enabled", zap.String("url", cfg.Webhook.URL))
	}

	// 6. 服务层
	publisher := subscriber.NewPublisher(redisClient, cfg, log)
	escalationService := service.NewEscalationService(escalationsRepo, publisher, notifiers, log)
	metricsService := service.NewMetricsService(escalationsRepo, log)

	// 7. 指标轮询器（聚合指标走轮询，单记录走推送）
	poller := subscriber.NewMetricsPoller(metricsService, kv, cfg, log)
	pollerErrChan := make(chan error, 1)
	go func() {
		if err := poller.Start(ctx); err != nil {
			pollerErrChan <- err
		}
	}()

	// 8. HTTP 路由和服务
	handler := httpapi.NewEscalationHandler(escalationService, metricsService, log)
	router := httpapi.NewRouter(log)
	router.RegisterEscalationRoutes(handler)
	router.RegisterHealthRoutes()

	server := service.NewServer(cfg.HTTP.Addr, router, log)
	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// 9. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErrChan:
		log.Error("HTTP server error", zap.Error(err))
	case err := <-pollerErrChan:
		log.Error("Metrics poller error", zap.Error(err))
	}

	cancel() // 停止轮询器

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop HTTP server", zap.Error(err))
	}

	log.Info("Escalation service stopped")
}

// openDatabase 建立数据库连接并验证连通性
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
	}
	if cfg.Database.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
