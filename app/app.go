package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"library_circulation/circulation"
	"library_circulation/db"
	"library_circulation/memstore"
	"library_circulation/notify"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB // memory 模式下为 nil
	RDB     *redis.Client
	Repo    *db.Repo              // 审计/管理视图；memory 模式下为 nil
	Outbox  *notify.RedisNotifier // 未配置 Redis 时为 nil
	Service *circulation.Service
	Log     *slog.Logger
	Config  Config
}

// New wires storage, notifications and the circulation service. It does not
// register routes.
func New(ctx context.Context, cfg Config) (*App, error) {
	log := NewLogger(cfg.LogLevel)
	a := &App{Config: cfg, Log: log}

	var (
		store    circulation.Store
		notifier circulation.Notifier = notify.LogNotifier{Log: log}
		opts     []circulation.Option
	)

	switch cfg.Store {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		store = memstore.New()
	case "postgres", "":
		dbConn, err := db.ConnectDB(cfg.DB)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(dbConn); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.DB = dbConn
		a.Repo = db.NewRepo(dbConn)
		store = db.NewStore(dbConn)
		opts = append(opts, circulation.WithAuditSink(a.Repo))
	default:
		return nil, fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	// --- Redis ---
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.RDB = rdb
		a.Outbox = notify.NewRedisNotifier(rdb, cfg.NotifyQueue, cfg.NotifyTTL)
		notifier = a.Outbox
	}

	opts = append(opts,
		circulation.WithPolicy(cfg.Policy),
		circulation.WithNotifier(notifier),
		circulation.WithLogger(log),
	)
	a.Service = circulation.NewService(store, opts...)

	// --- Gin ---
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	useCORS(r, cfg.WebOrigin)
	a.Router = r
	return a, nil
}

func (a *App) Close() {
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
