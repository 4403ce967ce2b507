package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	poolMaxAge      = 30 * time.Minute
	poolIdleTimeout = 10 * time.Minute
	healthTimeout   = 3 * time.Second
)

// storePool 进程级存储单例
type storePool struct {
	instance Store
	config   StoreConfig
	lastUsed time.Time
}

var (
	globalPool *storePool
	poolMutex  sync.Mutex

	// openStore 创建存储实例（测试中可替换）
	openStore = NewStore
)

// GetStore 获取存储实例（单例模式 + 健康检查）。
// 配置变化、连接过期或健康检查失败时重新创建。
func GetStore(config StoreConfig) (Store, error) {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	log := logrus.WithField("component", "docstore.pool")

	if globalPool != nil && !shouldRecreate(globalPool, config, log) {
		globalPool.lastUsed = time.Now()
		log.Debug("reusing existing store")
		return globalPool.instance, nil
	}

	log.Info("creating new store")
	if globalPool != nil && globalPool.instance != nil {
		globalPool.instance.Close()
		globalPool = nil
	}

	instance, err := openStore(config)
	if err != nil {
		return nil, err
	}
	globalPool = &storePool{
		instance: instance,
		config:   config,
		lastUsed: time.Now(),
	}
	return instance, nil
}

// shouldRecreate 判断是否需要重新创建存储
func shouldRecreate(pool *storePool, config StoreConfig, log *logrus.Entry) bool {
	if pool.instance == nil {
		return true
	}
	if pool.config != config {
		log.Info("store configuration changed, recreating")
		return true
	}
	if time.Since(pool.lastUsed) > poolMaxAge {
		log.Info("store connection expired, recreating")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := pool.instance.HealthCheck(ctx); err != nil {
		log.WithError(err).Warn("store health check failed, recreating")
		return true
	}
	return false
}

// CleanupIdleStore 清理空闲的存储连接
func CleanupIdleStore() {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil || time.Since(globalPool.lastUsed) <= poolIdleTimeout {
		return
	}
	logrus.WithField("component", "docstore.pool").Info("closing idle store")
	if globalPool.instance != nil {
		globalPool.instance.Close()
	}
	globalPool = nil
}

// ClosePool 关闭并丢弃当前存储
func ClosePool() error {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return nil
	}
	err := globalPool.instance.Close()
	globalPool = nil
	return err
}

// GetPoolStats 获取存储池统计信息
func GetPoolStats() map[string]interface{} {
	poolMutex.Lock()
	defer poolMutex.Unlock()

	if globalPool == nil {
		return map[string]interface{}{
			"status":    "no_connection",
			"last_used": nil,
		}
	}

	return map[string]interface{}{
		"status":    "connected",
		"last_used": globalPool.lastUsed.Format(time.RFC3339),
		"age":       time.Since(globalPool.lastUsed).String(),
		"config": map[string]interface{}{
			"use_local":    globalPool.config.UseLocal,
			"has_postgres": globalPool.config.PostgresDSN != "",
			"has_supabase": globalPool.config.SupabaseURL != "",
			"has_redis":    globalPool.config.RedisAddr != "",
		},
	}
}
