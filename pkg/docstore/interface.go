package docstore

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Store 文档存储能力：按字段排序查询、创建、读取、部分更新、删除以及原子批量写入。
// 所有实现都必须保证 Batch 的全有或全无语义。
type Store interface {
	// Query 返回集合内全部文档，按 sortField 升序排列
	Query(ctx context.Context, collection, sortField string) ([]Document, error)
	// Create 在集合中创建文档，返回存储分配的 ID；创建/更新时间由存储写入
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// CreateAt 在调用方指定的路径创建文档，路径已存在时返回 ErrAlreadyExists
	CreateAt(ctx context.Context, path string, fields Fields) error
	// Get 读取单个文档，不存在时返回 ErrNotFound
	Get(ctx context.Context, path string) (Document, error)
	// Update 合并顶层字段并刷新更新时间，不存在时返回 ErrNotFound
	Update(ctx context.Context, path string, fields Fields) error
	// Delete 删除文档（文档不存在时不报错）
	Delete(ctx context.Context, path string) error
	// Batch 原子执行一组 update/delete 操作
	Batch(ctx context.Context, ops []Op) error

	// 健康检查
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// StoreConfig 存储配置
type StoreConfig struct {
	UseLocal    bool
	DataDir     string
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	RedisAddr   string
	RedisDB     int
	Debug       bool
}

// NewStore 根据环境与配置选择存储实现
func NewStore(config StoreConfig) (Store, error) {
	log := logrus.WithField("component", "docstore")

	if IsVercelEnvironment() {
		log.Info("detected Vercel environment")

		// Vercel 优先使用 Supabase（避免 IPv6），只读文件系统不支持本地存储
		if config.SupabaseURL != "" && config.SupabaseKey != "" {
			log.Info("using Supabase REST API (Vercel optimized)")
			return NewSupabaseStore(config.SupabaseURL, config.SupabaseKey), nil
		}
		if config.PostgresDSN != "" {
			log.Warn("using PostgreSQL in Vercel (may have IPv6 issues)")
			return openPostgres(config.PostgresDSN)
		}
		return nil, fmt.Errorf("no valid store configured for Vercel environment: set SUPABASE_URL+SUPABASE_SERVICE_KEY or POSTGRES_DSN")
	}

	if config.UseLocal {
		log.WithField("data_dir", config.DataDir).Info("using local document store")
		store, err := NewLocalStore(config.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	// 非 Vercel 环境：PostgreSQL > Supabase > Redis
	if config.PostgresDSN != "" {
		log.Info("using PostgreSQL document store")
		return openPostgres(config.PostgresDSN)
	}
	if config.SupabaseURL != "" && config.SupabaseKey != "" {
		log.Info("using Supabase REST API")
		return NewSupabaseStore(config.SupabaseURL, config.SupabaseKey), nil
	}
	if config.RedisAddr != "" {
		log.WithField("addr", config.RedisAddr).Info("using Redis document store")
		store, err := NewRedisStore(config.RedisAddr, config.RedisDB)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("no valid store configuration found: set USE_LOCAL_DB, POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY or REDIS_ADDR")
}

func openPostgres(dsn string) (Store, error) {
	store, err := NewPostgresStore(dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// IsVercelEnvironment 检查是否在 Vercel/Lambda 环境中
func IsVercelEnvironment() bool {
	vercelEnv := os.Getenv("VERCEL_ENV")
	vercelURL := os.Getenv("VERCEL_URL")
	awsLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	return vercelEnv != "" || vercelURL != "" || awsLambda != ""
}
