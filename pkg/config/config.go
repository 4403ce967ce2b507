package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"hud-backend/pkg/docstore"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 存储配置
	UseLocalDB  bool
	DataDir     string
	PostgresDSN string
	SupabaseURL string
	SupabaseKey string
	RedisAddr   string
	RedisDB     int

	// JWT配置
	JWTSecret string

	// CORS配置
	AllowedOrigins []string

	// 调试配置
	Debug bool
}

// LoadConfig 加载配置（支持本地和Vercel环境），读取当前目录下的 .env 文件
func LoadConfig() *Config {
	cfg, err := LoadFrom(".")
	if err != nil {
		logrus.WithError(err).Warn("failed to read env file, using environment only")
		cfg, _ = LoadFrom("")
	}
	return cfg
}

// LoadFrom 从 dir 中的 .env 文件和环境变量加载配置；环境变量优先。
// dir 为空时只读取环境变量。
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("USE_LOCAL_DB", true)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("DEBUG", false)
	for _, key := range []string{"POSTGRES_DSN", "SUPABASE_URL", "SUPABASE_SERVICE_KEY", "REDIS_ADDR"} {
		v.SetDefault(key, "")
	}
	v.AutomaticEnv()

	// 根据环境加载对应的 .env 文件
	if dir != "" {
		name := ".env.local"
		if v.GetString("ENVIRONMENT") == "production" {
			name = ".env.production"
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	config := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Port:        v.GetString("PORT"),
		UseLocalDB:  v.GetBool("USE_LOCAL_DB"),
		DataDir:     strings.TrimSpace(v.GetString("DATA_DIR")),
		// 去除环境变量来源中可能带入的空格与换行
		PostgresDSN: strings.TrimSpace(v.GetString("POSTGRES_DSN")),
		SupabaseURL: strings.TrimSpace(v.GetString("SUPABASE_URL")),
		SupabaseKey: strings.TrimSpace(v.GetString("SUPABASE_SERVICE_KEY")),
		RedisAddr:   strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisDB:     v.GetInt("REDIS_DB"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Debug:       v.GetBool("DEBUG"),
	}

	// CORS配置
	allowedOrigins := strings.TrimSpace(v.GetString("ALLOWED_ORIGINS"))
	if allowedOrigins == "*" || allowedOrigins == "" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, origin := range strings.Split(allowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, origin)
			}
		}
	}

	// 环境特定配置
	if config.IsProduction() {
		// 生产环境优先使用外部存储
		if config.hasExternalStore() {
			config.UseLocalDB = false
		} else {
			logrus.Warn("production environment using local document store; configure POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY or REDIS_ADDR")
		}
		// 生产环境关闭调试
		config.Debug = false
	}

	return config, nil
}

// 缓存的配置（每次冷启动初始化一次）
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached 返回进程级缓存的配置。
// 在 Vercel 上每次冷启动只解析一次，热调用直接复用。
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		logrus.Warn("using default JWT secret (not recommended for production)")
	}

	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be non-negative")
	}

	if !c.UseLocalDB && !c.hasExternalStore() {
		return fmt.Errorf("incomplete store configuration: set USE_LOCAL_DB, POSTGRES_DSN, SUPABASE_URL+SUPABASE_SERVICE_KEY or REDIS_ADDR")
	}
	return nil
}

// StoreConfig 转换为文档存储配置
func (c *Config) StoreConfig() docstore.StoreConfig {
	return docstore.StoreConfig{
		UseLocal:    c.UseLocalDB,
		DataDir:     c.DataDir,
		PostgresDSN: c.PostgresDSN,
		SupabaseURL: c.SupabaseURL,
		SupabaseKey: c.SupabaseKey,
		RedisAddr:   c.RedisAddr,
		RedisDB:     c.RedisDB,
		Debug:       c.Debug,
	}
}

// StoreType 返回当前使用的存储类型名称
func (c *Config) StoreType() string {
	switch {
	case c.UseLocalDB:
		return "local"
	case c.PostgresDSN != "":
		return "postgresql"
	case c.SupabaseURL != "" && c.SupabaseKey != "":
		return "supabase"
	case c.RedisAddr != "":
		return "redis"
	}
	return "unknown"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) hasExternalStore() bool {
	return c.PostgresDSN != "" || (c.SupabaseURL != "" && c.SupabaseKey != "") || c.RedisAddr != ""
}
