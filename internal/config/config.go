package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	AI        AIConfig
	Queue     QueueConfig     `mapstructure:"queue"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Resource  ResourceConfig  `mapstructure:"resource"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate   bool   `mapstructure:"-"`
	MigrateOnly    bool   `mapstructure:"-"`
	SyncEmbeddings bool   `mapstructure:"-"`
	Mode           string `mapstructure:"-"` // all / api / worker
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig Provider 为 openai（兼容 Groq 等 OpenAI 协议服务）或 gemini
type AIConfig struct {
	Provider       string        `mapstructure:"provider"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig Broker 为 redis 或 rabbitmq，任务状态始终保存在 Redis 中
type QueueConfig struct {
	Name         string        `mapstructure:"name"`
	Broker       string        `mapstructure:"broker"`
	RabbitMQURL  string        `mapstructure:"rabbitmq_url"`
	Concurrency  int           `mapstructure:"concurrency"`
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	Retention    time.Duration `mapstructure:"retention"`
}

type YouTubeConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VectorConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Collection    string `mapstructure:"collection"`
	Dimension     int    `mapstructure:"dimension"`
	SyncOnStartup bool   `mapstructure:"sync_on_startup"`
}

type ResourceConfig struct {
	ExternalThreshold int `mapstructure:"external_threshold"`
	SkillLimit        int `mapstructure:"skill_limit"`
	SemanticLimit     int `mapstructure:"semantic_limit"`
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.charset", "utf8mb4")
	viper.SetDefault("database.parsetime", true)

	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("ai.model", "llama-3.3-70b-versatile")
	viper.SetDefault("ai.timeout", 90*time.Second)

	viper.SetDefault("queue.name", "roadmap-generation")
	viper.SetDefault("queue.broker", "redis")
	viper.SetDefault("queue.concurrency", 2)
	viper.SetDefault("queue.stall_timeout", 2*time.Minute)
	viper.SetDefault("queue.retention", 24*time.Hour)

	viper.SetDefault("youtube.timeout", 10*time.Second)

	viper.SetDefault("vector.collection", "resources")
	viper.SetDefault("vector.dimension", 384)

	viper.SetDefault("resource.external_threshold", 5)
	viper.SetDefault("resource.skill_limit", 10)
	viper.SetDefault("resource.semantic_limit", 15)

	viper.SetDefault("rate_limit.max_requests", 600)
	viper.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CAREERMAP")
	viper.AutomaticEnv()
	setDefaults()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")
	viper.BindEnv("server.port", "PORT")

	// AI
	viper.BindEnv("ai.provider", "AI_PROVIDER")
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")
	viper.BindEnv("ai.embedding_model", "AI_EMBEDDING_MODEL")

	// Queue
	viper.BindEnv("queue.broker", "QUEUE_BROKER")
	viper.BindEnv("queue.rabbitmq_url", "RABBITMQ_URL")
	viper.BindEnv("queue.concurrency", "WORKER_CONCURRENCY")

	// YouTube
	viper.BindEnv("youtube.api_key", "YOUTUBE_API_KEY")

	// Vector
	viper.BindEnv("vector.enabled", "VECTOR_ENABLED")
	viper.BindEnv("vector.url", "QDRANT_URL")
	viper.BindEnv("vector.collection", "QDRANT_COLLECTION")
	viper.BindEnv("vector.dimension", "QDRANT_VECTOR_DIM")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置并补全不合理的取值
func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}

	switch c.Queue.Broker {
	case "redis", "":
		c.Queue.Broker = "redis"
	case "rabbitmq":
		if c.Queue.RabbitMQURL == "" {
			return fmt.Errorf("queue.rabbitmq_url is required when queue.broker=rabbitmq")
		}
	default:
		return fmt.Errorf("unsupported queue.broker %q", c.Queue.Broker)
	}
	if c.Queue.Concurrency < 1 {
		c.Queue.Concurrency = 1
	}

	switch c.AI.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported ai.provider %q", c.AI.Provider)
	}

	if c.Vector.Enabled {
		if c.Vector.URL == "" {
			return fmt.Errorf("vector.url is required when vector.enabled=true")
		}
		if c.Vector.Dimension <= 0 {
			return fmt.Errorf("vector.dimension must be a positive integer")
		}
	}

	if c.Resource.ExternalThreshold <= 0 {
		c.Resource.ExternalThreshold = 5
	}
	if c.Resource.SkillLimit <= 0 {
		c.Resource.SkillLimit = 10
	}
	if c.Resource.SemanticLimit <= 0 {
		c.Resource.SemanticLimit = 15
	}
	return nil
}
