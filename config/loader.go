// =============================================================================
// 📦 Nexus 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("NEXUS").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 另外兼容 OPENAI_API_KEY / TAVILY_API_KEY 两个通用环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/nexus/types"
)

// 通用凭证环境变量，不带前缀
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvTavilyAPIKey = "TAVILY_API_KEY"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Nexus 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Search    SearchConfig    `yaml:"search" env:"SEARCH"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Breaker   BreakerConfig   `yaml:"breaker" env:"BREAKER"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Qdrant    QdrantConfig    `yaml:"qdrant" env:"QDRANT"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// API Key 列表，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递
	AllowQueryAPIKey   bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       int      `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 均为空时不启用
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了 JWT 校验密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// LLMConfig 对话模型配置（分类 + 合成共用）
type LLMConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Model    string        `yaml:"model" env:"MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// 分类使用确定性输出
	ClassifierTemperature float64 `yaml:"classifier_temperature" env:"CLASSIFIER_TEMPERATURE"`
	SynthesisTemperature  float64 `yaml:"synthesis_temperature" env:"SYNTHESIS_TEMPERATURE"`
	// 0 表示由服务端决定
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// EmbeddingConfig 向量化服务配置
type EmbeddingConfig struct {
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SearchConfig Web 搜索服务配置
type SearchConfig struct {
	Provider    string        `yaml:"provider" env:"PROVIDER"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	SearchDepth string        `yaml:"search_depth" env:"SEARCH_DEPTH"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RetrievalConfig 各检索策略下的结果数量
type RetrievalConfig struct {
	KBTopK             int           `yaml:"kb_top_k" env:"KB_TOP_K"`
	HybridKBTopK       int           `yaml:"hybrid_kb_top_k" env:"HYBRID_KB_TOP_K"`
	FallbackWebResults int           `yaml:"fallback_web_results" env:"FALLBACK_WEB_RESULTS"`
	WebOnlyResults     int           `yaml:"web_only_results" env:"WEB_ONLY_RESULTS"`
	HybridWebResults   int           `yaml:"hybrid_web_results" env:"HYBRID_WEB_RESULTS"`
	KBTimeout          time.Duration `yaml:"kb_timeout" env:"KB_TIMEOUT"`
}

// CacheConfig 搜索结果缓存配置
type CacheConfig struct {
	// 存储后端: database, redis, mongo, memory
	Backend string        `yaml:"backend" env:"BACKEND"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
	// 启动时自动建表（仅 database 后端）
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	// Redis key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// Mongo 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 物理保留时长，0 表示永不清理过期行
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI      string        `yaml:"uri" env:"URI"`
	Database string        `yaml:"database" env:"DATABASE"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// BreakerConfig 知识库与 Web 检索的熔断配置
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Threshold        int           `yaml:"threshold" env:"THRESHOLD"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 下为文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// QdrantConfig Qdrant 向量存储配置
type QdrantConfig struct {
	Host       string        `yaml:"host" env:"HOST"`
	Port       int           `yaml:"port" env:"PORT"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
	lookupEnv  func(string) string
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "NEXUS",
		validators: make([]func(*Config) error, 0),
		lookupEnv:  os.Getenv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.applyCredentialFallbacks(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// applyCredentialFallbacks 前缀变量未设置时回退到通用凭证变量
func (l *Loader) applyCredentialFallbacks(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = l.lookupEnv(EnvOpenAIAPIKey)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.BaseURL
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = l.lookupEnv(EnvTavilyAPIKey)
	}
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := l.lookupEnv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.LLM.ClassifierTemperature < 0 || c.LLM.ClassifierTemperature > 2 {
		errs = append(errs, "classifier_temperature must be between 0 and 2")
	}
	if c.LLM.SynthesisTemperature < 0 || c.LLM.SynthesisTemperature > 2 {
		errs = append(errs, "synthesis_temperature must be between 0 and 2")
	}

	r := c.Retrieval
	if r.KBTopK <= 0 || r.HybridKBTopK <= 0 {
		errs = append(errs, "kb top_k values must be positive")
	}
	if r.FallbackWebResults <= 0 || r.WebOnlyResults <= 0 || r.HybridWebResults <= 0 {
		errs = append(errs, "web result counts must be positive")
	}

	switch c.Cache.Backend {
	case "database", "redis", "mongo", "memory":
	default:
		errs = append(errs, fmt.Sprintf("unsupported cache backend: %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache ttl must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver: %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RequireCredentials 检查外部服务凭证，缺失时返回 ErrConfiguration
func (c *Config) RequireCredentials() error {
	if c.LLM.APIKey == "" {
		return types.NewConfigurationError(EnvOpenAIAPIKey, "language model API key is not set")
	}
	if c.Embedding.APIKey == "" {
		return types.NewConfigurationError(EnvOpenAIAPIKey, "embedding API key is not set")
	}
	if c.Search.APIKey == "" {
		return types.NewConfigurationError(EnvTavilyAPIKey, "web search API key is not set")
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
