// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/nexus/types"
)

// mapEnv 用固定 map 替代进程环境变量
func mapEnv(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func newTestLoader(vars map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = mapEnv(vars)
	return l
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

llm:
  model: "gpt-4o"
  synthesis_temperature: 0.5

retrieval:
  kb_top_k: 6

cache:
  backend: redis
  ttl: 12h

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := newTestLoader(nil).
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.LLM.SynthesisTemperature)
	assert.Equal(t, 6, cfg.Retrieval.KBTopK)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 3, cfg.Retrieval.HybridKBTopK)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"NEXUS_SERVER_HTTP_PORT":           "7777",
		"NEXUS_SERVER_API_KEYS":            "k1, k2",
		"NEXUS_LLM_MODEL":                  "gpt-4o",
		"NEXUS_LLM_SYNTHESIS_TEMPERATURE":  "0.9",
		"NEXUS_RETRIEVAL_WEB_ONLY_RESULTS": "8",
		"NEXUS_CACHE_TTL":                  "90m",
		"NEXUS_CACHE_AUTO_MIGRATE":         "false",
		"NEXUS_LOG_LEVEL":                  "warn",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.9, cfg.LLM.SynthesisTemperature)
	assert.Equal(t, 8, cfg.Retrieval.WebOnlyResults)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.AutoMigrate)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_ProcessEnvironment(t *testing.T) {
	t.Setenv("NEXUS_QDRANT_COLLECTION", "docs")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "docs", cfg.Qdrant.Collection)
}

func TestLoader_CredentialFallbacks(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		EnvOpenAIAPIKey: "sk-plain",
		EnvTavilyAPIKey: "tvly-plain",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-plain", cfg.LLM.APIKey)
	assert.Equal(t, "sk-plain", cfg.Embedding.APIKey)
	assert.Equal(t, "tvly-plain", cfg.Search.APIKey)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestLoader_PrefixedCredentialWins(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"NEXUS_LLM_API_KEY":       "sk-prefixed",
		"NEXUS_EMBEDDING_API_KEY": "sk-embed",
		EnvOpenAIAPIKey:           "sk-plain",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-prefixed", cfg.LLM.APIKey)
	assert.Equal(t, "sk-embed", cfg.Embedding.APIKey)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
llm:
  model: "yaml-model"
qdrant:
  collection: "yaml-collection"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := newTestLoader(map[string]string{
		"NEXUS_SERVER_HTTP_PORT": "9999",
		"NEXUS_LLM_MODEL":        "env-model",
	}).WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "yaml-collection", cfg.Qdrant.Collection)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	cfg, err := newTestLoader(map[string]string{
		"MYAPP_SERVER_HTTP_PORT": "6666",
		"NEXUS_SERVER_HTTP_PORT": "1111",
	}).WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := newTestLoader(map[string]string{
		"NEXUS_CACHE_TTL": "one day",
	}).Load()
	assert.Error(t, err)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	_, err := newTestLoader(map[string]string{"NEXUS_SERVER_HTTP_PORT": "80"}).
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := newTestLoader(nil).
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := newTestLoader(nil).WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: true},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: true},
		{name: "invalid synthesis temperature", modify: func(c *Config) { c.LLM.SynthesisTemperature = 3.0 }, wantErr: true},
		{name: "invalid classifier temperature", modify: func(c *Config) { c.LLM.ClassifierTemperature = -0.5 }, wantErr: true},
		{name: "zero kb top_k", modify: func(c *Config) { c.Retrieval.KBTopK = 0 }, wantErr: true},
		{name: "zero web_only results", modify: func(c *Config) { c.Retrieval.WebOnlyResults = 0 }, wantErr: true},
		{name: "unknown cache backend", modify: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "zero cache ttl", modify: func(c *Config) { c.Cache.TTL = 0 }, wantErr: true},
		{name: "unknown database driver", modify: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "mongo backend", modify: func(c *Config) { c.Cache.Backend = "mongo" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_RequireCredentials(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		missing string
	}{
		{name: "missing openai key", modify: func(c *Config) { c.LLM.APIKey = "" }, missing: EnvOpenAIAPIKey},
		{name: "missing embedding key", modify: func(c *Config) { c.Embedding.APIKey = "" }, missing: EnvOpenAIAPIKey},
		{name: "missing tavily key", modify: func(c *Config) { c.Search.APIKey = "" }, missing: EnvTavilyAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM.APIKey = "sk"
			cfg.Embedding.APIKey = "sk"
			cfg.Search.APIKey = "tvly"
			tt.modify(cfg)

			err := cfg.RequireCredentials()
			require.Error(t, err)
			assert.True(t, types.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestJWTConfig_Enabled(t *testing.T) {
	assert.False(t, JWTConfig{}.Enabled())
	assert.True(t, JWTConfig{Secret: "s"}.Enabled())
	assert.True(t, JWTConfig{PublicKey: "pem"}.Enabled())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "data/cache.db"},
			expected: "data/cache.db",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8080\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}
