package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/hdcongo61-sudo/hdmarket-search/pkg/config"
)

type Config struct {
	Server        ServerConfig
	Search        SearchConfig
	Elasticsearch ElasticsearchConfig
	Store         StoreConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Orchestrator  OrchestratorConfig
	WebSocket     WebSocketConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// SearchConfig selects and configures the remote search backend.
type SearchConfig struct {
	Backend string        `mapstructure:"backend"` // "http" | "elasticsearch"
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"` // 0 keeps the transport default
}

type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	IndexProducts   string   `mapstructure:"index_products"`
	IndexShops      string   `mapstructure:"index_shops"`
	IndexCategories string   `mapstructure:"index_categories"`
	Limit           int      `mapstructure:"limit"`
}

// StoreConfig selects the key-value store backing the result cache.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"` // "memory" | "file" | "redis"
	Namespace string `mapstructure:"namespace"`
	FileDir   string `mapstructure:"file_dir"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	MaxAge   time.Duration `mapstructure:"max_age"`
	Capacity int           `mapstructure:"capacity"`
}

type OrchestratorConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	PageSize       int           `mapstructure:"page_size"`
	MaxSuggestions int           `mapstructure:"max_suggestions"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultCacheConfig mirrors the defaults applied by Load.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Prefix:   "search_cache",
		TTL:      5 * time.Minute,
		MaxAge:   24 * time.Hour,
		Capacity: 50,
	}
}

// DefaultOrchestratorConfig mirrors the defaults applied by Load.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Debounce:       300 * time.Millisecond,
		PageSize:       10,
		MaxSuggestions: 5,
	}
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8094)
	v.SetDefault("search.backend", "http")
	v.SetDefault("search.base_url", "http://localhost:5000/api")
	v.SetDefault("search.timeout", "0s")
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.index_products", "products")
	v.SetDefault("elasticsearch.index_shops", "shops")
	v.SetDefault("elasticsearch.index_categories", "categories")
	v.SetDefault("elasticsearch.limit", 50)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.namespace", "hdmarket")
	v.SetDefault("store.file_dir", "./data/kv")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.prefix", "search_cache")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_age", "24h")
	v.SetDefault("cache.capacity", 50)
	v.SetDefault("orchestrator.debounce", "300ms")
	v.SetDefault("orchestrator.page_size", 10)
	v.SetDefault("orchestrator.max_suggestions", 5)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("search.backend", "SEARCH_BACKEND")
	v.BindEnv("search.base_url", "SEARCH_API_URL")
	v.BindEnv("elasticsearch.addresses", "ES_ADDRESSES")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.file_dir", "STORE_FILE_DIR")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Elasticsearch.Addresses = pkgconfig.Strings(v, "elasticsearch.addresses")

	// Parse durations
	cfg.Search.Timeout = parseDuration(v, "search.timeout", 0)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 5*time.Minute)
	cfg.Cache.MaxAge = parseDuration(v, "cache.max_age", 24*time.Hour)
	cfg.Orchestrator.Debounce = parseDuration(v, "orchestrator.debounce", 300*time.Millisecond)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
