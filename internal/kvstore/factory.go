package kvstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hdcongo61-sudo/hdmarket-search/internal/config"
)

// Store drivers accepted by New.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// New creates the store selected by cfg.Driver. The cache layer only sees the Store interface.
func New(cfg config.StoreConfig, redisCfg config.RedisConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		dir := cfg.FileDir
		if cfg.Namespace != "" {
			dir = filepath.Join(dir, cfg.Namespace)
		}
		return NewFileStore(dir)
	case DriverRedis:
		return NewRedisStore(redisCfg, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
