package respcache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config selects and parameterizes a cache backend.
type Config struct {
	// Backend is one of "memory", "redis" or "sqlite". Empty means
	// memory.
	Backend string `json:"backend"`

	RedisAddr   string `json:"redis_addr"`
	RedisPrefix string `json:"redis_prefix"`

	SqlitePath string `json:"sqlite_path"`
}

// Open builds the store the config asks for.
func Open(config Config) (Store, error) {
	switch config.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		return NewRedis(client, config.RedisPrefix), nil
	case "sqlite":
		return NewSqlite(config.SqlitePath)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", config.Backend)
	}
}
