package storage

import (
	"context"
	"fmt"

	"audio-advisor/pkg/config"
)

// Open returns the chat store selected by cfg.Driver. The caller owns the
// returned store and must Close it.
func Open(ctx context.Context, cfg config.StoreConfig) (ChatStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "", "badger":
		return NewDiskStore(cfg.Path)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "mongo":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
