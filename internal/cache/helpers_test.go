package cache

import "github.com/immxrtalbeast/auction_live/internal/config"

func configFor(driver string) config.CacheConfig {
	return config.CacheConfig{Driver: driver}
}
