package cache

import (
	"context"
	"fmt"

	"github.com/mvrik/lantern/internal/logging"
)

// GetOrCreate returns the cached value for key, or runs create to compute it.
// create additionally reports whether its result may be stored: results
// produced under degraded conditions are returned to the caller but never
// written to the cache.
func GetOrCreate[T any](ctx context.Context, cache Cache[T], key string, create func() (T, bool, error)) (T, error) {
	// Clean up the cache if we claim an entry, but don't set it
	// This allows other callers to try again
	claimed := false
	set := false
	defer func() {
		if claimed && !set {
			cache.delete(key)
		}
	}()

	for {
		result := cache.getOrClaim(key)

		if result.claimed {
			claimed = true

			logging.FromContext(ctx).InfoContext(ctx, "Resolving presence", "cache", "miss")

			data, cacheable, err := create()
			if err != nil {
				var empty T
				return empty, fmt.Errorf("failed to create cache entry: %w", err)
			}

			if cacheable {
				cache.set(key, data)
				set = true
			}

			return data, nil
		}

		if result.valid {
			// Cache hit
			logging.FromContext(ctx).InfoContext(ctx, "Resolving presence", "cache", "hit")
			return result.data, nil
		}

		logging.FromContext(ctx).InfoContext(ctx, "Waiting for cache")
		cache.wait()
	}
}
