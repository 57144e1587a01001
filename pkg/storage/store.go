package storage

import (
	"context"
	"fmt"

	"github.com/cuemby/conduit/pkg/types"
)

// Store is the key-value cache the reconciler reads at start-up and writes
// after every successful refresh. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the stored value, or nil and no error when key is absent
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

const keyNamespace = "conduit"

// LastRefreshKey holds the RFC 3339 time of the last successful cycle
const LastRefreshKey = keyNamespace + "/meta/last_refresh"

// KindKey returns the namespaced key under which a kind's canonical
// collection is stored
func KindKey(kind types.Kind) string {
	return keyNamespace + "/cache/" + string(kind)
}

// Backend names a Store implementation
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Options selects and configures a backend
type Options struct {
	Backend Backend

	// bolt
	DataDir string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open creates the Store selected by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendBolt, "":
		s, err := NewBoltStore(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", opts.Backend)
	}
}
