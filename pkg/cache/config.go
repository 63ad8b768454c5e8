// Package cache implements the worker's on-disk DerivedData, SPM, and
// result caches: toolchain-keyed directory layout, advisory locking for
// shared caches, and age/size-based garbage collection that never touches
// a cache in use by a running job.
package cache

import (
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/logger"
)

var log = logger.New("rch:cache")

// Config is the shared layout/locking configuration every cache family
// reads from. CacheRoot/Namespace determine the directory tree:
// <CacheRoot>/<Namespace>/<family>/<mode>/<key>/...
type Config struct {
	CacheRoot   string
	Namespace   string
	LockTimeout time.Duration
}

// DefaultConfig mirrors the original worker's defaults: a 30s lock
// timeout and a "default" namespace for callers that haven't set one.
func DefaultConfig(cacheRoot string) Config {
	return Config{
		CacheRoot:   cacheRoot,
		Namespace:   "default",
		LockTimeout: 30 * time.Second,
	}
}
