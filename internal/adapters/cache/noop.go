package cache

import (
	"context"
	"time"

	"github.com/taskmaster/pulse/internal/ports"
)

// Noop is used when Redis is disabled. Every read misses.
type Noop struct{}

var _ ports.CacheRepository = Noop{}

func (Noop) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (Noop) Get(context.Context, string, interface{}) error { return ports.ErrCacheMiss }

func (Noop) Delete(context.Context, string) error { return nil }

func (Noop) DeletePattern(context.Context, string) error { return nil }

func (Noop) Exists(context.Context, string) (bool, error) { return false, nil }

func (Noop) Ping(context.Context) error { return nil }
