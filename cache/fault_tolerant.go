package cache

import (
	"context"
	"time"

	"github.com/ParentSquare/faulty"
)

// FaultTolerantProxy wraps any Cache and guarantees it never raises: every
// error is caught, reported via notify, and replaced with a safe miss
// (spec §4.3's "same semantics as for storage").
type FaultTolerantProxy struct {
	inner  faulty.Cache
	notify func(event string, payload map[string]interface{})
}

// NewFaultTolerantProxy wraps inner. notify may be nil.
func NewFaultTolerantProxy(inner faulty.Cache, notify func(event string, payload map[string]interface{})) *FaultTolerantProxy {
	return &FaultTolerantProxy{inner: inner, notify: notify}
}

func (p *FaultTolerantProxy) Read(ctx context.Context, key string) (Entry, error) {
	entry, err := p.inner.Read(ctx, key)
	if err != nil {
		if p.notify != nil {
			p.notify(faulty.EventCacheFailure, map[string]interface{}{"key": key, "error": err})
		}
		return Entry{}, nil
	}
	return entry, nil
}

func (p *FaultTolerantProxy) Write(ctx context.Context, key string, value interface{}, expiresIn time.Duration) error {
	if err := p.inner.Write(ctx, key, value, expiresIn); err != nil {
		if p.notify != nil {
			p.notify(faulty.EventCacheFailure, map[string]interface{}{"key": key, "error": err})
		}
		return nil
	}
	return nil
}

// FaultTolerant always reports true.
func (p *FaultTolerantProxy) FaultTolerant() bool { return true }
