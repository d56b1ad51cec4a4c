package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type erroringCache struct{}

func (erroringCache) Read(context.Context, string) (Entry, error) {
	return Entry{}, errors.New("unreachable")
}
func (erroringCache) Write(context.Context, string, interface{}, time.Duration) error {
	return errors.New("unreachable")
}
func (erroringCache) FaultTolerant() bool { return false }

func TestCacheFaultTolerantProxyNeverRaises(t *testing.T) {
	ctx := context.Background()
	var reported []string
	proxy := NewFaultTolerantProxy(erroringCache{}, func(event string, payload map[string]interface{}) {
		reported = append(reported, event)
	})

	entry, err := proxy.Read(ctx, "k")
	if err != nil {
		t.Fatalf("expected Read to be swallowed, got %v", err)
	}
	if entry.Found {
		t.Fatal("expected a miss back from a swallowed Read failure")
	}
	if err := proxy.Write(ctx, "k", "v", time.Hour); err != nil {
		t.Fatalf("expected Write to be swallowed, got %v", err)
	}
	if !proxy.FaultTolerant() {
		t.Fatal("expected FaultTolerantProxy to always report fault tolerant")
	}
	if len(reported) != 2 {
		t.Fatalf("expected one cache_failure event per swallowed call, got %d: %v", len(reported), reported)
	}
}
