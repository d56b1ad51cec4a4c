package cache

import (
	"context"
	"time"

	"github.com/ParentSquare/faulty"
)

// Null is the default cache fallback: every read misses, every write is
// discarded (spec §4.3).
type Null struct{}

func (Null) Read(context.Context, string) (Entry, error) { return Entry{}, nil }

func (Null) Write(context.Context, string, interface{}, time.Duration) error { return nil }

func (Null) FaultTolerant() bool { return true }

var _ faulty.Cache = Null{}
