// Package cache provides concrete Cache backends and composable proxies
// implementing the contract faulty.Cache defines.
package cache

import "github.com/ParentSquare/faulty"

// Cache is the optional read/write cache contract. Defined in the root
// package to avoid an import cycle with Circuit; re-exported here.
type Cache = faulty.Cache

// Entry is a cached value plus its hard expiry.
type Entry = faulty.CacheEntry
