package storage

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"

	"github.com/ParentSquare/faulty"
)

// ShardedRedisStorage spreads circuits across several RedisStorage nodes by
// consistent-hashing the circuit name, so adding or removing a node only
// reshuffles the minimal necessary set of circuits instead of every one of
// them (the classic weakness of plain modulo sharding). Each call is
// routed through a FallbackChain ordered rendezvous-primary-first, so a
// single unreachable node degrades to its siblings rather than failing
// outright.
type ShardedRedisStorage struct {
	nodes    []*RedisStorage
	rv       *rendezvous.Rendezvous
	labelIdx map[string]int
}

// NewShardedRedisStorage builds a sharded view over nodes.
func NewShardedRedisStorage(nodes []*RedisStorage) *ShardedRedisStorage {
	labels := make([]string, len(nodes))
	idx := make(map[string]int, len(nodes))
	for i := range nodes {
		label := fmt.Sprintf("node-%d", i)
		labels[i] = label
		idx[label] = i
	}
	return &ShardedRedisStorage{
		nodes:    nodes,
		rv:       rendezvous.New(labels, xxhash.Sum64String),
		labelIdx: idx,
	}
}

// chain returns a FallbackChain trying circuit's rendezvous-selected
// primary node first, then every other node in stable order.
func (s *ShardedRedisStorage) chain(circuit string) faulty.Storage {
	primary := s.labelIdx[s.rv.Lookup(circuit)]
	ordered := make([]faulty.Storage, 0, len(s.nodes))
	ordered = append(ordered, s.nodes[primary])
	for i, n := range s.nodes {
		if i == primary {
			continue
		}
		ordered = append(ordered, n)
	}
	return NewFallbackChain(ordered...)
}

func (s *ShardedRedisStorage) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	return s.chain(c.Name).GetOptions(ctx, c)
}

func (s *ShardedRedisStorage) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	return s.chain(c.Name).SetOptions(ctx, c, opts)
}

func (s *ShardedRedisStorage) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	return s.chain(c.Name).Entry(ctx, c, at, success, prev)
}

func (s *ShardedRedisStorage) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	return s.chain(c.Name).Open(ctx, c, openedAt)
}

func (s *ShardedRedisStorage) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	return s.chain(c.Name).Reopen(ctx, c, newOpenedAt, expectedPrevOpenedAt)
}

func (s *ShardedRedisStorage) Close(ctx context.Context, c CircuitView) (bool, error) {
	return s.chain(c.Name).Close(ctx, c)
}

func (s *ShardedRedisStorage) Lock(ctx context.Context, c CircuitView, state faulty.LockState) error {
	return s.chain(c.Name).Lock(ctx, c, state)
}

func (s *ShardedRedisStorage) Unlock(ctx context.Context, c CircuitView) error {
	return s.chain(c.Name).Unlock(ctx, c)
}

func (s *ShardedRedisStorage) Reset(ctx context.Context, c CircuitView) error {
	return s.chain(c.Name).Reset(ctx, c)
}

func (s *ShardedRedisStorage) Status(ctx context.Context, c CircuitView) (*Status, error) {
	return s.chain(c.Name).Status(ctx, c)
}

func (s *ShardedRedisStorage) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	return s.chain(c.Name).History(ctx, c)
}

// List merges the circuit names known to every node, since no single node
// holds the full picture once circuits are spread across shards.
func (s *ShardedRedisStorage) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var all []string
	for _, n := range s.nodes {
		names, err := n.List(ctx)
		if err != nil {
			continue
		}
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				all = append(all, name)
			}
		}
	}
	return all, nil
}

// FaultTolerant reports false, matching the RedisStorage nodes it shards
// across.
func (s *ShardedRedisStorage) FaultTolerant() bool { return false }
