package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ParentSquare/faulty"
)

const redisListSuffix = "list"

// RedisStorage is the shared, networked Storage backend (spec §4.2.2):
// keys are namespaced {prefix}:{circuit}:{attribute} plus a global set
// {prefix}:list tracking known circuit names. Compare-and-set transitions
// use Client.Watch (go-redis's optimistic-locking idiom, grounded in the
// teacher's core.RedisClient connection setup); entry writes are
// pipelined, grounded in core/redis_registry.go's TxPipeline usage.
type RedisStorage struct {
	client     *redis.Client
	prefix     string
	sampleTTL  time.Duration
	circuitTTL time.Duration
	logger     faulty.Logger
}

// RedisStorageOption configures optional RedisStorage settings.
type RedisStorageOption func(*RedisStorage)

// WithRedisSampleTTL overrides the entries-list TTL (default 24h), the
// mechanism spec §4.2.2 uses to let unused samples eventually vanish.
func WithRedisSampleTTL(d time.Duration) RedisStorageOption {
	return func(r *RedisStorage) { r.sampleTTL = d }
}

// WithRedisCircuitTTL overrides the per-circuit key retention bound
// (default one week, spec §4.2.2).
func WithRedisCircuitTTL(d time.Duration) RedisStorageOption {
	return func(r *RedisStorage) { r.circuitTTL = d }
}

// WithRedisLogger attaches a Logger used only to warn about
// against-recommendation client settings.
func WithRedisLogger(l faulty.Logger) RedisStorageOption {
	return func(r *RedisStorage) { r.logger = l }
}

// NewRedisStorage wraps an existing *redis.Client. It warns (does not
// fail) if the client's socket timeouts exceed the recommended 2s ceiling
// spec §4.2.2 advises for this kind of latency-sensitive, fail-fast
// backend.
func NewRedisStorage(client *redis.Client, prefix string, opts ...RedisStorageOption) *RedisStorage {
	r := &RedisStorage{
		client:     client,
		prefix:     prefix,
		sampleTTL:  24 * time.Hour,
		circuitTTL: 7 * 24 * time.Hour,
		logger:     faulty.NoOpLogger{},
	}
	for _, apply := range opts {
		apply(r)
	}
	if copts := client.Options(); copts.ReadTimeout > 2*time.Second || copts.WriteTimeout > 2*time.Second {
		r.logger.Warn("redis storage socket timeout exceeds the recommended 2s ceiling", map[string]interface{}{
			"read_timeout": copts.ReadTimeout, "write_timeout": copts.WriteTimeout,
		})
	}
	return r
}

func (r *RedisStorage) key(circuit, attr string) string {
	return r.prefix + ":" + circuit + ":" + attr
}

func (r *RedisStorage) listKey() string {
	return r.prefix + ":" + redisListSuffix
}

func encodeEntry(e Entry) string {
	flag := "0"
	if e.Success {
		flag = "1"
	}
	return fmt.Sprintf("%f:%s", e.At, flag)
}

func decodeEntry(s string) (Entry, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			at, err := strconv.ParseFloat(s[:i], 64)
			if err != nil {
				return Entry{}, false
			}
			return Entry{At: at, Success: s[i+1:] == "1"}, true
		}
	}
	return Entry{}, false
}

func getOrEmpty(cmd *redis.StringCmd) (string, error) {
	val, err := cmd.Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *RedisStorage) GetOptions(ctx context.Context, c CircuitView) (map[string]interface{}, bool, error) {
	data, err := r.client.Get(ctx, r.key(c.Name, "options")).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (r *RedisStorage) SetOptions(ctx context.Context, c CircuitView, opts map[string]interface{}) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(c.Name, "options"), data, r.circuitTTL)
	pipe.SAdd(ctx, r.listKey(), c.Name)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) Entry(ctx context.Context, c CircuitView, at float64, success bool, prev *Status) (*Status, error) {
	maxSize := 100
	if c.Options != nil && c.Options.MaxSampleSize > 0 {
		maxSize = c.Options.MaxSampleSize
	}
	entriesKey := r.key(c.Name, "entries")

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, entriesKey, encodeEntry(Entry{At: at, Success: success}))
	pipe.LTrim(ctx, entriesKey, 0, int64(maxSize-1))
	pipe.Expire(ctx, entriesKey, r.sampleTTL)
	pipe.SAdd(ctx, r.listKey(), c.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	if prev == nil {
		return nil, nil
	}
	return r.Status(ctx, c)
}

func (r *RedisStorage) Open(ctx context.Context, c CircuitView, openedAt float64) (bool, error) {
	stateKey := r.key(c.Name, "state")
	openedKey := r.key(c.Name, "opened_at")
	var transitioned bool
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, stateKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur == string(faulty.StateOpen) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey, string(faulty.StateOpen), r.circuitTTL)
			pipe.Set(ctx, openedKey, openedAt, r.circuitTTL)
			pipe.SAdd(ctx, r.listKey(), c.Name)
			return nil
		})
		if err == nil {
			transitioned = true
		}
		return err
	}, stateKey)
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

func (r *RedisStorage) Reopen(ctx context.Context, c CircuitView, newOpenedAt, expectedPrevOpenedAt float64) (bool, error) {
	stateKey := r.key(c.Name, "state")
	openedKey := r.key(c.Name, "opened_at")
	var transitioned bool
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		curStr, err := tx.Get(ctx, openedKey).Result()
		hasCur := err == nil
		var cur float64
		if hasCur {
			cur, _ = strconv.ParseFloat(curStr, 64)
		} else if err != redis.Nil {
			return err
		}
		if hasCur && cur != expectedPrevOpenedAt {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey, string(faulty.StateOpen), r.circuitTTL)
			pipe.Set(ctx, openedKey, newOpenedAt, r.circuitTTL)
			return nil
		})
		if err == nil {
			transitioned = true
		}
		return err
	}, openedKey)
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

func (r *RedisStorage) Close(ctx context.Context, c CircuitView) (bool, error) {
	stateKey := r.key(c.Name, "state")
	openedKey := r.key(c.Name, "opened_at")
	entriesKey := r.key(c.Name, "entries")
	var transitioned bool
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, stateKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != string(faulty.StateOpen) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey, string(faulty.StateClosed), r.circuitTTL)
			pipe.Del(ctx, openedKey)
			pipe.Del(ctx, entriesKey)
			return nil
		})
		if err == nil {
			transitioned = true
		}
		return err
	}, stateKey)
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

func (r *RedisStorage) Lock(ctx context.Context, c CircuitView, state faulty.LockState) error {
	return r.client.Set(ctx, r.key(c.Name, "lock"), string(state), r.circuitTTL).Err()
}

func (r *RedisStorage) Unlock(ctx context.Context, c CircuitView) error {
	return r.client.Del(ctx, r.key(c.Name, "lock")).Err()
}

func (r *RedisStorage) Reset(ctx context.Context, c CircuitView) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(c.Name, "state"))
	pipe.Del(ctx, r.key(c.Name, "opened_at"))
	pipe.Del(ctx, r.key(c.Name, "lock"))
	pipe.Del(ctx, r.key(c.Name, "entries"))
	pipe.Del(ctx, r.key(c.Name, "options"))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStorage) Status(ctx context.Context, c CircuitView) (*Status, error) {
	pipe := r.client.Pipeline()
	stateCmd := pipe.Get(ctx, r.key(c.Name, "state"))
	openedCmd := pipe.Get(ctx, r.key(c.Name, "opened_at"))
	lockCmd := pipe.Get(ctx, r.key(c.Name, "lock"))
	entriesCmd := pipe.LRange(ctx, r.key(c.Name, "entries"), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	stateVal, err := getOrEmpty(stateCmd)
	if err != nil {
		return nil, err
	}
	state := faulty.StateClosed
	if stateVal == string(faulty.StateOpen) {
		state = faulty.StateOpen
	}

	openedVal, err := getOrEmpty(openedCmd)
	if err != nil {
		return nil, err
	}
	var openedAt float64
	hasOpenedAt := false
	if openedVal != "" {
		if v, perr := strconv.ParseFloat(openedVal, 64); perr == nil {
			openedAt, hasOpenedAt = v, true
		}
	}

	lockVal, err := getOrEmpty(lockCmd)
	if err != nil {
		return nil, err
	}
	lock := faulty.LockNone
	if lockVal != "" {
		lock = faulty.LockState(lockVal)
	}

	raw, err := entriesCmd.Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, s := range raw {
		if e, ok := decodeEntry(s); ok {
			entries = append(entries, e)
		}
	}

	return computeStatus(c, entries, state, openedAt, hasOpenedAt, lock, nowSeconds(c.Options)), nil
}

func (r *RedisStorage) History(ctx context.Context, c CircuitView) ([]Entry, error) {
	raw, err := r.client.LRange(ctx, r.key(c.Name, "entries"), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // stored newest-first via LPUSH
		if e, ok := decodeEntry(raw[i]); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *RedisStorage) List(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.listKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return names, nil
}

// FaultTolerant reports false: a networked backend can fail, and spec
// §4.2.2 requires that failure to be visible rather than swallowed here.
func (r *RedisStorage) FaultTolerant() bool { return false }

// ReserveProbe implements faulty.ProbeReserver using SETNX semantics (via
// SetNX), the standard go-redis idiom for a short-lived distributed lock.
// Per spec §9, this is the optional CAS-based reservation a compliant
// implementation MAY add so at most one process probes a half-open circuit
// at a time; callers that don't need it can ignore the interface entirely.
func (r *RedisStorage) ReserveProbe(ctx context.Context, c CircuitView, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.key(c.Name, "probe"), token, ttl).Result()
}
