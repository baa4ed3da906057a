// Package redischeckpoint implements checkpoint.Sink on top of
// github.com/redis/go-redis/v9, grounded on the teacher's registry service's
// rdb.Set/Get/Expire usage (registry/service.go, registry/result_stream.go).
// It favors low-latency small writes, suited to frequent checkpoints during
// an active run.
package redischeckpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roma-engine/roma/checkpoint"
)

const defaultKeyPrefix = "roma:checkpoint:"

// Sink stores one RunRecord per key, keyed by run ID.
type Sink struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// Options configures Sink.
type Options struct {
	// KeyPrefix prefixes every stored key; defaults to "roma:checkpoint:".
	KeyPrefix string
	// TTL expires a checkpoint this long after its most recent Write (reads
	// do not extend it); zero means no expiry (the host is responsible for
	// cleanup on run completion).
	TTL time.Duration
}

// New builds a Sink backed by rdb.
func New(rdb *redis.Client, opts Options) (*Sink, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Sink{rdb: rdb, keyPrefix: prefix, ttl: opts.TTL}, nil
}

// Write implements checkpoint.Sink.
func (s *Sink) Write(ctx context.Context, rr checkpoint.RunRecord) error {
	if rr.RunID == "" {
		return errors.New("run id is required")
	}
	data, err := json.Marshal(rr)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(rr.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set checkpoint %q: %w", rr.RunID, err)
	}
	return nil
}

// Read implements checkpoint.Sink.
func (s *Sink) Read(ctx context.Context, runID string) (checkpoint.RunRecord, bool, error) {
	data, err := s.rdb.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkpoint.RunRecord{}, false, nil
	}
	if err != nil {
		return checkpoint.RunRecord{}, false, fmt.Errorf("redis get checkpoint %q: %w", runID, err)
	}
	var rr checkpoint.RunRecord
	if err := json.Unmarshal(data, &rr); err != nil {
		return checkpoint.RunRecord{}, false, fmt.Errorf("unmarshal run record %q: %w", runID, err)
	}
	return rr, true, nil
}

func (s *Sink) key(runID string) string {
	return s.keyPrefix + runID
}
