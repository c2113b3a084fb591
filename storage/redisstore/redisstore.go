// Package redisstore implements core.RecordStore and core.FileStore on top of
// go-redis. Records live under <prefix>rec:<kind>:<id>, a sorted set
// <prefix>idx:<kind> keeps creation order and payloads live under
// <prefix>file:<path>.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentstack/core"
)

// Options configures a Store.
type Options struct {
	// Prefix namespaces every key, e.g. "agentstack:".
	Prefix string
	// TTL expires records and files; 0 keeps them forever.
	TTL time.Duration
}

// Store is a redis backed record and file store.
type Store struct {
	rdb  redis.UniversalClient
	opts Options
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: "agentstack:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{rdb: rdb, opts: opts}
}

// Open parses a redis:// URL and connects.
func Open(ctx context.Context, url string, optFns ...func(o *Options)) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(rdb, optFns...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) recordKey(kind core.EntityKind, id string) string {
	return fmt.Sprintf("%srec:%s:%s", s.opts.Prefix, kind, id)
}

func (s *Store) indexKey(kind core.EntityKind) string {
	return fmt.Sprintf("%sidx:%s", s.opts.Prefix, kind)
}

func (s *Store) fileKey(path string) string {
	return s.opts.Prefix + "file:" + path
}

// Put stores a record and indexes its id on first write.
func (s *Store) Put(ctx context.Context, kind core.EntityKind, id string, rec core.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(kind, id), data, s.opts.TTL)
		pipe.ZAddNX(ctx, s.indexKey(kind), redis.Z{Score: float64(time.Now().UnixNano()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}

	return nil
}

// Get returns a record or an error wrapping core.ErrNotFound.
func (s *Store) Get(ctx context.Context, kind core.EntityKind, id string) (core.Record, error) {
	data, err := s.rdb.Get(ctx, s.recordKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Record{}, fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
		}
		return core.Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}

	var rec core.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.Record{}, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}

	return rec, nil
}

// Delete removes a record and its index entry.
func (s *Store) Delete(ctx context.Context, kind core.EntityKind, id string) error {
	var del *redis.IntCmd

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(kind, id))
		pipe.ZRem(ctx, s.indexKey(kind), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}

	if del.Val() == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrNotFound, kind, id)
	}

	return nil
}

// List returns ids of kind in creation order.
func (s *Store) List(ctx context.Context, kind core.EntityKind) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(kind), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	return ids, nil
}

// SaveFile stores a payload under <ownerID>/<random id><ext>.
func (s *Store) SaveFile(ctx context.Context, ownerID string, data []byte, ext string) (string, error) {
	path := fmt.Sprintf("%s/%s%s", ownerID, core.NewID(), ext)

	if err := s.rdb.Set(ctx, s.fileKey(path), data, s.opts.TTL).Err(); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	return path, nil
}

// LoadFile returns a payload or an error wrapping core.ErrNotFound.
func (s *Store) LoadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.fileKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: file %s", core.ErrNotFound, path)
		}
		return nil, fmt.Errorf("load file %s: %w", path, err)
	}

	return data, nil
}

// DeleteFile removes a payload.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	n, err := s.rdb.Del(ctx, s.fileKey(path)).Result()
	if err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: file %s", core.ErrNotFound, path)
	}

	return nil
}
