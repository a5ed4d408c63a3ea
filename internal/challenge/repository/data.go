package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ctfoj/internal/common/cache"
	"ctfoj/internal/common/db"
)

const (
	defaultDataTTL     = 10 * time.Minute
	defaultDataMissTTL = time.Minute
	dataKeyPrefix      = "challenge:data:"
)

// DataRepository stores opaque JSON values per challenge and key.
// Reads go through the cache when one is configured.
type DataRepository struct {
	db     db.Database
	cache  cache.BasicOps
	policy cache.Policy
}

func NewDataRepository(database db.Database, cacheClient cache.BasicOps) *DataRepository {
	return NewDataRepositoryWithPolicy(database, cacheClient, cache.Policy{})
}

func NewDataRepositoryWithPolicy(database db.Database, cacheClient cache.BasicOps, policy cache.Policy) *DataRepository {
	if policy.TTL <= 0 {
		policy.TTL = defaultDataTTL
	}
	if policy.MissTTL <= 0 {
		policy.MissTTL = defaultDataMissTTL
	}
	return &DataRepository{db: database, cache: cacheClient, policy: policy}
}

// Get returns the raw JSON stored under (cid, key), or nil when absent.
func (r *DataRepository) Get(ctx context.Context, cid, key string) (json.RawMessage, error) {
	if r.cache == nil {
		return r.load(ctx, cid, key)
	}
	value, found, err := cache.ReadThrough(ctx, r.cache, dataKey(cid, key), r.policy, func(ctx context.Context) (string, bool, error) {
		raw, err := r.load(ctx, cid, key)
		return string(raw), raw != nil, err
	})
	if err != nil || !found {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Set replaces the value stored under (cid, key) and invalidates the cache.
func (r *DataRepository) Set(ctx context.Context, cid, key string, value json.RawMessage) error {
	write := func(ctx context.Context) error {
		query := "INSERT INTO data (cid, `key`, value) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)"
		_, err := r.db.Exec(ctx, query, cid, key, []byte(value))
		return err
	}
	if r.cache == nil {
		return write(ctx)
	}
	return cache.WriteAround(ctx, r.cache, dataKey(cid, key), write)
}

// GetData decodes the stored value into out.
func (r *DataRepository) GetData(ctx context.Context, cid, key string, out interface{}) (bool, error) {
	raw, err := r.Get(ctx, cid, key)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode data %s/%s failed: %w", cid, key, err)
	}
	return true, nil
}

// SetData encodes value as JSON and stores it.
func (r *DataRepository) SetData(ctx context.Context, cid, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode data %s/%s failed: %w", cid, key, err)
	}
	return r.Set(ctx, cid, key, raw)
}

func (r *DataRepository) load(ctx context.Context, cid, key string) (json.RawMessage, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, "SELECT value FROM data WHERE cid = ? AND `key` = ?", cid, key).Scan(&raw)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func dataKey(cid, key string) string {
	return dataKeyPrefix + cid + ":" + key
}
