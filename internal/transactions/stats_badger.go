package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// BadgerStatsCache keeps summaries in an embedded badger store, for
// single-node deployments without Redis. An empty path keeps it in memory.
type BadgerStatsCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *zap.Logger
}

func NewBadgerStatsCache(path string, ttl time.Duration, logger *zap.Logger) (*BadgerStatsCache, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats cache: %w", err)
	}
	return &BadgerStatsCache{db: db, ttl: ttl, logger: logger.Named("stats_cache")}, nil
}

func (c *BadgerStatsCache) Get(_ context.Context, key string) (*StatsSummary, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var summary StatsSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		c.logger.Warn("stats cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &summary, true
}

func (c *BadgerStatsCache) Set(_ context.Context, key string, summary *StatsSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), raw).WithTTL(c.ttl))
	})
	if err != nil {
		c.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *BadgerStatsCache) Close() error {
	return c.db.Close()
}
