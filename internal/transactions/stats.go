package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Aidin1998/txconsole/internal/transactions/merger"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/metrics"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StatsSummary aggregates every applicable ledger for a filter.
type StatsSummary struct {
	Total              int64                   `json:"total"`
	Flagged            int64                   `json:"flagged"`
	ByStatus           map[models.Status]int64 `json:"byStatus"`
	Volumes            []source.Volume         `json:"volumes"`
	Sources            []source.Stats          `json:"sources"`
	Partial            bool                    `json:"partial,omitempty"`
	UnavailableSources []string                `json:"unavailableSources,omitempty"`
}

// StatsCache keeps complete summaries for a short while.
type StatsCache interface {
	Get(ctx context.Context, key string) (*StatsSummary, bool)
	Set(ctx context.Context, key string, summary *StatsSummary)
}

// StatsFilter keeps only the fields the stats endpoint honours.
func StatsFilter(f source.Filter) source.Filter {
	return source.Filter{Type: f.Type, DateFrom: f.DateFrom, DateTo: f.DateTo}
}

func statsKey(f source.Filter) string {
	stamp := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return fmt.Sprintf("%d", t.UTC().UnixNano())
	}
	return fmt.Sprintf("txconsole:stats:%s:%s:%s", f.Type, stamp(f.DateFrom), stamp(f.DateTo))
}

func (s *Service) Stats(ctx context.Context, filter source.Filter) (*StatsSummary, error) {
	filter = StatsFilter(filter)
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	key := statsKey(filter)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	var adapters []source.Adapter
	for _, ad := range s.registry.All() {
		if ad.Applies(filter) {
			adapters = append(adapters, ad)
		}
	}

	results := make([]*source.Stats, len(adapters))
	failures := make([]error, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, ad := range adapters {
		i, ad := i, ad
		g.Go(func() error {
			callCtx := gctx
			if s.opts.AdapterTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, s.opts.AdapterTimeout)
				defer cancel()
			}
			start := time.Now()
			st, err := ad.Stats(callCtx, filter)
			metrics.ObserveAdapterCall(string(ad.Kind()), "stats", time.Since(start), err)
			if err != nil {
				failures[i] = err
				if s.opts.DegradeMode != merger.ModePartial {
					return &merger.SourceError{Kind: ad.Kind(), Op: "stats", Err: err}
				}
				return nil
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Unavailable.Explain("request cancelled").Wrap(ctxErr)
		}
		var srcErr *merger.SourceError
		if errors.As(err, &srcErr) {
			s.logger.Warn("stats source unavailable", zap.String("source", string(srcErr.Kind)), zap.Error(srcErr.Err))
			return nil, errors.Unavailable.Explain("source %s is unavailable", srcErr.Kind.APIType()).Wrap(err)
		}
		return nil, err
	}

	summary := &StatsSummary{ByStatus: make(map[models.Status]int64), Volumes: []source.Volume{}, Sources: []source.Stats{}}
	for _, st := range models.AllStatuses {
		summary.ByStatus[st] = 0
	}
	volumes := map[string]*source.Volume{}
	for i, st := range results {
		if st == nil {
			if failures[i] != nil {
				s.logger.Warn("stats source unavailable", zap.String("source", string(adapters[i].Kind())), zap.Error(failures[i]))
				summary.UnavailableSources = append(summary.UnavailableSources, adapters[i].Kind().APIType())
			}
			continue
		}
		summary.Sources = append(summary.Sources, *st)
		summary.Total += st.Total
		summary.Flagged += st.Flagged
		for status, n := range st.ByStatus {
			summary.ByStatus[status] += n
		}
		for _, v := range st.Volumes {
			acc, ok := volumes[v.Asset]
			if !ok {
				acc = &source.Volume{Asset: v.Asset}
				volumes[v.Asset] = acc
			}
			acc.Amount = acc.Amount.Add(v.Amount)
			acc.Count += v.Count
		}
	}
	if len(adapters) > 0 && len(summary.UnavailableSources) == len(adapters) {
		return nil, errors.Unavailable.Explain("no source is available")
	}
	for _, v := range volumes {
		summary.Volumes = append(summary.Volumes, *v)
	}
	sort.Slice(summary.Volumes, func(i, j int) bool { return summary.Volumes[i].Asset < summary.Volumes[j].Asset })
	summary.Partial = len(summary.UnavailableSources) > 0

	if s.cache != nil && !summary.Partial {
		s.cache.Set(ctx, key, summary)
	}
	return summary, nil
}

// RedisStatsCache stores summaries as JSON strings with a TTL.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisStatsCache{client: client, ttl: ttl, logger: logger.Named("stats_cache")}
}

func (c *RedisStatsCache) Get(ctx context.Context, key string) (*StatsSummary, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
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

func (c *RedisStatsCache) Set(ctx context.Context, key string, summary *StatsSummary) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
}
