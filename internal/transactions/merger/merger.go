// Package merger assembles one globally ordered page out of several
// independently paginated ledger sources.
//
// Each applicable source gets a lazy cursor that pulls small batches in the
// requested order. The heads of all cursors sit in an ordered frontier; the
// merger pops the global minimum, keeps it when its rank falls inside
// [skip, skip+limit), and refills from the cursor that was drained. No source
// is asked for more than skip+limit rows.
package merger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/metrics"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/tidwall/btree"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DegradeMode decides what a failing source does to a read.
type DegradeMode string

const (
	// ModeStrict fails the whole request when any source fails.
	ModeStrict DegradeMode = "strict"
	// ModePartial drops failing sources from both page and total and marks
	// the result as partial.
	ModePartial DegradeMode = "partial"
)

type Config struct {
	// BatchSize is the cursor batch; zero means the page limit.
	BatchSize      int
	AdapterTimeout time.Duration
	Mode           DegradeMode
}

type Request struct {
	Filter source.Filter
	Sort   source.Sort
	Skip   int
	Limit  int
}

type Result struct {
	Records     []models.UnifiedTransaction
	Total       int64
	Partial     bool
	Unavailable []models.SourceKind
}

// SourceError reports which source failed and during which call.
type SourceError struct {
	Kind models.SourceKind
	Op   string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

type Merger struct {
	readers []source.Reader
	cfg     Config
	logger  *zap.Logger
	tracer  trace.Tracer
}

func New(readers []source.Reader, cfg Config, logger *zap.Logger) *Merger {
	if cfg.Mode == "" {
		cfg.Mode = ModeStrict
	}
	return &Merger{
		readers: readers,
		cfg:     cfg,
		logger:  logger.Named("merger"),
		tracer:  otel.Tracer("txconsole/merger"),
	}
}

// Merge returns the requested slice of the merged, filtered union.
func (m *Merger) Merge(ctx context.Context, req Request) (*Result, error) {
	if req.Limit <= 0 {
		return nil, errors.Invalid.Explain("limit must be positive")
	}
	if req.Skip < 0 {
		return nil, errors.Invalid.Explain("skip must not be negative")
	}
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	if req.Sort.Key == "" {
		req.Sort = source.DefaultSort
	}

	start := time.Now()
	defer func() { metrics.MergeDuration.Observe(time.Since(start).Seconds()) }()

	excluded := map[models.SourceKind]bool{}
	for {
		res, err := m.run(ctx, req, excluded)
		if err == nil {
			for kind := range excluded {
				res.Unavailable = append(res.Unavailable, kind)
			}
			sort.Slice(res.Unavailable, func(i, j int) bool {
				return res.Unavailable[i].Rank() < res.Unavailable[j].Rank()
			})
			res.Partial = len(res.Unavailable) > 0
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Unavailable.Explain("request cancelled").Wrap(ctxErr)
		}

		var srcErr *SourceError
		if !errors.As(err, &srcErr) {
			return nil, err
		}
		metrics.DegradedSources.WithLabelValues(string(srcErr.Kind), string(m.cfg.Mode)).Inc()
		m.logger.Warn("source unavailable",
			zap.String("source", string(srcErr.Kind)),
			zap.String("op", srcErr.Op),
			zap.String("mode", string(m.cfg.Mode)),
			zap.Error(srcErr.Err))

		if m.cfg.Mode != ModePartial {
			return nil, errors.Unavailable.Explain("source %s is unavailable", srcErr.Kind.APIType()).Wrap(err)
		}
		excluded[srcErr.Kind] = true
		if !m.anyLeft(req.Filter, excluded) {
			return nil, errors.Unavailable.Explain("no source is available").Wrap(err)
		}
	}
}

func (m *Merger) anyLeft(f source.Filter, excluded map[models.SourceKind]bool) bool {
	for _, r := range m.readers {
		if r.Applies(f) && !excluded[r.Kind()] {
			return true
		}
	}
	return false
}

func (m *Merger) active(f source.Filter, excluded map[models.SourceKind]bool) []source.Reader {
	out := make([]source.Reader, 0, len(m.readers))
	for _, r := range m.readers {
		if r.Applies(f) && !excluded[r.Kind()] {
			out = append(out, r)
		}
	}
	return out
}

// call runs one adapter call under the per-call timeout, traced and measured.
func (m *Merger) call(ctx context.Context, kind models.SourceKind, op string, fn func(context.Context) error) error {
	if m.cfg.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.AdapterTimeout)
		defer cancel()
	}
	ctx, span := m.tracer.Start(ctx, "source."+op, trace.WithAttributes(attribute.String("source", string(kind))))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveAdapterCall(string(kind), op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return &SourceError{Kind: kind, Op: op, Err: err}
	}
	return nil
}

func (m *Merger) run(ctx context.Context, req Request, excluded map[models.SourceKind]bool) (*Result, error) {
	readers := m.active(req.Filter, excluded)
	need := req.Skip + req.Limit
	batch := m.cfg.BatchSize
	if batch <= 0 {
		batch = req.Limit
	}

	counts := make([]int64, len(readers))
	cursors := make([]*cursor, len(readers))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range readers {
		i, r := i, r
		cursors[i] = &cursor{reader: r, filter: req.Filter, sort: req.Sort, batch: batch, need: need}
		g.Go(func() error {
			return m.call(gctx, r.Kind(), "count", func(c context.Context) error {
				n, err := r.Count(c, req.Filter)
				counts[i] = n
				return err
			})
		})
		g.Go(func() error {
			return cursors[i].fill(gctx, m)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Records: make([]models.UnifiedTransaction, 0, req.Limit)}
	for _, n := range counts {
		res.Total += n
	}

	frontier := btree.NewBTreeGOptions(func(a, b head) bool {
		return Before(a.rec, b.rec, req.Sort)
	}, btree.Options{NoLocks: true})
	for i, c := range cursors {
		if rec, ok := c.peek(); ok {
			frontier.Set(head{rec: rec, cursor: i})
		}
	}

	for popped := 0; popped < need; popped++ {
		h, ok := frontier.PopMin()
		if !ok {
			break
		}
		if popped >= req.Skip {
			res.Records = append(res.Records, *h.rec)
		}

		c := cursors[h.cursor]
		c.advance()
		if c.drained() && !c.exhausted && popped+1 < need {
			if err := c.fill(ctx, m); err != nil {
				return nil, err
			}
		}
		if rec, ok := c.peek(); ok {
			frontier.Set(head{rec: rec, cursor: h.cursor})
		}
	}

	return res, nil
}

type head struct {
	rec    *models.UnifiedTransaction
	cursor int
}

// cursor walks one source in batches. Batches are requested in order.
type cursor struct {
	reader source.Reader
	filter source.Filter
	sort   source.Sort
	batch  int
	need   int

	buf       []models.UnifiedTransaction
	pos       int
	fetched   int
	exhausted bool
}

func (c *cursor) fill(ctx context.Context, m *Merger) error {
	size := c.batch
	if rest := c.need - c.fetched; rest < size {
		size = rest
	}
	if size <= 0 {
		c.exhausted = true
		c.buf, c.pos = nil, 0
		return nil
	}

	var recs []models.UnifiedTransaction
	err := m.call(ctx, c.reader.Kind(), "page", func(cc context.Context) error {
		var err error
		recs, err = c.reader.Page(cc, source.PageRequest{
			Filter: c.filter,
			Sort:   c.sort,
			Offset: c.fetched,
			Limit:  size,
		})
		return err
	})
	if err != nil {
		return err
	}

	c.buf, c.pos = recs, 0
	c.fetched += len(recs)
	if len(recs) < size || c.fetched >= c.need {
		c.exhausted = true
	}
	return nil
}

func (c *cursor) peek() (*models.UnifiedTransaction, bool) {
	if c.pos >= len(c.buf) {
		return nil, false
	}
	return &c.buf[c.pos], true
}

func (c *cursor) advance() { c.pos++ }

func (c *cursor) drained() bool { return c.pos >= len(c.buf) }
