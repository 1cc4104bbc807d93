// Package transactions exposes the unified transaction console: one merged
// listing over every ledger, moderation of single records and batches,
// statistics and exports.
package transactions

import (
	"context"
	"time"

	"github.com/Aidin1998/txconsole/common/dbutil"
	"github.com/Aidin1998/txconsole/internal/audit"
	"github.com/Aidin1998/txconsole/internal/transactions/export"
	"github.com/Aidin1998/txconsole/internal/transactions/merger"
	"github.com/Aidin1998/txconsole/internal/transactions/moderation"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserDirectory resolves the end user owning a record
type UserDirectory interface {
	User(ctx context.Context, id uint64) (*models.User, error)
}

// GormUserDirectory reads the users table
type GormUserDirectory struct {
	db *gorm.DB
}

func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) User(ctx context.Context, id uint64) (*models.User, error) {
	return dbutil.FindOne[models.User](d.db.WithContext(ctx).Where("id = ?", id))
}

// AuditLog is the read side of the audit trail
type AuditLog interface {
	History(ctx context.Context, sourceKind string, recordID uint64) ([]audit.Event, error)
	VerifyIntegrity(ctx context.Context, fromSeq, toSeq int64) (*audit.IntegrityReport, error)
}

type Options struct {
	DefaultPageLimit int
	MaxPageLimit     int
	MaxBulkItems     int
	AdapterTimeout   time.Duration
	DegradeMode      merger.DegradeMode
}

func (o Options) withDefaults() Options {
	if o.MaxPageLimit <= 0 {
		o.MaxPageLimit = 100
	}
	if o.DefaultPageLimit <= 0 {
		o.DefaultPageLimit = 20
	}
	if o.DefaultPageLimit > o.MaxPageLimit {
		o.DefaultPageLimit = o.MaxPageLimit
	}
	if o.MaxBulkItems <= 0 {
		o.MaxBulkItems = 500
	}
	if o.DegradeMode == "" {
		o.DegradeMode = merger.ModeStrict
	}
	return o
}

// Deps wires a Service. Users, Audit and Cache are optional.
type Deps struct {
	Registry *source.Registry
	Merger   *merger.Merger
	Machine  *moderation.Machine
	Bulk     *moderation.Executor
	Exporter *export.Exporter
	Users    UserDirectory
	Audit    AuditLog
	Cache    StatsCache
}

type Service struct {
	registry *source.Registry
	merger   *merger.Merger
	machine  *moderation.Machine
	bulk     *moderation.Executor
	exporter *export.Exporter
	users    UserDirectory
	audit    AuditLog
	cache    StatsCache
	opts     Options
	logger   *zap.Logger
}

func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	return &Service{
		registry: deps.Registry,
		merger:   deps.Merger,
		machine:  deps.Machine,
		bulk:     deps.Bulk,
		exporter: deps.Exporter,
		users:    deps.Users,
		audit:    deps.Audit,
		cache:    deps.Cache,
		opts:     opts.withDefaults(),
		logger:   logger.Named("transactions"),
	}
}

func (s *Service) Options() Options { return s.opts }

type ListQuery struct {
	Filter source.Filter
	Sort   source.Sort
	Page   int
	Limit  int
}

type ListResult struct {
	Records     []models.UnifiedTransaction
	Total       int64
	Page        int
	Limit       int
	Unavailable []string
}

// List returns one page of the merged listing. Page is one based; Limit is
// capped at the configured maximum.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultPageLimit
	}
	if q.Limit > s.opts.MaxPageLimit {
		q.Limit = s.opts.MaxPageLimit
	}

	res, err := s.merger.Merge(ctx, merger.Request{
		Filter: q.Filter,
		Sort:   q.Sort,
		Skip:   (q.Page - 1) * q.Limit,
		Limit:  q.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := &ListResult{Records: res.Records, Total: res.Total, Page: q.Page, Limit: q.Limit}
	if out.Records == nil {
		out.Records = []models.UnifiedTransaction{}
	}
	for _, k := range res.Unavailable {
		out.Unavailable = append(out.Unavailable, k.APIType())
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, target moderation.Target) (*models.UnifiedTransaction, error) {
	return s.machine.Get(ctx, target)
}

// User resolves the end user behind a record.
func (s *Service) User(ctx context.Context, target moderation.Target) (*models.User, error) {
	if s.users == nil {
		return nil, errors.Internal.Explain("user directory is not configured")
	}
	rec, err := s.machine.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	user, err := s.users.User(ctx, rec.UserID)
	if errors.Is(err, errors.NotFound) {
		return nil, errors.NotFound.Explain("user %d of %s %d not found", rec.UserID, rec.Type, rec.ID)
	}
	return user, err
}

// History returns the audit trail of a record, oldest first.
func (s *Service) History(ctx context.Context, target moderation.Target) ([]audit.Event, error) {
	if s.audit == nil {
		return nil, errors.Internal.Explain("audit log is not configured")
	}
	rec, err := s.machine.Get(ctx, target)
	if err != nil {
		return nil, err
	}
	events, err := s.audit.History(ctx, string(rec.SourceKind), rec.ID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func (s *Service) VerifyAudit(ctx context.Context, fromSeq, toSeq int64) (*audit.IntegrityReport, error) {
	if s.audit == nil {
		return nil, errors.Internal.Explain("audit log is not configured")
	}
	if fromSeq < 0 || toSeq < 0 || (toSeq > 0 && toSeq < fromSeq) {
		return nil, errors.Invalid.Explain("invalid sequence range")
	}
	return s.audit.VerifyIntegrity(ctx, fromSeq, toSeq)
}

func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, cmd moderation.StatusCommand) (*models.UnifiedTransaction, error) {
	return s.machine.UpdateStatus(ctx, actor, cmd)
}

func (s *Service) Approve(ctx context.Context, actor models.Actor, target moderation.Target, notes *string) (*models.UnifiedTransaction, error) {
	return s.machine.Approve(ctx, actor, target, notes)
}

func (s *Service) Cancel(ctx context.Context, actor models.Actor, target moderation.Target, reason *string) (*models.UnifiedTransaction, error) {
	return s.machine.Cancel(ctx, actor, target, reason)
}

func (s *Service) Verify(ctx context.Context, actor models.Actor, cmd moderation.VerifyCommand) (*models.UnifiedTransaction, error) {
	return s.machine.Verify(ctx, actor, cmd)
}

func (s *Service) Flag(ctx context.Context, actor models.Actor, target moderation.Target, reason *string) (*models.UnifiedTransaction, error) {
	return s.machine.Flag(ctx, actor, target, reason)
}

func (s *Service) Unflag(ctx context.Context, actor models.Actor, target moderation.Target) (*models.UnifiedTransaction, error) {
	return s.machine.Unflag(ctx, actor, target)
}

func (s *Service) checkBulk(items []moderation.BulkItem) error {
	if len(items) == 0 {
		return errors.Invalid.Explain("transactionIds must not be empty").WithField("min", "transactionIds", "must not be empty")
	}
	if len(items) > s.opts.MaxBulkItems {
		return errors.Invalid.Explain("at most %d transactions per bulk request", s.opts.MaxBulkItems).
			WithField("max", "transactionIds", "too many items")
	}
	return nil
}

func (s *Service) BulkUpdateStatus(ctx context.Context, actor models.Actor, items []moderation.BulkItem, status models.Status, notes *string, override bool) (*moderation.BulkStatusResult, error) {
	if err := s.checkBulk(items); err != nil {
		return nil, err
	}
	return s.bulk.UpdateStatus(ctx, actor, items, status, notes, override)
}

func (s *Service) BulkFlag(ctx context.Context, actor models.Actor, items []moderation.BulkItem, reason *string) (*moderation.BulkFlagResult, error) {
	if err := s.checkBulk(items); err != nil {
		return nil, err
	}
	return s.bulk.Flag(ctx, actor, items, reason)
}

// Export collects the filtered listing up to the export bound.
func (s *Service) Export(ctx context.Context, filter source.Filter, sort source.Sort) (*export.Snapshot, error) {
	return s.exporter.Collect(ctx, filter, sort)
}
