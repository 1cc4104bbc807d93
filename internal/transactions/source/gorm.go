package source

import (
	"context"
	"strconv"
	"strings"

	"github.com/Aidin1998/txconsole/common/dbutil"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// statusExpr must agree with models.NormalizeStatus. Absent status is stored
// as NULL or '' on older rows and reads as pending.
const statusExpr = "COALESCE(NULLIF(LOWER(TRIM(status)), ''), 'pending')"

// statusOrdinalExpr must agree with models.Status.Ordinal.
const statusOrdinalExpr = "CASE " + statusExpr +
	" WHEN 'pending' THEN 0 WHEN 'processing' THEN 1 WHEN 'completed' THEN 2" +
	" WHEN 'failed' THEN 3 WHEN 'cancelled' THEN 4 ELSE 5 END"

type volumeColumns struct {
	asset  string
	amount string
}

// ledger describes how one table maps onto the adapter contract.
type ledger[T any] struct {
	kind          models.SourceKind
	amountColumn  string
	proofColumn   string
	searchColumns []string
	volumes       []volumeColumns
	applies       func(f Filter) bool
	scope         func(q *gorm.DB, f Filter) *gorm.DB
	normalize     func(row *T) models.UnifiedTransaction
}

// GormAdapter serves one ledger table through gorm.
type GormAdapter[T any] struct {
	db     *gorm.DB
	logger *zap.Logger
	ledger ledger[T]
}

var _ Adapter = (*GormAdapter[models.ConversionRecord])(nil)

func (a *GormAdapter[T]) Kind() models.SourceKind {
	return a.ledger.kind
}

func (a *GormAdapter[T]) Applies(f Filter) bool {
	return a.ledger.applies(f)
}

func (a *GormAdapter[T]) query(ctx context.Context, f Filter) *gorm.DB {
	q := a.db.WithContext(ctx).Model(new(T))
	if f.Status != nil {
		q = q.Where(statusExpr+" = ?", string(*f.Status))
	}
	if f.Flagged != nil {
		q = q.Where("is_flagged = ?", *f.Flagged)
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at <= ?", *f.DateTo)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		conds := make([]string, 0, len(a.ledger.searchColumns)+1)
		args := make([]interface{}, 0, len(a.ledger.searchColumns)+1)
		pattern := f.searchPattern()
		for _, col := range a.ledger.searchColumns {
			conds = append(conds, "LOWER(COALESCE("+col+", '')) LIKE ? ESCAPE '\\'")
			args = append(args, pattern)
		}
		if id, err := strconv.ParseUint(search, 10, 64); err == nil {
			conds = append(conds, "id = ?")
			args = append(args, id)
		}
		q = q.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return a.ledger.scope(q, f)
}

func (a *GormAdapter[T]) Count(ctx context.Context, f Filter) (int64, error) {
	if !a.Applies(f) {
		return 0, nil
	}
	var total int64
	if err := a.query(ctx, f).Count(&total).Error; err != nil {
		a.logger.Debug("count failed", zap.String("source", string(a.ledger.kind)), zap.Error(err))
		return 0, dbutil.WrapError(err)
	}
	return total, nil
}

func (a *GormAdapter[T]) orderColumn(key SortKey) string {
	switch key {
	case SortAmount:
		return a.ledger.amountColumn
	case SortStatus:
		return statusOrdinalExpr
	default:
		return "created_at"
	}
}

func (a *GormAdapter[T]) Page(ctx context.Context, req PageRequest) ([]models.UnifiedTransaction, error) {
	if !a.Applies(req.Filter) || req.Limit <= 0 {
		return nil, nil
	}
	dir := " ASC"
	if req.Sort.Order == SortDesc {
		dir = " DESC"
	}

	var rows []T
	err := a.query(ctx, req.Filter).
		Order(a.orderColumn(req.Sort.Key) + dir).
		Order("id ASC").
		Offset(req.Offset).
		Limit(req.Limit).
		Find(&rows).Error
	if err != nil {
		a.logger.Debug("page failed", zap.String("source", string(a.ledger.kind)), zap.Error(err))
		return nil, dbutil.WrapError(err)
	}

	out := make([]models.UnifiedTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, a.ledger.normalize(&rows[i]))
	}
	return out, nil
}

func (a *GormAdapter[T]) Get(ctx context.Context, id uint64) (*models.UnifiedTransaction, error) {
	row, err := dbutil.FindOne[T](a.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	tx := a.ledger.normalize(row)
	return &tx, nil
}

// settle resolves a zero-row update into NotFound or Conflict.
func (a *GormAdapter[T]) settle(ctx context.Context, id uint64, res *gorm.DB) error {
	if res.Error != nil {
		return dbutil.WrapError(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := a.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Count(&n).Error; err != nil {
		return dbutil.WrapError(err)
	}
	if n == 0 {
		return errors.NotFound.Explain("not found")
	}
	return errors.Conflict.Explain("status changed concurrently")
}

func (a *GormAdapter[T]) ApplyStatus(ctx context.Context, change StatusChange) error {
	q := a.db.WithContext(ctx).Model(new(T)).Where("id = ?", change.ID)
	if change.Expected != "" {
		q = q.Where(statusExpr+" = ?", string(change.Expected))
	}
	updates := map[string]interface{}{
		"status":            string(change.To),
		"status_updated_by": change.Actor,
		"status_updated_at": change.At,
		"status_notes":      change.Notes,
		"updated_at":        change.At,
	}
	if change.Proof != nil {
		if a.ledger.proofColumn == "" {
			return errors.Invalid.Explain("%s records do not carry a proof", a.ledger.kind.APIType())
		}
		updates[a.ledger.proofColumn] = *change.Proof
	}
	res := q.Updates(updates)
	return a.settle(ctx, change.ID, res)
}

func (a *GormAdapter[T]) ApplyFlag(ctx context.Context, change FlagChange) error {
	updates := map[string]interface{}{
		"is_flagged":     false,
		"flagged_at":     nil,
		"flagged_by":     nil,
		"flagged_reason": nil,
		"updated_at":     change.At,
	}
	if change.Flagged {
		updates["is_flagged"] = true
		updates["flagged_at"] = change.At
		updates["flagged_by"] = change.Actor
		updates["flagged_reason"] = change.Reason
	}
	res := a.db.WithContext(ctx).Model(new(T)).Where("id = ?", change.ID).Updates(updates)
	return a.settle(ctx, change.ID, res)
}

func (a *GormAdapter[T]) Stats(ctx context.Context, f Filter) (*Stats, error) {
	stats := &Stats{Kind: a.ledger.kind, ByStatus: make(map[models.Status]int64), Volumes: []Volume{}}
	if !a.Applies(f) {
		return stats, nil
	}

	var statusRows []struct {
		Status string
		Total  int64
	}
	err := a.query(ctx, f).
		Select(statusExpr + " AS status, COUNT(*) AS total").
		Group(statusExpr).
		Scan(&statusRows).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	for _, r := range statusRows {
		stats.ByStatus[models.NormalizeStatus(r.Status)] += r.Total
		stats.Total += r.Total
	}

	if err := a.query(ctx, f).Where("is_flagged = ?", true).Count(&stats.Flagged).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}

	for _, v := range a.ledger.volumes {
		var volumeRows []struct {
			Asset  string
			Amount decimal.Decimal
			Total  int64
		}
		err := a.query(ctx, f).
			Select(v.asset + " AS asset, SUM(" + v.amount + ") AS amount, COUNT(*) AS total").
			Group(v.asset).
			Scan(&volumeRows).Error
		if err != nil {
			return nil, dbutil.WrapError(err)
		}
		for _, r := range volumeRows {
			stats.Volumes = append(stats.Volumes, Volume{Asset: r.Asset, Amount: r.Amount, Count: r.Total})
		}
	}
	return stats, nil
}
