package moderation

import (
	"context"
	"sync"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"go.uber.org/zap"
)

// BulkItem addresses one record of a bulk request.
type BulkItem struct {
	ID   uint64 `json:"id" binding:"required,min=1"`
	Type string `json:"type" binding:"required,txtype"`
}

type BulkFailure struct {
	ID    uint64 `json:"id"`
	Type  string `json:"type,omitempty"`
	Error string `json:"error"`
}

type BulkStatusResult struct {
	UpdatedCount int           `json:"updatedCount"`
	Failed       []BulkFailure `json:"failed"`
}

type BulkFlagResult struct {
	FlaggedCount int           `json:"flaggedCount"`
	Failed       []BulkFailure `json:"failed"`
}

// Executor applies one action to many records. Items are independent: a
// failing item is recorded and the rest carry on, nothing is rolled back.
type Executor struct {
	machine *Machine
	workers int
	logger  *zap.Logger
}

func NewExecutor(machine *Machine, workers int, logger *zap.Logger) *Executor {
	if workers <= 0 {
		workers = 1
	}
	return &Executor{machine: machine, workers: workers, logger: logger.Named("bulk")}
}

// UpdateStatus sets status on every item.
func (e *Executor) UpdateStatus(ctx context.Context, actor models.Actor, items []BulkItem, status models.Status, notes *string, override bool) (*BulkStatusResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, errors.Invalid.Explain("unknown status %q", status).WithField("txstatus", "status", "unknown status")
	}

	ok, failed := e.run(ctx, items, func(ctx context.Context, target Target) error {
		_, err := e.machine.UpdateStatus(ctx, actor, StatusCommand{Target: target, Status: status, Notes: notes, Override: override})
		return err
	})
	e.logger.Info("bulk status update finished",
		zap.String("status", string(status)),
		zap.Int("requested", len(items)),
		zap.Int("updated", ok),
		zap.Int("failed", len(failed)),
		zap.String("actor", actor.ID))
	return &BulkStatusResult{UpdatedCount: ok, Failed: failed}, nil
}

// Flag flags every item with the same reason.
func (e *Executor) Flag(ctx context.Context, actor models.Actor, items []BulkItem, reason *string) (*BulkFlagResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	ok, failed := e.run(ctx, items, func(ctx context.Context, target Target) error {
		_, err := e.machine.Flag(ctx, actor, target, reason)
		return err
	})
	e.logger.Info("bulk flag finished",
		zap.Int("requested", len(items)),
		zap.Int("flagged", ok),
		zap.Int("failed", len(failed)),
		zap.String("actor", actor.ID))
	return &BulkFlagResult{FlaggedCount: ok, Failed: failed}, nil
}

func (e *Executor) run(ctx context.Context, items []BulkItem, apply func(context.Context, Target) error) (int, []BulkFailure) {
	results := make([]error, len(items))
	semaphore := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, item BulkItem) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("bulk item panicked", zap.Uint64("id", item.ID), zap.String("type", item.Type), zap.Any("panic", r))
					results[i] = errors.Internal.Explain("internal error")
				}
			}()

			kind, ok := models.ParseSourceKind(item.Type)
			if !ok {
				results[i] = errors.Invalid.Explain("unknown type %q", item.Type)
				return
			}
			results[i] = apply(ctx, Target{ID: item.ID, Kind: kind})
		}(i, item)
	}
	wg.Wait()

	updated := 0
	failed := make([]BulkFailure, 0)
	for i, err := range results {
		if err == nil {
			updated++
			continue
		}
		failed = append(failed, BulkFailure{ID: items[i].ID, Type: items[i].Type, Error: itemError(err)})
	}
	return updated, failed
}

// itemError is the client facing text of an item failure.
func itemError(err error) string {
	if errors.Is(err, errors.NotFound) {
		return "not found"
	}
	var kinded *errors.Error
	if errors.As(err, &kinded) && kinded.HTTPStatus() < 500 {
		return kinded.Detail()
	}
	if errors.Is(err, errors.Unavailable) {
		return "source unavailable"
	}
	return "internal error"
}
