// Package moderation drives ledger records through status transitions and
// flagging, one record at a time or in bulk.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/txconsole/internal/audit"
	"github.com/Aidin1998/txconsole/internal/notification"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/metrics"
	"github.com/Aidin1998/txconsole/pkg/models"
	"go.uber.org/zap"
)

// Notifier receives moderation events. It must not block.
type Notifier interface {
	Notify(ctx context.Context, event notification.Event)
}

// Recorder receives audit events. It must not block.
type Recorder interface {
	Record(ctx context.Context, event *audit.Event)
}

// Sanitizer cleans operator supplied text.
type Sanitizer interface {
	SanitizeText(input *string) *string
}

// Target addresses one record. An empty Kind searches every source.
type Target struct {
	ID   uint64
	Kind models.SourceKind
}

type StatusCommand struct {
	Target   Target
	Status   models.Status
	Notes    *string
	Override bool
}

type VerifyCommand struct {
	Target Target
	Proof  string
	Notes  *string
}

type Machine struct {
	registry  *source.Registry
	notifier  Notifier
	recorder  Recorder
	sanitizer Sanitizer
	logger    *zap.Logger
	strict    bool
	now       func() time.Time
}

// NewMachine builds the state machine. With strict set every transition is
// applied only if the status read before it is still current.
func NewMachine(registry *source.Registry, notifier Notifier, recorder Recorder, sanitizer Sanitizer, logger *zap.Logger, strict bool) *Machine {
	return &Machine{
		registry:  registry,
		notifier:  notifier,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger.Named("moderation"),
		strict:    strict,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func requireActor(actor models.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return errors.Invalid.Explain("actor identity is required")
	}
	return nil
}

func (m *Machine) clean(s *string) *string {
	if m.sanitizer != nil {
		return m.sanitizer.SanitizeText(s)
	}
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Resolve finds the record and the adapter that owns it.
func (m *Machine) Resolve(ctx context.Context, target Target) (*models.UnifiedTransaction, source.Adapter, error) {
	if target.ID == 0 {
		return nil, nil, errors.Invalid.Explain("id must be a positive integer")
	}
	if target.Kind != "" {
		ad, ok := m.registry.Get(target.Kind)
		if !ok {
			return nil, nil, errors.Invalid.Explain("unknown type %q", target.Kind)
		}
		rec, err := ad.Get(ctx, target.ID)
		if err != nil {
			return nil, nil, err
		}
		return rec, ad, nil
	}

	var (
		found   *models.UnifiedTransaction
		owner   source.Adapter
		matches []string
	)
	for _, ad := range m.registry.All() {
		rec, err := ad.Get(ctx, target.ID)
		if errors.Is(err, errors.NotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		found, owner = rec, ad
		matches = append(matches, ad.Kind().APIType())
	}
	switch len(matches) {
	case 0:
		return nil, nil, errors.NotFound.Explain("not found")
	case 1:
		return found, owner, nil
	default:
		return nil, nil, errors.Invalid.Explain("id %d exists in %s; specify type", target.ID, strings.Join(matches, ", "))
	}
}

// Get returns a single record.
func (m *Machine) Get(ctx context.Context, target Target) (*models.UnifiedTransaction, error) {
	rec, _, err := m.Resolve(ctx, target)
	return rec, err
}

// UpdateStatus moves a record to any status. Leaving a terminal status
// requires Override and is recorded in the status notes.
func (m *Machine) UpdateStatus(ctx context.Context, actor models.Actor, cmd StatusCommand) (*models.UnifiedTransaction, error) {
	return m.transition(ctx, actor, cmd, "", audit.EventStatusUpdated, "")
}

// Approve completes a record.
func (m *Machine) Approve(ctx context.Context, actor models.Actor, target Target, notes *string) (*models.UnifiedTransaction, error) {
	cmd := StatusCommand{Target: target, Status: models.StatusCompleted, Notes: notes}
	return m.transition(ctx, actor, cmd, "", audit.EventApproved, notification.EventApproved)
}

// Cancel cancels a record with an optional reason.
func (m *Machine) Cancel(ctx context.Context, actor models.Actor, target Target, reason *string) (*models.UnifiedTransaction, error) {
	cmd := StatusCommand{Target: target, Status: models.StatusCancelled, Notes: reason}
	return m.transition(ctx, actor, cmd, "", audit.EventCancelled, notification.EventCancelled)
}

// Verify completes a record and stores the supplied proof (an on-chain hash
// or a bank reference, depending on the ledger).
func (m *Machine) Verify(ctx context.Context, actor models.Actor, cmd VerifyCommand) (*models.UnifiedTransaction, error) {
	proof := strings.TrimSpace(cmd.Proof)
	if proof == "" {
		return nil, errors.Invalid.Explain("a proof is required to verify a transaction").
			WithField("required", "proof", "is required")
	}
	notes := cmd.Notes
	if notes == nil {
		n := "verified with proof " + proof
		notes = &n
	}
	sc := StatusCommand{Target: cmd.Target, Status: models.StatusCompleted, Notes: notes}
	return m.transition(ctx, actor, sc, proof, audit.EventVerified, notification.EventVerified)
}

func (m *Machine) transition(ctx context.Context, actor models.Actor, cmd StatusCommand, proof string, action audit.EventType, notify notification.EventType) (*models.UnifiedTransaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !cmd.Status.Valid() {
		return nil, errors.Invalid.Explain("unknown status %q", cmd.Status).WithField("txstatus", "status", "unknown status")
	}

	rec, ad, err := m.Resolve(ctx, cmd.Target)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	notes := m.clean(cmd.Notes)
	override := false
	if from.IsTerminal() {
		if !cmd.Override {
			err := errors.Invalid.Explain("transaction is %s; changing a terminal status requires override", from)
			m.audit(ctx, action, actor, rec, from, cmd.Status, false, notes, err)
			metrics.ObserveModeration(string(action), string(rec.SourceKind), err)
			return nil, err
		}
		override = true
		marker := fmt.Sprintf("override %s -> %s", from, cmd.Status)
		if notes != nil {
			marker += ": " + *notes
		}
		notes = &marker
	}

	change := source.StatusChange{ID: rec.ID, To: cmd.Status, Actor: actor.ID, Notes: notes, At: m.now()}
	if m.strict {
		change.Expected = from
	}
	if proof != "" {
		change.Proof = &proof
	}
	err = ad.ApplyStatus(ctx, change)
	m.audit(ctx, action, actor, rec, from, cmd.Status, override, notes, err)
	metrics.ObserveModeration(string(action), string(rec.SourceKind), err)
	if err != nil {
		m.logger.Warn("status transition failed",
			zap.String("source", string(rec.SourceKind)),
			zap.Uint64("id", rec.ID),
			zap.String("from", string(from)),
			zap.String("to", string(cmd.Status)),
			zap.Error(err))
		return nil, err
	}

	updated, err := ad.Get(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("status updated",
		zap.String("source", string(rec.SourceKind)),
		zap.Uint64("id", rec.ID),
		zap.String("from", string(from)),
		zap.String("to", string(cmd.Status)),
		zap.Bool("override", override),
		zap.String("actor", actor.ID))

	if notify != "" {
		m.notify(ctx, notify, actor, updated, notes)
	}
	return updated, nil
}

// Flag marks a record. Flagging again overwrites reason and attribution.
func (m *Machine) Flag(ctx context.Context, actor models.Actor, target Target, reason *string) (*models.UnifiedTransaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rec, ad, err := m.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	reason = m.clean(reason)
	err = ad.ApplyFlag(ctx, source.FlagChange{ID: rec.ID, Flagged: true, Actor: actor.ID, Reason: reason, At: m.now()})
	m.audit(ctx, audit.EventFlagged, actor, rec, rec.Status, rec.Status, false, reason, err)
	metrics.ObserveModeration(string(audit.EventFlagged), string(rec.SourceKind), err)
	if err != nil {
		return nil, err
	}

	updated, err := ad.Get(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	m.notify(ctx, notification.EventFlagged, actor, updated, reason)
	return updated, nil
}

// Unflag clears the flag. Unflagging a record that is not flagged succeeds
// without writing.
func (m *Machine) Unflag(ctx context.Context, actor models.Actor, target Target) (*models.UnifiedTransaction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rec, ad, err := m.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if !rec.Moderation.IsFlagged {
		return rec, nil
	}

	err = ad.ApplyFlag(ctx, source.FlagChange{ID: rec.ID, Flagged: false, Actor: actor.ID, At: m.now()})
	m.audit(ctx, audit.EventUnflagged, actor, rec, rec.Status, rec.Status, false, nil, err)
	metrics.ObserveModeration(string(audit.EventUnflagged), string(rec.SourceKind), err)
	if err != nil {
		return nil, err
	}
	return ad.Get(ctx, rec.ID)
}

func (m *Machine) audit(ctx context.Context, action audit.EventType, actor models.Actor, rec *models.UnifiedTransaction, from, to models.Status, override bool, notes *string, err error) {
	if m.recorder == nil {
		return
	}
	fromStr, toStr := string(from), string(to)
	event := &audit.Event{
		EventType:  action,
		ActorID:    actor.ID,
		SourceKind: string(rec.SourceKind),
		RecordID:   rec.ID,
		Outcome:    audit.OutcomeSuccess,
		FromStatus: &fromStr,
		ToStatus:   &toStr,
		Override:   override,
	}
	if notes != nil {
		event.Details = *notes
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		msg := err.Error()
		event.Error = &msg
	}
	m.recorder.Record(ctx, event)
}

func (m *Machine) notify(ctx context.Context, kind notification.EventType, actor models.Actor, rec *models.UnifiedTransaction, reason *string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, notification.Event{
		Type:       kind,
		SourceKind: string(rec.SourceKind),
		RecordID:   rec.ID,
		Reference:  rec.Reference,
		ActorID:    actor.ID,
		Status:     string(rec.Status),
		Amount:     rec.Amount.Display,
		Reason:     reason,
	})
}
