package moderation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Aidin1998/txconsole/internal/audit"
	"github.com/Aidin1998/txconsole/internal/notification"
	"github.com/Aidin1998/txconsole/internal/transactions/moderation"
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/Aidin1998/txconsole/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type captured struct {
	mu      sync.Mutex
	notices []notification.Event
	events  []*audit.Event
}

func (c *captured) Notify(_ context.Context, e notification.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, e)
}

func (c *captured) Record(_ context.Context, e *audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

var operator = models.Actor{ID: "op-7", Name: "Ops", Permissions: []string{"*"}}

func newMachine(t *testing.T) (*moderation.Machine, *gorm.DB, *captured) {
	t.Helper()
	db := testutil.NewDB(t)
	sink := &captured{}
	registry := source.NewGormRegistry(db, zap.NewNop())
	return moderation.NewMachine(registry, sink, sink, nil, zap.NewNop(), true), db, sink
}

func wallet(id uint64) moderation.Target {
	return moderation.Target{ID: id, Kind: models.SourceWalletTransfer}
}

func TestFlagThenCompleteKeepsFlag(t *testing.T) {
	m, db, sink := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1"), Status: "pending"})
	ctx := context.Background()

	_, err := m.Flag(ctx, operator, wallet(1), testutil.Str("  suspicious  "))
	require.NoError(t, err)

	rec, err := m.UpdateStatus(ctx, operator, moderation.StatusCommand{Target: wallet(1), Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.True(t, rec.Moderation.IsFlagged)
	assert.Equal(t, "suspicious", *rec.Moderation.FlaggedReason)
	assert.Equal(t, "op-7", *rec.StatusAudit.UpdatedBy)

	require.Len(t, sink.notices, 1, "plain status updates do not notify")
	assert.Equal(t, notification.EventFlagged, sink.notices[0].Type)
	require.Len(t, sink.events, 2)
	assert.Equal(t, audit.EventStatusUpdated, sink.events[1].EventType)
	assert.Equal(t, "pending", *sink.events[1].FromStatus)
}

func TestTerminalStatusRequiresOverride(t *testing.T) {
	m, db, sink := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1"), Status: "completed"})
	ctx := context.Background()

	_, err := m.UpdateStatus(ctx, operator, moderation.StatusCommand{Target: wallet(1), Status: models.StatusPending})
	assert.True(t, errors.Is(err, errors.Invalid))
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.OutcomeFailure, sink.events[0].Outcome)

	rec, err := m.UpdateStatus(ctx, operator, moderation.StatusCommand{
		Target: wallet(1), Status: models.StatusPending, Override: true, Notes: testutil.Str("reopened"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, "override completed -> pending: reopened", *rec.StatusAudit.Notes)
	assert.True(t, sink.events[1].Override)
}

func TestApproveCancelVerify(t *testing.T) {
	m, db, sink := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1"), Status: "pending"})
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("2"), Status: "processing"})
	testutil.FiatTransfer(t, db, models.FiatTransferRecord{Amount: testutil.Dec("10"), Status: "pending"})
	ctx := context.Background()

	rec, err := m.Approve(ctx, operator, wallet(1), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)

	_, err = m.Approve(ctx, operator, wallet(1), nil)
	assert.True(t, errors.Is(err, errors.Invalid), "approving a terminal record is rejected")

	rec, err = m.Cancel(ctx, operator, wallet(2), testutil.Str("customer request"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, rec.Status)
	assert.Equal(t, "customer request", *rec.StatusAudit.Notes)

	_, err = m.Verify(ctx, operator, moderation.VerifyCommand{Target: moderation.Target{ID: 1, Kind: models.SourceFiatTransfer}})
	assert.True(t, errors.Is(err, errors.Invalid))

	rec, err = m.Verify(ctx, operator, moderation.VerifyCommand{
		Target: moderation.Target{ID: 1, Kind: models.SourceFiatTransfer}, Proof: "SEPA-123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "SEPA-123", *rec.FiatTransfer.BankReference)
	assert.Equal(t, "verified with proof SEPA-123", *rec.StatusAudit.Notes)

	types := make([]notification.EventType, 0, len(sink.notices))
	for _, n := range sink.notices {
		types = append(types, n.Type)
	}
	assert.Equal(t, []notification.EventType{notification.EventApproved, notification.EventCancelled, notification.EventVerified}, types)
}

// proofRejecting fails any status write that carries a proof.
type proofRejecting struct {
	source.Adapter
}

func (p proofRejecting) ApplyStatus(ctx context.Context, change source.StatusChange) error {
	if change.Proof != nil {
		return errors.Unavailable.Explain("proof column unavailable")
	}
	return p.Adapter.ApplyStatus(ctx, change)
}

func TestVerifyFailureLeavesRecordUntouched(t *testing.T) {
	db := testutil.NewDB(t)
	sink := &captured{}
	registry := source.NewRegistry(
		source.NewConversionAdapter(db, zap.NewNop()),
		proofRejecting{source.NewWalletTransferAdapter(db, zap.NewNop())},
		source.NewFiatTransferAdapter(db, zap.NewNop()),
	)
	m := moderation.NewMachine(registry, sink, sink, nil, zap.NewNop(), true)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1"), Status: "pending"})
	ctx := context.Background()

	_, err := m.Verify(ctx, operator, moderation.VerifyCommand{Target: wallet(1), Proof: "0xabc"})
	require.Error(t, err)

	rec, err := m.Get(ctx, wallet(1))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Nil(t, rec.TxHash())
	assert.Nil(t, rec.StatusAudit.UpdatedBy)
	assert.Empty(t, sink.notices)
	require.Len(t, sink.events, 1)
	assert.Equal(t, audit.OutcomeFailure, sink.events[0].Outcome)
}

func TestActorRequired(t *testing.T) {
	m, db, _ := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1")})

	_, err := m.Flag(context.Background(), models.Actor{}, wallet(1), nil)
	assert.True(t, errors.Is(err, errors.Invalid))
	_, err = m.UpdateStatus(context.Background(), models.Actor{ID: " "}, moderation.StatusCommand{Target: wallet(1), Status: models.StatusFailed})
	assert.True(t, errors.Is(err, errors.Invalid))
}

func TestFlagIdempotentAndUnflagNoop(t *testing.T) {
	m, db, sink := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1")})
	ctx := context.Background()

	rec, err := m.Unflag(ctx, operator, wallet(1))
	require.NoError(t, err)
	assert.False(t, rec.Moderation.IsFlagged)
	assert.Empty(t, sink.events, "unflagging an unflagged record writes nothing")

	_, err = m.Flag(ctx, operator, wallet(1), testutil.Str("first"))
	require.NoError(t, err)
	other := models.Actor{ID: "op-8"}
	rec, err = m.Flag(ctx, other, wallet(1), testutil.Str("second"))
	require.NoError(t, err)
	assert.True(t, rec.Moderation.IsFlagged)
	assert.Equal(t, "second", *rec.Moderation.FlaggedReason)
	assert.Equal(t, "op-8", *rec.Moderation.FlaggedBy)

	rec, err = m.Unflag(ctx, operator, wallet(1))
	require.NoError(t, err)
	assert.False(t, rec.Moderation.IsFlagged)
	assert.Nil(t, rec.Moderation.FlaggedReason)
}

func TestResolveWithoutType(t *testing.T) {
	m, db, _ := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1")})
	testutil.FiatTransfer(t, db, models.FiatTransferRecord{Amount: testutil.Dec("1")})
	testutil.FiatTransfer(t, db, models.FiatTransferRecord{Amount: testutil.Dec("2")})
	ctx := context.Background()

	_, err := m.Get(ctx, moderation.Target{ID: 1})
	assert.True(t, errors.Is(err, errors.Invalid), "id 1 exists in two ledgers")

	rec, err := m.Get(ctx, moderation.Target{ID: 2})
	require.NoError(t, err)
	assert.Equal(t, models.SourceFiatTransfer, rec.SourceKind)

	_, err = m.Get(ctx, moderation.Target{ID: 3})
	assert.True(t, errors.Is(err, errors.NotFound))

	_, err = m.Get(ctx, moderation.Target{ID: 0})
	assert.True(t, errors.Is(err, errors.Invalid))
}

func TestBulkUpdateStatusReportsMissing(t *testing.T) {
	m, db, _ := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1"), Status: "pending"})
	exec := moderation.NewExecutor(m, 4, zap.NewNop())

	res, err := exec.UpdateStatus(context.Background(), operator, []moderation.BulkItem{
		{ID: 1, Type: models.TypeWalletTransfer},
		{ID: 999, Type: models.TypeWalletTransfer},
	}, models.StatusCompleted, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, uint64(999), res.Failed[0].ID)
	assert.Equal(t, "not found", res.Failed[0].Error)
}

func TestBulkFlag(t *testing.T) {
	m, db, _ := newMachine(t)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{Amount: testutil.Dec("1")})
	testutil.FiatTransfer(t, db, models.FiatTransferRecord{Amount: testutil.Dec("1")})
	exec := moderation.NewExecutor(m, 2, zap.NewNop())

	res, err := exec.Flag(context.Background(), operator, []moderation.BulkItem{
		{ID: 1, Type: models.TypeWalletTransfer},
		{ID: 1, Type: models.TypeFiatTransfer},
		{ID: 1, Type: "ledger"},
	}, testutil.Str("batch review"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.FlaggedCount)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "ledger", res.Failed[0].Type)

	_, err = exec.Flag(context.Background(), models.Actor{}, nil, nil)
	assert.True(t, errors.Is(err, errors.Invalid))
}
