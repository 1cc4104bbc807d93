package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Event{}))
	return db
}

func status(s string) *string { return &s }

func TestRecordChainsAndVerifies(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, zap.NewNop(), Config{BatchSize: 2, FlushInterval: time.Hour})

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), &Event{
			EventType:  EventStatusUpdated,
			ActorID:    "op-1",
			SourceKind: "WALLET_TRANSFER",
			RecordID:   uint64(i%2 + 1),
			Outcome:    OutcomeSuccess,
			FromStatus: status("pending"),
			ToStatus:   status("processing"),
		})
	}
	svc.Close()

	history, err := svc.History(context.Background(), "WALLET_TRANSFER", 1)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Less(t, history[0].Seq, history[1].Seq)

	report, err := svc.VerifyIntegrity(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalEvents)
	assert.Equal(t, 5, report.ValidEvents)
	assert.Empty(t, report.Issues)
}

func TestVerifyDetectsTampering(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, zap.NewNop(), Config{})
	for i := 0; i < 3; i++ {
		svc.Record(context.Background(), &Event{
			EventType: EventFlagged, ActorID: "op-1", SourceKind: "FIAT_TRANSFER",
			RecordID: 9, Outcome: OutcomeSuccess, Details: fmt.Sprintf("reason %d", i),
		})
	}
	svc.Close()

	require.NoError(t, db.Model(&Event{}).Where("seq = ?", 2).Update("details", "edited").Error)

	report, err := svc.VerifyIntegrity(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.InvalidEvents)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, int64(2), report.Issues[0].Seq)
	assert.Equal(t, "hash_mismatch", report.Issues[0].IssueType)
}

func TestChainResumesAfterRestart(t *testing.T) {
	db := newTestDB(t)
	first := NewService(db, zap.NewNop(), Config{})
	first.Record(context.Background(), &Event{EventType: EventApproved, ActorID: "a", SourceKind: "CONVERSION", RecordID: 1, Outcome: OutcomeSuccess})
	first.Close()

	second := NewService(db, zap.NewNop(), Config{})
	second.Record(context.Background(), &Event{EventType: EventCancelled, ActorID: "a", SourceKind: "CONVERSION", RecordID: 1, Outcome: OutcomeSuccess})
	second.Close()

	history, err := second.History(context.Background(), "CONVERSION", 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[1].Seq)
	require.NotNil(t, history[1].PreviousHash)
	assert.Equal(t, history[0].Hash, *history[1].PreviousHash)
}

func TestRecordAfterCloseDrops(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, zap.NewNop(), Config{})
	svc.Close()
	svc.Record(context.Background(), &Event{EventType: EventApproved, ActorID: "a", SourceKind: "CONVERSION", RecordID: 1, Outcome: OutcomeSuccess})

	var n int64
	require.NoError(t, db.Model(&Event{}).Count(&n).Error)
	assert.Zero(t, n)
}
