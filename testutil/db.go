// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Aidin1998/txconsole/internal/database"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory database private to the test. The
// pool is pinned to one connection so every query sees the same database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Day is a fixed reference date for seeded rows.
var Day = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

// At returns Day plus the given hour and minute.
func At(hour, minute int) time.Time {
	return Day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Str(s string) *string { return &s }

// Conversion inserts a buy/sell row. Zero fields get plausible defaults.
func Conversion(t *testing.T, db *gorm.DB, rec models.ConversionRecord) models.ConversionRecord {
	t.Helper()
	if rec.UserID == 0 {
		rec.UserID = 1
	}
	if rec.Side == "" {
		rec.Side = "buy"
	}
	if rec.CryptoAsset == "" {
		rec.CryptoAsset = "BTC"
	}
	if rec.FiatCurrency == "" {
		rec.FiatCurrency = "EUR"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = Day
	}
	require.NoError(t, db.Create(&rec).Error)
	return rec
}

// WalletTransfer inserts a send/receive row.
func WalletTransfer(t *testing.T, db *gorm.DB, rec models.WalletTransferRecord) models.WalletTransferRecord {
	t.Helper()
	if rec.UserID == 0 {
		rec.UserID = 1
	}
	if rec.TransferType == "" {
		rec.TransferType = "send"
	}
	if rec.Asset == "" {
		rec.Asset = "ETH"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = Day
	}
	require.NoError(t, db.Create(&rec).Error)
	return rec
}

// FiatTransfer inserts a deposit/withdrawal row.
func FiatTransfer(t *testing.T, db *gorm.DB, rec models.FiatTransferRecord) models.FiatTransferRecord {
	t.Helper()
	if rec.UserID == 0 {
		rec.UserID = 1
	}
	if rec.TransferType == "" {
		rec.TransferType = "deposit"
	}
	if rec.Currency == "" {
		rec.Currency = "EUR"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = Day
	}
	require.NoError(t, db.Create(&rec).Error)
	return rec
}
