package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ModerationColumns are shared by every ledger table.
type ModerationColumns struct {
	IsFlagged       bool       `json:"is_flagged" gorm:"column:is_flagged;not null;default:false;index"`
	FlaggedAt       *time.Time `json:"flagged_at" gorm:"column:flagged_at"`
	FlaggedBy       *string    `json:"flagged_by" gorm:"column:flagged_by;size:128"`
	FlaggedReason   *string    `json:"flagged_reason" gorm:"column:flagged_reason;type:text"`
	StatusUpdatedBy *string    `json:"status_updated_by" gorm:"column:status_updated_by;size:128"`
	StatusUpdatedAt *time.Time `json:"status_updated_at" gorm:"column:status_updated_at"`
	StatusNotes     *string    `json:"status_notes" gorm:"column:status_notes;type:text"`
}

// ConversionRecord is a crypto buy/sell row.
type ConversionRecord struct {
	ID            uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        uint64           `json:"user_id" gorm:"index;not null"`
	Side          string           `json:"side" gorm:"size:8;not null" validate:"required,oneof=buy sell"`
	CryptoAsset   string           `json:"crypto_asset" gorm:"size:16;index;not null"`
	CryptoAmount  decimal.Decimal  `json:"crypto_amount" gorm:"type:decimal(36,18);not null"`
	FiatCurrency  string           `json:"fiat_currency" gorm:"size:8;index;not null"`
	FiatAmount    decimal.Decimal  `json:"fiat_amount" gorm:"type:decimal(20,2);not null"`
	Price         *decimal.Decimal `json:"price" gorm:"type:decimal(20,8)"`
	Reference     string           `json:"reference" gorm:"size:64;index"`
	Merchant      *string          `json:"merchant" gorm:"size:128"`
	WalletAddress *string          `json:"wallet_address" gorm:"size:128"`
	Network       *string          `json:"network" gorm:"size:32"`
	TxHash        *string          `json:"tx_hash" gorm:"size:128"`
	Status        string           `json:"status" gorm:"size:16;index"`
	ModerationColumns
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ConversionRecord) TableName() string { return "transaction_history" }

// WalletTransferRecord is a peer wallet send or receive.
type WalletTransferRecord struct {
	ID           uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uint64           `json:"user_id" gorm:"index;not null"`
	TransferType string           `json:"transfer_type" gorm:"size:16;not null" validate:"required,oneof=send receive"`
	Asset        string           `json:"asset" gorm:"size:16;index;not null"`
	Amount       decimal.Decimal  `json:"amount" gorm:"type:decimal(36,18);not null"`
	Fee          *decimal.Decimal `json:"fee" gorm:"type:decimal(36,18)"`
	FromAddress  string           `json:"from_address" gorm:"size:128"`
	ToAddress    string           `json:"to_address" gorm:"size:128"`
	Counterparty *string          `json:"counterparty" gorm:"size:128"`
	Network      *string          `json:"network" gorm:"size:32"`
	TxHash       *string          `json:"tx_hash" gorm:"size:128"`
	Reference    string           `json:"reference" gorm:"size:64;index"`
	Status       string           `json:"status" gorm:"size:16;index"`
	ModerationColumns
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WalletTransferRecord) TableName() string { return "wallet_transfers" }

// FiatTransferRecord is a bank deposit or withdrawal.
type FiatTransferRecord struct {
	ID            uint64           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        uint64           `json:"user_id" gorm:"index;not null"`
	TransferType  string           `json:"transfer_type" gorm:"size:16;not null" validate:"required,oneof=deposit withdrawal"`
	Currency      string           `json:"currency" gorm:"size:8;index;not null"`
	Amount        decimal.Decimal  `json:"amount" gorm:"type:decimal(20,2);not null"`
	Fee           *decimal.Decimal `json:"fee" gorm:"type:decimal(20,2)"`
	BankName      *string          `json:"bank_name" gorm:"size:128"`
	AccountHolder *string          `json:"account_holder" gorm:"size:128"`
	AccountNumber *string          `json:"account_number" gorm:"size:64"`
	BankReference *string          `json:"bank_reference" gorm:"size:128"`
	Reference     string           `json:"reference" gorm:"size:64;index"`
	Status        string           `json:"status" gorm:"size:16;index"`
	ModerationColumns
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FiatTransferRecord) TableName() string { return "fiat_transfers" }
