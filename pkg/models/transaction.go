package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies the ledger a record lives in.
type SourceKind string

const (
	SourceConversion     SourceKind = "CONVERSION"
	SourceWalletTransfer SourceKind = "WALLET_TRANSFER"
	SourceFiatTransfer   SourceKind = "FIAT_TRANSFER"
)

// AllSourceKinds lists every ledger in tie-break order.
var AllSourceKinds = []SourceKind{SourceConversion, SourceWalletTransfer, SourceFiatTransfer}

// API type strings used on the wire.
const (
	TypeTransactionHistory = "transaction_history"
	TypeWalletTransfer     = "wallet_transfer"
	TypeFiatTransfer       = "fiat_transfer"
)

// Rank is the position of the kind in the (sourceKind, id) tie-break.
func (k SourceKind) Rank() int {
	switch k {
	case SourceConversion:
		return 0
	case SourceWalletTransfer:
		return 1
	case SourceFiatTransfer:
		return 2
	}
	return 3
}

// APIType returns the wire name of the kind.
func (k SourceKind) APIType() string {
	switch k {
	case SourceConversion:
		return TypeTransactionHistory
	case SourceWalletTransfer:
		return TypeWalletTransfer
	case SourceFiatTransfer:
		return TypeFiatTransfer
	}
	return ""
}

func (k SourceKind) Valid() bool {
	return k.Rank() < 3
}

// ParseSourceKind accepts both wire type names and kind names.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case TypeTransactionHistory, "conversion":
		return SourceConversion, true
	case TypeWalletTransfer:
		return SourceWalletTransfer, true
	case TypeFiatTransfer:
		return SourceFiatTransfer, true
	}
	return "", false
}

// Status is the moderation status shared by all ledgers.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses is ordered by ordinal.
var AllStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// NormalizeStatus maps a stored value to a Status. Empty means pending.
func NormalizeStatus(s string) Status {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusPending
	}
	return Status(s)
}

// Ordinal is the sort position of the status.
func (s Status) Ordinal() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted:
		return 2
	case StatusFailed:
		return 3
	case StatusCancelled:
		return 4
	}
	return 5
}

func (s Status) Valid() bool {
	return s.Ordinal() < 5
}

// IsTerminal reports whether leaving the status requires an override.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Direction is derived from the ledger specific subtype.
type Direction string

const (
	DirectionIncoming   Direction = "INCOMING"
	DirectionOutgoing   Direction = "OUTGOING"
	DirectionConversion Direction = "CONVERSION"
)

// RecordKey is the system wide identity of a record.
type RecordKey struct {
	Kind SourceKind `json:"type"`
	ID   uint64     `json:"id"`
}

// Less orders keys by kind rank then id.
func (k RecordKey) Less(o RecordKey) bool {
	if k.Kind.Rank() != o.Kind.Rank() {
		return k.Kind.Rank() < o.Kind.Rank()
	}
	return k.ID < o.ID
}

// Money is an amount of a single asset or currency.
type Money struct {
	Value decimal.Decimal `json:"value"`
	Asset string          `json:"asset"`
}

type Amount struct {
	Crypto  *Money `json:"crypto,omitempty"`
	Fiat    *Money `json:"fiat,omitempty"`
	Display string `json:"display"`
}

// Primary is the amount used for sorting: crypto when present, otherwise fiat.
func (a Amount) Primary() decimal.Decimal {
	if a.Crypto != nil {
		return a.Crypto.Value
	}
	if a.Fiat != nil {
		return a.Fiat.Value
	}
	return decimal.Zero
}

type Moderation struct {
	IsFlagged     bool       `json:"isFlagged"`
	FlaggedAt     *time.Time `json:"flaggedAt,omitempty"`
	FlaggedBy     *string    `json:"flaggedBy,omitempty"`
	FlaggedReason *string    `json:"flaggedReason,omitempty"`
}

type StatusAudit struct {
	UpdatedBy *string    `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
}

// Party is one end of a movement.
type Party struct {
	Address string  `json:"address"`
	Kind    string  `json:"kind"`
	Name    *string `json:"name,omitempty"`
	Network *string `json:"network,omitempty"`
}

// ConversionDetail carries buy/sell specific fields.
type ConversionDetail struct {
	Side     string           `json:"side"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Merchant *string          `json:"merchant,omitempty"`
	TxHash   *string          `json:"txHash,omitempty"`
}

type WalletTransferDetail struct {
	TransferType string           `json:"transferType"`
	Fee          *decimal.Decimal `json:"fee,omitempty"`
	TxHash       *string          `json:"txHash,omitempty"`
}

type FiatTransferDetail struct {
	TransferType  string           `json:"transferType"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	BankReference *string          `json:"bankReference,omitempty"`
}

// UnifiedTransaction is the normalized view over the three ledgers. Exactly
// one of Conversion, WalletTransfer or FiatTransfer is set, matching SourceKind.
type UnifiedTransaction struct {
	ID          uint64      `json:"id"`
	SourceKind  SourceKind  `json:"sourceKind"`
	Type        string      `json:"type"`
	UserID      uint64      `json:"userId"`
	Reference   string      `json:"reference"`
	Direction   Direction   `json:"direction"`
	Amount      Amount      `json:"amount"`
	Status      Status      `json:"status"`
	Moderation  Moderation  `json:"moderation"`
	StatusAudit StatusAudit `json:"statusAudit"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
	Source      Party       `json:"source"`
	Destination Party       `json:"destination"`

	Conversion     *ConversionDetail     `json:"conversion,omitempty"`
	WalletTransfer *WalletTransferDetail `json:"walletTransfer,omitempty"`
	FiatTransfer   *FiatTransferDetail   `json:"fiatTransfer,omitempty"`
}

func (t *UnifiedTransaction) Key() RecordKey {
	return RecordKey{Kind: t.SourceKind, ID: t.ID}
}

// TxHash returns the on-chain hash when the record has one.
func (t *UnifiedTransaction) TxHash() *string {
	switch {
	case t.Conversion != nil:
		return t.Conversion.TxHash
	case t.WalletTransfer != nil:
		return t.WalletTransfer.TxHash
	}
	return nil
}
