package source

import (
	"strings"

	"github.com/Aidin1998/txconsole/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewConversionAdapter serves the crypto buy/sell history.
func NewConversionAdapter(db *gorm.DB, logger *zap.Logger) *GormAdapter[models.ConversionRecord] {
	return &GormAdapter[models.ConversionRecord]{
		db:     db,
		logger: logger.Named("conversion-ledger"),
		ledger: ledger[models.ConversionRecord]{
			kind:          models.SourceConversion,
			amountColumn:  "crypto_amount",
			proofColumn:   "tx_hash",
			searchColumns: []string{"reference", "tx_hash", "wallet_address", "merchant"},
			volumes: []volumeColumns{
				{asset: "crypto_asset", amount: "crypto_amount"},
				{asset: "fiat_currency", amount: "fiat_amount"},
			},
			applies: func(f Filter) bool {
				switch f.typeOrAll() {
				case TypeAll, TypeConversion, TypeBuySell:
				default:
					return false
				}
				return f.Asset != AssetFiat
			},
			scope: func(q *gorm.DB, f Filter) *gorm.DB {
				if c := strings.ToUpper(strings.TrimSpace(f.Currency)); c != "" {
					q = q.Where("(UPPER(crypto_asset) = ? OR UPPER(fiat_currency) = ?)", c, c)
				}
				return q
			},
			normalize: NormalizeConversion,
		},
	}
}

// NewWalletTransferAdapter serves peer wallet sends and receives.
func NewWalletTransferAdapter(db *gorm.DB, logger *zap.Logger) *GormAdapter[models.WalletTransferRecord] {
	return &GormAdapter[models.WalletTransferRecord]{
		db:     db,
		logger: logger.Named("wallet-ledger"),
		ledger: ledger[models.WalletTransferRecord]{
			kind:          models.SourceWalletTransfer,
			amountColumn:  "amount",
			proofColumn:   "tx_hash",
			searchColumns: []string{"reference", "tx_hash", "from_address", "to_address", "counterparty"},
			volumes:       []volumeColumns{{asset: "asset", amount: "amount"}},
			applies: func(f Filter) bool {
				switch f.typeOrAll() {
				case TypeAll, TypeIncoming, TypeOutgoing, TypeWalletTransfer:
				default:
					return false
				}
				return f.Asset != AssetFiat
			},
			scope: func(q *gorm.DB, f Filter) *gorm.DB {
				switch f.Type {
				case TypeIncoming:
					q = q.Where("transfer_type = ?", "receive")
				case TypeOutgoing:
					q = q.Where("transfer_type = ?", "send")
				}
				if c := strings.ToUpper(strings.TrimSpace(f.Currency)); c != "" {
					q = q.Where("UPPER(asset) = ?", c)
				}
				return q
			},
			normalize: NormalizeWalletTransfer,
		},
	}
}

// NewFiatTransferAdapter serves bank deposits and withdrawals.
func NewFiatTransferAdapter(db *gorm.DB, logger *zap.Logger) *GormAdapter[models.FiatTransferRecord] {
	return &GormAdapter[models.FiatTransferRecord]{
		db:     db,
		logger: logger.Named("fiat-ledger"),
		ledger: ledger[models.FiatTransferRecord]{
			kind:          models.SourceFiatTransfer,
			amountColumn:  "amount",
			proofColumn:   "bank_reference",
			searchColumns: []string{"reference", "bank_reference", "account_holder", "bank_name"},
			volumes:       []volumeColumns{{asset: "currency", amount: "amount"}},
			applies: func(f Filter) bool {
				switch f.typeOrAll() {
				case TypeAll, TypeIncoming, TypeOutgoing, TypeFiatTransfer:
				default:
					return false
				}
				return f.Asset != AssetCrypto
			},
			scope: func(q *gorm.DB, f Filter) *gorm.DB {
				switch f.Type {
				case TypeIncoming:
					q = q.Where("transfer_type = ?", "deposit")
				case TypeOutgoing:
					q = q.Where("transfer_type = ?", "withdrawal")
				}
				if c := strings.ToUpper(strings.TrimSpace(f.Currency)); c != "" {
					q = q.Where("UPPER(currency) = ?", c)
				}
				return q
			},
			normalize: NormalizeFiatTransfer,
		},
	}
}

// NewGormRegistry builds the registry over all three ledgers.
func NewGormRegistry(db *gorm.DB, logger *zap.Logger) *Registry {
	return NewRegistry(
		NewConversionAdapter(db, logger),
		NewWalletTransferAdapter(db, logger),
		NewFiatTransferAdapter(db, logger),
	)
}
