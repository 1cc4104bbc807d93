package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/shopspring/decimal"
)

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return p
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func moderation(c models.ModerationColumns) (models.Moderation, models.StatusAudit) {
	return models.Moderation{
			IsFlagged:     c.IsFlagged,
			FlaggedAt:     c.FlaggedAt,
			FlaggedBy:     nonEmpty(c.FlaggedBy),
			FlaggedReason: nonEmpty(c.FlaggedReason),
		}, models.StatusAudit{
			UpdatedBy: nonEmpty(c.StatusUpdatedBy),
			UpdatedAt: c.StatusUpdatedAt,
			Notes:     nonEmpty(c.StatusNotes),
		}
}

func fiatDisplay(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + strings.ToUpper(currency)
}

func cryptoDisplay(v decimal.Decimal, asset string) string {
	return v.String() + " " + strings.ToUpper(asset)
}

// NormalizeConversion maps a buy/sell row. The crypto leg is the primary amount.
func NormalizeConversion(r *models.ConversionRecord) models.UnifiedTransaction {
	mod, audit := moderation(r.ModerationColumns)
	crypto := &models.Money{Value: r.CryptoAmount, Asset: strings.ToUpper(r.CryptoAsset)}
	fiat := &models.Money{Value: r.FiatAmount, Asset: strings.ToUpper(r.FiatCurrency)}

	exchange := models.Party{Address: "exchange", Kind: "exchange", Name: nonEmpty(r.Merchant)}
	wallet := models.Party{Kind: "wallet", Network: nonEmpty(r.Network)}
	if r.WalletAddress != nil {
		wallet.Address = *r.WalletAddress
	} else {
		wallet.Address = fmt.Sprintf("user:%d", r.UserID)
	}

	src, dst := exchange, wallet
	if strings.EqualFold(r.Side, "sell") {
		src, dst = wallet, exchange
	}

	return models.UnifiedTransaction{
		ID:         r.ID,
		SourceKind: models.SourceConversion,
		Type:       models.TypeTransactionHistory,
		UserID:     r.UserID,
		Reference:  r.Reference,
		Direction:  models.DirectionConversion,
		Amount: models.Amount{
			Crypto:  crypto,
			Fiat:    fiat,
			Display: fmt.Sprintf("%s (%s)", cryptoDisplay(r.CryptoAmount, r.CryptoAsset), fiatDisplay(r.FiatAmount, r.FiatCurrency)),
		},
		Status:      models.NormalizeStatus(r.Status),
		Moderation:  mod,
		StatusAudit: audit,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   timePtr(r.UpdatedAt),
		Source:      src,
		Destination: dst,
		Conversion: &models.ConversionDetail{
			Side:     strings.ToLower(r.Side),
			Price:    r.Price,
			Merchant: nonEmpty(r.Merchant),
			TxHash:   nonEmpty(r.TxHash),
		},
	}
}

// NormalizeWalletTransfer maps a wallet send or receive.
func NormalizeWalletTransfer(r *models.WalletTransferRecord) models.UnifiedTransaction {
	mod, audit := moderation(r.ModerationColumns)
	direction := models.DirectionOutgoing
	if strings.EqualFold(r.TransferType, "receive") {
		direction = models.DirectionIncoming
	}

	src := models.Party{Address: r.FromAddress, Kind: "wallet", Network: nonEmpty(r.Network)}
	dst := models.Party{Address: r.ToAddress, Kind: "wallet", Network: nonEmpty(r.Network)}
	if direction == models.DirectionOutgoing {
		dst.Name = nonEmpty(r.Counterparty)
	} else {
		src.Name = nonEmpty(r.Counterparty)
	}

	return models.UnifiedTransaction{
		ID:         r.ID,
		SourceKind: models.SourceWalletTransfer,
		Type:       models.TypeWalletTransfer,
		UserID:     r.UserID,
		Reference:  r.Reference,
		Direction:  direction,
		Amount: models.Amount{
			Crypto:  &models.Money{Value: r.Amount, Asset: strings.ToUpper(r.Asset)},
			Display: cryptoDisplay(r.Amount, r.Asset),
		},
		Status:      models.NormalizeStatus(r.Status),
		Moderation:  mod,
		StatusAudit: audit,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   timePtr(r.UpdatedAt),
		Source:      src,
		Destination: dst,
		WalletTransfer: &models.WalletTransferDetail{
			TransferType: strings.ToLower(r.TransferType),
			Fee:          r.Fee,
			TxHash:       nonEmpty(r.TxHash),
		},
	}
}

// NormalizeFiatTransfer maps a bank deposit or withdrawal.
func NormalizeFiatTransfer(r *models.FiatTransferRecord) models.UnifiedTransaction {
	mod, audit := moderation(r.ModerationColumns)
	direction := models.DirectionOutgoing
	if strings.EqualFold(r.TransferType, "deposit") {
		direction = models.DirectionIncoming
	}

	bank := models.Party{Kind: "bank", Name: nonEmpty(r.BankName)}
	if r.AccountNumber != nil {
		bank.Address = *r.AccountNumber
	}
	if bank.Name == nil {
		bank.Name = nonEmpty(r.AccountHolder)
	}
	account := models.Party{Address: fmt.Sprintf("user:%d", r.UserID), Kind: "account"}

	src, dst := bank, account
	if direction == models.DirectionOutgoing {
		src, dst = account, bank
	}

	return models.UnifiedTransaction{
		ID:         r.ID,
		SourceKind: models.SourceFiatTransfer,
		Type:       models.TypeFiatTransfer,
		UserID:     r.UserID,
		Reference:  r.Reference,
		Direction:  direction,
		Amount: models.Amount{
			Fiat:    &models.Money{Value: r.Amount, Asset: strings.ToUpper(r.Currency)},
			Display: fiatDisplay(r.Amount, r.Currency),
		},
		Status:      models.NormalizeStatus(r.Status),
		Moderation:  mod,
		StatusAudit: audit,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   timePtr(r.UpdatedAt),
		Source:      src,
		Destination: dst,
		FiatTransfer: &models.FiatTransferDetail{
			TransferType:  strings.ToLower(r.TransferType),
			Fee:           r.Fee,
			BankReference: nonEmpty(r.BankReference),
		},
	}
}
