package source_test

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/Aidin1998/txconsole/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedLedgers(t *testing.T, db *gorm.DB) {
	t.Helper()
	testutil.Conversion(t, db, models.ConversionRecord{
		Side: "buy", CryptoAsset: "BTC", CryptoAmount: testutil.Dec("0.5"),
		FiatCurrency: "EUR", FiatAmount: testutil.Dec("15000"),
		Reference: "CONV-1", Status: "completed", CreatedAt: testutil.At(10, 0),
	})
	testutil.Conversion(t, db, models.ConversionRecord{
		Side: "sell", CryptoAsset: "ETH", CryptoAmount: testutil.Dec("2"),
		FiatCurrency: "USD", FiatAmount: testutil.Dec("6000"),
		Reference: "CONV-2", Status: "", CreatedAt: testutil.At(12, 0),
		Merchant: testutil.Str("Acme Pay"),
	})
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{
		TransferType: "receive", Asset: "BTC", Amount: testutil.Dec("0.1"),
		FromAddress: "bc1-from", ToAddress: "bc1-to", Reference: "WT-1",
		Status: "pending", CreatedAt: testutil.At(11, 0),
	})
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{
		TransferType: "send", Asset: "ETH", Amount: testutil.Dec("3"),
		FromAddress: "0xfrom", ToAddress: "0xto", Reference: "WT-2",
		Status: "failed", CreatedAt: testutil.At(9, 0),
	})
	testutil.FiatTransfer(t, db, models.FiatTransferRecord{
		TransferType: "deposit", Currency: "EUR", Amount: testutil.Dec("250.5"),
		Reference: "FT-1", Status: "processing", CreatedAt: testutil.At(8, 0),
		BankName: testutil.Str("First Bank"),
	})
}

func TestConversionPageOrderAndNormalize(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	ad := source.NewConversionAdapter(db, zap.NewNop())
	ctx := context.Background()

	rows, err := ad.Page(ctx, source.PageRequest{Sort: source.DefaultSort, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "CONV-2", rows[0].Reference)
	assert.Equal(t, models.StatusPending, rows[0].Status, "empty status reads as pending")
	assert.Equal(t, models.TypeTransactionHistory, rows[0].Type)
	assert.Equal(t, models.DirectionConversion, rows[0].Direction)
	require.NotNil(t, rows[0].Conversion)
	assert.Equal(t, "sell", rows[0].Conversion.Side)
	assert.Equal(t, "Acme Pay", *rows[0].Conversion.Merchant)
	assert.Nil(t, rows[0].Conversion.TxHash)
	assert.Equal(t, "wallet", rows[0].Source.Kind)

	rows, err = ad.Page(ctx, source.PageRequest{Sort: source.Sort{Key: source.SortAmount, Order: source.SortAsc}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "CONV-1", rows[0].Reference)
}

func TestApplicabilityAndDirection(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	reg := source.NewGormRegistry(db, zap.NewNop())
	ctx := context.Background()

	count := func(kind models.SourceKind, f source.Filter) int64 {
		ad, ok := reg.Get(kind)
		require.True(t, ok)
		n, err := ad.Count(ctx, f)
		require.NoError(t, err)
		return n
	}

	incoming := source.Filter{Type: source.TypeIncoming}
	assert.EqualValues(t, 0, count(models.SourceConversion, incoming))
	assert.EqualValues(t, 1, count(models.SourceWalletTransfer, incoming))
	assert.EqualValues(t, 1, count(models.SourceFiatTransfer, incoming))

	outgoing := source.Filter{Type: source.TypeOutgoing}
	assert.EqualValues(t, 1, count(models.SourceWalletTransfer, outgoing))
	assert.EqualValues(t, 0, count(models.SourceFiatTransfer, outgoing))

	fiat := source.Filter{Asset: source.AssetFiat}
	assert.EqualValues(t, 0, count(models.SourceConversion, fiat))
	assert.EqualValues(t, 0, count(models.SourceWalletTransfer, fiat))
	assert.EqualValues(t, 1, count(models.SourceFiatTransfer, fiat))
}

func TestFilters(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	conv := source.NewConversionAdapter(db, zap.NewNop())
	wallet := source.NewWalletTransferAdapter(db, zap.NewNop())
	fiat := source.NewFiatTransferAdapter(db, zap.NewNop())
	ctx := context.Background()

	pending := models.StatusPending
	n, err := conv.Count(ctx, source.Filter{Status: &pending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "null status matches pending")

	n, err = conv.Count(ctx, source.Filter{Currency: "usd"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "currency matches the fiat leg")

	n, err = wallet.Count(ctx, source.Filter{Search: "0xto"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = fiat.Count(ctx, source.Filter{Search: "first bank"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	from := testutil.At(10, 30)
	n, err = conv.Count(ctx, source.Filter{DateFrom: &from})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	to := testutil.At(9, 30)
	n, err = wallet.Count(ctx, source.Filter{DateTo: &to})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLegacyStatusCasing(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{
		Amount: testutil.Dec("1"), Reference: "WT-3", Status: " Completed", CreatedAt: testutil.At(7, 0),
	})
	ad := source.NewWalletTransferAdapter(db, zap.NewNop())
	ctx := context.Background()

	completed := models.StatusCompleted
	n, err := ad.Count(ctx, source.Filter{Status: &completed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	page, err := ad.Page(ctx, source.PageRequest{Sort: source.Sort{Key: source.SortStatus, Order: source.SortAsc}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 3)
	for i := 1; i < len(page); i++ {
		assert.LessOrEqual(t, page[i-1].Status.Ordinal(), page[i].Status.Ordinal())
	}
	assert.Equal(t, models.StatusCompleted, page[1].Status)

	stats, err := ad.Stats(ctx, source.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ByStatus[models.StatusCompleted])

	err = ad.ApplyStatus(ctx, source.StatusChange{
		ID: 3, Expected: models.StatusCompleted, To: models.StatusFailed, Actor: "op-1", At: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestSearchMatchesWildcardsLiterally(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	testutil.WalletTransfer(t, db, models.WalletTransferRecord{
		Amount: testutil.Dec("1"), Reference: "WT_3", Status: "pending",
	})
	ad := source.NewWalletTransferAdapter(db, zap.NewNop())
	ctx := context.Background()

	cases := map[string]int64{
		"_":   1,
		"%":   0,
		"wt_": 1,
		"wt-": 2,
		`wt\`: 0,
	}
	for search, want := range cases {
		n, err := ad.Count(ctx, source.Filter{Search: search})
		require.NoError(t, err)
		assert.EqualValues(t, want, n, search)
	}
}

func TestApplyStatusCompareAndSet(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	ad := source.NewWalletTransferAdapter(db, zap.NewNop())
	ctx := context.Background()
	at := time.Now().UTC()

	err := ad.ApplyStatus(ctx, source.StatusChange{ID: 1, Expected: models.StatusPending, To: models.StatusProcessing, Actor: "op-1", At: at})
	require.NoError(t, err)

	rec, err := ad.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, rec.Status)
	assert.Equal(t, "op-1", *rec.StatusAudit.UpdatedBy)

	err = ad.ApplyStatus(ctx, source.StatusChange{ID: 1, Expected: models.StatusPending, To: models.StatusCompleted, Actor: "op-2", At: at})
	assert.True(t, errors.Is(err, errors.Conflict))

	err = ad.ApplyStatus(ctx, source.StatusChange{ID: 404, To: models.StatusCompleted, Actor: "op-2", At: at})
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestApplyFlagAndProof(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	ad := source.NewFiatTransferAdapter(db, zap.NewNop())
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, ad.ApplyFlag(ctx, source.FlagChange{ID: 1, Flagged: true, Actor: "op-1", Reason: testutil.Str("odd amount"), At: at}))
	rec, err := ad.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rec.Moderation.IsFlagged)
	assert.Equal(t, "odd amount", *rec.Moderation.FlaggedReason)
	assert.Equal(t, "op-1", *rec.Moderation.FlaggedBy)

	flagged := true
	n, err := ad.Count(ctx, source.Filter{Flagged: &flagged})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, ad.ApplyFlag(ctx, source.FlagChange{ID: 1, Flagged: false, Actor: "op-1", At: at}))
	rec, err = ad.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rec.Moderation.IsFlagged)
	assert.Nil(t, rec.Moderation.FlaggedReason)
	assert.Nil(t, rec.Moderation.FlaggedBy)
	assert.Nil(t, rec.Moderation.FlaggedAt)

	require.NoError(t, ad.ApplyStatus(ctx, source.StatusChange{
		ID: 1, To: models.StatusCompleted, Actor: "op-1", Proof: testutil.Str("BANKREF-9"), At: at,
	}))
	rec, err = ad.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "BANKREF-9", *rec.FiatTransfer.BankReference)
}

func TestApplyStatusWithProofIsAtomic(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	ad := source.NewWalletTransferAdapter(db, zap.NewNop())
	ctx := context.Background()
	at := time.Now().UTC()

	before, err := ad.Get(ctx, 1)
	require.NoError(t, err)

	// a lost compare-and-set must not leave the proof behind
	err = ad.ApplyStatus(ctx, source.StatusChange{
		ID: 1, Expected: models.StatusFailed, To: models.StatusCompleted, Actor: "op-1", Proof: testutil.Str("0xdead"), At: at,
	})
	assert.True(t, errors.Is(err, errors.Conflict))

	after, err := ad.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Nil(t, after.TxHash())
}

func TestGetNotFound(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := source.NewConversionAdapter(db, zap.NewNop()).Get(context.Background(), 42)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	seedLedgers(t, db)
	ad := source.NewConversionAdapter(db, zap.NewNop())

	st, err := ad.Stats(context.Background(), source.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Total)
	assert.EqualValues(t, 1, st.ByStatus[models.StatusCompleted])
	assert.EqualValues(t, 1, st.ByStatus[models.StatusPending])
	assert.EqualValues(t, 0, st.Flagged)

	volumes := map[string]string{}
	for _, v := range st.Volumes {
		volumes[v.Asset] = v.Amount.String()
	}
	assert.Equal(t, "0.5", volumes["BTC"])
	assert.Equal(t, "6000", volumes["USD"])

	st, err = ad.Stats(context.Background(), source.Filter{Type: source.TypeFiatTransfer})
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.Total)
}

func TestFilterValidate(t *testing.T) {
	from, to := testutil.At(12, 0), testutil.At(8, 0)
	assert.Error(t, source.Filter{DateFrom: &from, DateTo: &to}.Validate())
	assert.Error(t, source.Filter{Type: source.TypeBuySell, Asset: source.AssetFiat}.Validate())
	assert.Error(t, source.Filter{Type: source.TypeFiatTransfer, Asset: source.AssetCrypto}.Validate())
	bad := models.Status("lost")
	assert.Error(t, source.Filter{Status: &bad}.Validate())
	assert.NoError(t, source.Filter{Type: source.TypeIncoming, Asset: source.AssetFiat}.Validate())

	tf, err := source.ParseTypeFilter("transaction_history")
	require.NoError(t, err)
	assert.Equal(t, source.TypeConversion, tf)

	s, err := source.ParseSort("createdAt", "ASC")
	require.NoError(t, err)
	assert.Equal(t, source.Sort{Key: source.SortCreatedAt, Order: source.SortAsc}, s)

	_, err = source.ParseSort("fee", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")

	_, err = source.ParseTypeFilter("convertion")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "conversion"?`)

	_, err = source.ParseSort("ammount", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "amount"?`)
}
