package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/txconsole/pkg/errors"
	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/agnivade/levenshtein"
)

// TypeFilter narrows the listing by ledger or by direction.
type TypeFilter string

const (
	TypeAll            TypeFilter = "all"
	TypeIncoming       TypeFilter = "incoming"
	TypeOutgoing       TypeFilter = "outgoing"
	TypeConversion     TypeFilter = "conversion"
	TypeBuySell        TypeFilter = "buy_sell"
	TypeWalletTransfer TypeFilter = "wallet_transfer"
	TypeFiatTransfer   TypeFilter = "fiat_transfer"
)

// AssetClass restricts records to crypto or fiat denominated ledgers.
type AssetClass string

const (
	AssetAny    AssetClass = ""
	AssetCrypto AssetClass = "crypto"
	AssetFiat   AssetClass = "fiat"
)

// Filter is the ledger independent query shared by list, stats and export.
type Filter struct {
	Type     TypeFilter
	Status   *models.Status
	Currency string
	Asset    AssetClass
	DateFrom *time.Time
	DateTo   *time.Time
	Flagged  *bool
	Search   string
}

// ParseTypeFilter maps the query value to a TypeFilter. Empty means all.
func ParseTypeFilter(s string) (TypeFilter, error) {
	switch t := TypeFilter(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TypeAll, nil
	case TypeAll, TypeIncoming, TypeOutgoing, TypeConversion, TypeBuySell, TypeWalletTransfer, TypeFiatTransfer:
		return t, nil
	case models.TypeTransactionHistory:
		return TypeConversion, nil
	default:
		return "", errors.Invalid.Explain("unknown type %q%s", s, suggest(s, typeNames)).WithField("oneof", "type", "unknown type")
	}
}

func ParseAssetClass(s string) (AssetClass, error) {
	switch a := AssetClass(strings.ToLower(strings.TrimSpace(s))); a {
	case AssetAny, AssetCrypto, AssetFiat:
		return a, nil
	default:
		return "", errors.Invalid.Explain("asset must be crypto or fiat").WithField("oneof", "asset", "must be crypto or fiat")
	}
}

func ParseSort(key, order string) (Sort, error) {
	s := DefaultSort
	switch k := SortKey(strings.ToLower(strings.TrimSpace(key))); k {
	case "":
	case "createdat":
		s.Key = SortCreatedAt
	case SortCreatedAt, SortAmount, SortStatus:
		s.Key = k
	default:
		return s, errors.Invalid.Explain("sortBy must be one of created_at, amount, status%s", suggest(key, sortNames)).WithField("oneof", "sortBy", "invalid sort key")
	}
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(order))); o {
	case "":
	case SortAsc, SortDesc:
		s.Order = o
	default:
		return s, errors.Invalid.Explain("sortOrder must be asc or desc").WithField("oneof", "sortOrder", "invalid sort order")
	}
	return s, nil
}

var (
	typeNames = []string{
		string(TypeAll), string(TypeIncoming), string(TypeOutgoing), string(TypeConversion),
		string(TypeBuySell), string(TypeWalletTransfer), string(TypeFiatTransfer),
	}
	sortNames = []string{string(SortCreatedAt), string(SortAmount), string(SortStatus)}
)

// suggest returns a "did you mean" hint for near misses, or "".
func suggest(input string, candidates []string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}
	best, bestDist := "", len(input)/2+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("; did you mean %q?", best)
}

// Validate rejects illegal filter combinations.
func (f Filter) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return errors.Invalid.Explain("unknown status %q", *f.Status).WithField("oneof", "status", "unknown status")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return errors.Invalid.Explain("dateFrom must not be after dateTo").WithField("range", "dateFrom", "after dateTo")
	}
	if f.Asset == AssetFiat && (f.Type == TypeConversion || f.Type == TypeBuySell || f.Type == TypeWalletTransfer) {
		return errors.Invalid.Explain("asset=fiat cannot be combined with type=%s", f.Type)
	}
	if f.Asset == AssetCrypto && f.Type == TypeFiatTransfer {
		return errors.Invalid.Explain("asset=crypto cannot be combined with type=%s", f.Type)
	}
	return nil
}

func (f Filter) typeOrAll() TypeFilter {
	if f.Type == "" {
		return TypeAll
	}
	return f.Type
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchPattern matches the search text literally anywhere in a column.
func (f Filter) searchPattern() string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(f.Search))) + "%"
}
