package merger

import (
	"github.com/Aidin1998/txconsole/internal/transactions/source"
	"github.com/Aidin1998/txconsole/pkg/models"
)

// Compare orders two records by the sort key only. It must agree with the
// ORDER BY each adapter issues for the same key.
func Compare(a, b *models.UnifiedTransaction, key source.SortKey) int {
	switch key {
	case source.SortAmount:
		return a.Amount.Primary().Cmp(b.Amount.Primary())
	case source.SortStatus:
		return a.Status.Ordinal() - b.Status.Ordinal()
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// Before reports whether a ranks ahead of b. Equal keys fall back to
// (sourceKind, id) ascending regardless of the sort order.
func Before(a, b *models.UnifiedTransaction, s source.Sort) bool {
	c := Compare(a, b, s.Key)
	if s.Order == source.SortDesc {
		c = -c
	}
	if c != 0 {
		return c < 0
	}
	return a.Key().Less(b.Key())
}
