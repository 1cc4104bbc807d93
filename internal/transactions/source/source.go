// Package source exposes the three transaction ledgers behind one adapter
// contract. Adapters translate a generic Filter and Sort into ledger specific
// queries and hand back normalized records.
package source

import (
	"context"
	"time"

	"github.com/Aidin1998/txconsole/pkg/models"
	"github.com/shopspring/decimal"
)

// SortKey is the column a page is ordered by.
type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortAmount    SortKey = "amount"
	SortStatus    SortKey = "status"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type Sort struct {
	Key   SortKey
	Order SortOrder
}

// DefaultSort is newest first.
var DefaultSort = Sort{Key: SortCreatedAt, Order: SortDesc}

// PageRequest asks an adapter for Limit records starting at Offset.
type PageRequest struct {
	Filter Filter
	Sort   Sort
	Offset int
	Limit  int
}

// StatusChange is a single status transition. When Expected is set the
// write only happens if the stored status still equals it. Proof, when set,
// lands on the ledger's proof column in the same update.
type StatusChange struct {
	ID       uint64
	Expected models.Status
	To       models.Status
	Actor    string
	Notes    *string
	Proof    *string
	At       time.Time
}

// FlagChange sets or clears the flag of a record.
type FlagChange struct {
	ID      uint64
	Flagged bool
	Actor   string
	Reason  *string
	At      time.Time
}

// Volume is the summed amount for one asset or currency.
type Volume struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}

// Stats aggregates one ledger for a filter.
type Stats struct {
	Kind     models.SourceKind       `json:"type"`
	Total    int64                   `json:"total"`
	Flagged  int64                   `json:"flagged"`
	ByStatus map[models.Status]int64 `json:"byStatus"`
	Volumes  []Volume                `json:"volumes"`
}

// Reader is the read half of an adapter.
type Reader interface {
	Kind() models.SourceKind
	// Applies reports whether the filter can match anything in the ledger.
	Applies(f Filter) bool
	Count(ctx context.Context, f Filter) (int64, error)
	Page(ctx context.Context, req PageRequest) ([]models.UnifiedTransaction, error)
}

// Adapter is the full contract of a ledger.
type Adapter interface {
	Reader
	Get(ctx context.Context, id uint64) (*models.UnifiedTransaction, error)
	ApplyStatus(ctx context.Context, change StatusChange) error
	ApplyFlag(ctx context.Context, change FlagChange) error
	Stats(ctx context.Context, f Filter) (*Stats, error)
}

// Registry resolves adapters by kind.
type Registry struct {
	adapters map[models.SourceKind]Adapter
	ordered  []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.SourceKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	for _, k := range models.AllSourceKinds {
		if a, ok := r.adapters[k]; ok {
			r.ordered = append(r.ordered, a)
		}
	}
	return r
}

func (r *Registry) Get(kind models.SourceKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// All returns the adapters in tie-break order.
func (r *Registry) All() []Adapter {
	return r.ordered
}

// Readers returns the adapters as readers, in tie-break order.
func (r *Registry) Readers() []Reader {
	out := make([]Reader, 0, len(r.ordered))
	for _, a := range r.ordered {
		out = append(out, a)
	}
	return out
}
