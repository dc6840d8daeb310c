package ledger

import (
	"context"
	"time"
)

// Type classifies what moved money in or out of a wallet.
type Type string

const (
	TypeDeposit                Type = "DEPOSIT"
	TypeServiceProviderEarning Type = "SERVICE_PROVIDER_EARNING"
	TypeWithdrawal             Type = "WITHDRAWAL"
	TypeSystemAdjustment       Type = "SYSTEM_ADJUSTMENT"
)

// Valid reports whether t is one of the known entry types.
func (t Type) Valid() bool {
	switch t {
	case TypeDeposit, TypeServiceProviderEarning, TypeWithdrawal, TypeSystemAdjustment:
		return true
	}
	return false
}

// Status is the settlement state of an entry. Only COMPLETED entries count
// towards a wallet's total; PENDING entries record holds that move funds
// between balance and pending balance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Entry is one append-only wallet transaction. Amount is the signed effect:
// positive for money in, negative for money out or placed on hold.
type Entry struct {
	ID          string
	WalletID    string
	BookingID   string
	Reference   string
	Amount      int64
	Type        Type
	Status      Status
	Description string
	CreatedAt   time.Time
}

// Order selects the chronological direction of a query.
type Order string

const (
	OrderOldestFirst Order = "asc"
	OrderNewestFirst Order = "desc"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Filter narrows a ledger query. Zero From/To are open bounds; To is exclusive.
type Filter struct {
	WalletID string
	From     time.Time
	To       time.Time
	Types    []Type
	Statuses []Status
	Order    Order
	Limit    int
	Offset   int
}

// Page is one slice of a query result plus the unpaged match count.
type Page struct {
	Entries []Entry
	Total   int
}

// Ledger defines the contract implemented by ledger backends.
// Append is reserved for the wallet store, which calls it inside the same
// unit as the balance change.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) (Page, error)
}

// Replay returns the net effect of the COMPLETED entries, which must equal a
// wallet's balance plus pending balance.
func Replay(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		if e.Status == StatusCompleted {
			total += e.Amount
		}
	}
	return total
}

func (f Filter) normalized() Filter {
	if f.Order != OrderNewestFirst {
		f.Order = OrderOldestFirst
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) matches(e Entry) bool {
	if f.WalletID != "" && e.WalletID != f.WalletID {
		return false
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.CreatedAt.Before(f.To) {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, e.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, e.Status) {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
