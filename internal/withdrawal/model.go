package withdrawal

import (
	"strings"
	"time"

	"github.com/petnest/settlement/internal/apperrors"
)

// Status is a withdrawal lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusFailed     Status = "FAILED"
)

// transitions lists the legal target states for each source state.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusFailed},
	StatusApproved:   {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusProcessing, StatusCompleted, StatusRejected, StatusFailed:
		return true
	}
	return false
}

// Bank is the payout destination captured when the withdrawal was requested.
type Bank struct {
	Code          string
	Name          string
	AccountNumber string
	HolderName    string
}

func (b Bank) normalized() Bank {
	return Bank{
		Code:          strings.ToUpper(strings.TrimSpace(b.Code)),
		Name:          strings.TrimSpace(b.Name),
		AccountNumber: strings.ReplaceAll(strings.TrimSpace(b.AccountNumber), " ", ""),
		HolderName:    strings.ToUpper(strings.TrimSpace(b.HolderName)),
	}
}

func (b Bank) validate() error {
	switch {
	case b.Code == "":
		return apperrors.Invalid("bank.code", "required")
	case b.Name == "":
		return apperrors.Invalid("bank.name", "required")
	case b.AccountNumber == "":
		return apperrors.Invalid("bank.account_number", "required")
	case b.HolderName == "":
		return apperrors.Invalid("bank.holder_name", "required")
	}
	for _, r := range b.AccountNumber {
		if r < '0' || r > '9' {
			return apperrors.Invalid("bank.account_number", "must contain digits only")
		}
	}
	return nil
}

// Withdrawal is a provider's request to move money from the wallet to a bank
// account. Amount is reserved on creation; NetAmount is what the bank transfer
// pays out.
type Withdrawal struct {
	ID              string
	Code            string
	WalletID        string
	ProviderID      string
	Amount          int64
	Fee             int64
	NetAmount       int64
	Status          Status
	Bank            Bank
	AdminNote       string
	ProcessedBy     string
	ProcessedAt     *time.Time
	TransactionRef  string
	RejectionReason string
	FailureReason   string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Filter narrows a withdrawal listing.
type Filter struct {
	ProviderID string
	Status     Status
	Limit      int
	Offset     int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f Filter) matches(w Withdrawal) bool {
	if f.ProviderID != "" && w.ProviderID != f.ProviderID {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	return true
}
