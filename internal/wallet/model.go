package wallet

import (
	"fmt"
	"math"
	"time"

	"github.com/petnest/settlement/internal/apperrors"
)

// Wallet is a service provider's account. Balance is spendable; PendingBalance
// is reserved for withdrawals in flight. Both are mutated only through the
// Service operations.
type Wallet struct {
	ID             string
	OwnerID        string
	Balance        int64
	PendingBalance int64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Total is the amount that replaying the wallet's completed ledger entries yields.
func (w Wallet) Total() int64 {
	return w.Balance + w.PendingBalance
}

// Balance is a point-in-time view of a wallet's funds.
type Balance struct {
	WalletID  string
	Available int64
	Pending   int64
	AsOf      time.Time
}

// credit refuses amounts that would overflow Balance + PendingBalance; reserve
// and release only move money within that total.
func (w Wallet) credit(amount int64) (Wallet, error) {
	if amount > math.MaxInt64-w.Total() {
		return w, apperrors.Invalid("amount", fmt.Sprintf("credit %d overflows wallet total %d", amount, w.Total()))
	}
	w.Balance += amount
	return w, nil
}

func (w Wallet) reserve(amount int64) (Wallet, error) {
	if w.Balance < amount {
		return w, fmt.Errorf("reserve %d with balance %d: %w", amount, w.Balance, apperrors.ErrInsufficientFunds)
	}
	w.Balance -= amount
	w.PendingBalance += amount
	return w, nil
}

func (w Wallet) release(amount int64) (Wallet, error) {
	if w.PendingBalance < amount {
		return w, fmt.Errorf("release %d with pending %d: %w", amount, w.PendingBalance, apperrors.ErrInsufficientFunds)
	}
	w.PendingBalance -= amount
	w.Balance += amount
	return w, nil
}

func (w Wallet) debitPending(amount int64) (Wallet, error) {
	if w.PendingBalance < amount {
		return w, fmt.Errorf("debit %d with pending %d: %w", amount, w.PendingBalance, apperrors.ErrInsufficientFunds)
	}
	w.PendingBalance -= amount
	return w, nil
}
