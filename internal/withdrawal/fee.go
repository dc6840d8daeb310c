package withdrawal

import "github.com/shopspring/decimal"

// FeeSchedule prices a withdrawal as a flat amount plus a proportional rate.
type FeeSchedule struct {
	Flat int64
	Rate decimal.Decimal
}

// Fee returns Flat + Rate×amount rounded half-up to whole đồng.
func (f FeeSchedule) Fee(amount int64) int64 {
	variable := f.Rate.Mul(decimal.NewFromInt(amount)).Round(0)
	return f.Flat + variable.IntPart()
}
