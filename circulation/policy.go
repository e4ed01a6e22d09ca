package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy holds the configurable circulation rules.
type Policy struct {
	// 罚款超过该上限不可借阅/预约
	FineCeiling    decimal.Decimal
	MaxActiveLoans int
	LoanPeriod     time.Duration
	// 自定义到期日最多为 now + MaxDueHorizon
	MaxDueHorizon time.Duration
	// 续借后的到期日最多为 now + MaxRenewalHorizon
	MaxRenewalHorizon time.Duration
	DailyRate         decimal.Decimal
	// MaxFinePerLoan caps a single overdue fine; zero means uncapped.
	MaxFinePerLoan decimal.Decimal
	PickupWindow   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		FineCeiling:       decimal.NewFromInt(10),
		MaxActiveLoans:    5,
		LoanPeriod:        14 * day,
		MaxDueHorizon:     30 * day,
		MaxRenewalHorizon: 30 * day,
		DailyRate:         decimal.RequireFromString("0.50"),
		MaxFinePerLoan:    decimal.Zero,
		PickupWindow:      3 * day,
	}
}

// DaysOverdue counts whole days late, truncated: any lateness under 24h is 0.
func DaysOverdue(due, returned time.Time) int {
	if !returned.After(due) {
		return 0
	}
	return int(returned.Sub(due) / day)
}

// OverdueFine = daysOverdue × dailyRate, capped by MaxFinePerLoan when set.
func (p Policy) OverdueFine(due, returned time.Time) decimal.Decimal {
	days := DaysOverdue(due, returned)
	if days <= 0 {
		return decimal.Zero
	}
	amount := p.DailyRate.Mul(decimal.NewFromInt(int64(days)))
	if p.MaxFinePerLoan.IsPositive() && amount.GreaterThan(p.MaxFinePerLoan) {
		amount = p.MaxFinePerLoan
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
