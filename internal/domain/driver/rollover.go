package driver

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleDays is the length of a salary cycle.
const CycleDays = 30

const day = 24 * time.Hour

// RolloverSummary describes a rollover that was applied to a driver.
type RolloverSummary struct {
	Closed       Cycle
	Opened       Cycle
	CyclesPassed int
	CarryForward decimal.Decimal
}

// Rollover closes the active cycle of d when at least CycleDays whole days
// have passed since it was last opened, and opens the next one seeded with
// the unspent balance. It mutates d in place, performs no I/O, and reports
// whether anything changed.
//
// When several periods have elapsed they collapse into one archived record
// and the cycle number advances by the number of periods. Zero timestamps
// and clock skew are treated as "nothing due".
func Rollover(now time.Time, d *Driver) (RolloverSummary, bool) {
	cur := d.CurrentCycle
	if now.IsZero() || cur.LastUpdated.IsZero() {
		return RolloverSummary{}, false
	}
	elapsedDays := int(now.Sub(cur.LastUpdated) / day)
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	if elapsedDays < CycleDays {
		return RolloverSummary{}, false
	}
	cyclesPassed := elapsedDays / CycleDays

	closed := cur
	closed.EndDate = cur.StartDate.AddDate(0, 0, CycleDays*cyclesPassed)
	closed.Status = StatusCompleted
	d.SalaryCycles = append(d.SalaryCycles, closed)

	carry := cur.Remaining()
	d.CurrentCycle = Cycle{
		Number:      cur.Number + cyclesPassed,
		StartDate:   closed.EndDate,
		BaseSalary:  carry,
		Advances:    decimal.Zero,
		TotalPaid:   decimal.Zero,
		Status:      StatusActive,
		LastUpdated: now,
	}
	return RolloverSummary{
		Closed:       closed,
		Opened:       d.CurrentCycle,
		CyclesPassed: cyclesPassed,
		CarryForward: carry,
	}, true
}
