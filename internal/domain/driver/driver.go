package driver

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places a ledger amount can carry.
// The storage columns use the same scale.
const MoneyScale = 4

// FitsScale reports whether amount is exact at MoneyScale decimal places.
func FitsScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyScale))
}

// CycleStatus is the lifecycle state of a salary cycle.
type CycleStatus string

const (
	StatusActive         CycleStatus = "active"
	StatusCompleted      CycleStatus = "completed"
	StatusPendingPayment CycleStatus = "pending_payment"
)

// TransactionType classifies a ledger entry within a cycle.
type TransactionType string

const (
	TxSalary     TransactionType = "salary"
	TxAdvance    TransactionType = "advance"
	TxAdjustment TransactionType = "adjustment"
	TxPayment    TransactionType = "payment"
)

// AdvanceStatus is the approval state of a driver-level advance record.
type AdvanceStatus string

const (
	AdvancePending  AdvanceStatus = "pending"
	AdvanceApproved AdvanceStatus = "approved"
	AdvanceRejected AdvanceStatus = "rejected"
	AdvanceRepaid   AdvanceStatus = "repaid"
)

// Transaction is an immutable ledger entry scoped to one cycle.
// Amount is signed for adjustments.
type Transaction struct {
	ID        uuid.UUID
	Seq       int // position within the owning cycle, starting at 1
	Type      TransactionType
	Amount    decimal.Decimal
	Date      time.Time
	Note      string
	Reference string
}

// Cycle is one 30-day accounting period. The active cycle has a zero EndDate;
// once closed, Advances holds the cycle's total advances and the record is frozen.
type Cycle struct {
	Number       int
	StartDate    time.Time
	EndDate      time.Time
	BaseSalary   decimal.Decimal
	Advances     decimal.Decimal
	TotalPaid    decimal.Decimal
	Status       CycleStatus
	LastUpdated  time.Time
	Transactions []Transaction
}

// Remaining is the unspent part of the cycle's base salary, never negative.
func (c Cycle) Remaining() decimal.Decimal {
	return decimal.Max(decimal.Zero, c.BaseSalary.Sub(c.Advances))
}

// Advance is the driver-level audit record of a cash advance, kept
// independently of cycle boundaries.
type Advance struct {
	Seq        int
	Amount     decimal.Decimal
	Date       time.Time
	Notes      string
	Status     AdvanceStatus
	ApprovedBy int64
	ApprovedAt time.Time
}

// Profile is the identity part of a driver, without the ledger.
type Profile struct {
	ID               uuid.UUID
	Name             string
	TelegramID       int64 // 0 when the driver has no linked chat
	RegistrationDate time.Time
}

// Driver is the aggregate root of the salary ledger.
type Driver struct {
	Profile
	Version      int64
	CurrentCycle Cycle
	SalaryCycles []Cycle
	Advances     []Advance
}

// New creates a driver whose first cycle opens on the registration date
// with a zero base salary.
func New(id uuid.UUID, name string, telegramID int64, registrationDate time.Time) *Driver {
	return &Driver{
		Profile: Profile{
			ID:               id,
			Name:             name,
			TelegramID:       telegramID,
			RegistrationDate: registrationDate,
		},
		CurrentCycle: Cycle{
			Number:      1,
			StartDate:   registrationDate,
			BaseSalary:  decimal.Zero,
			Advances:    decimal.Zero,
			TotalPaid:   decimal.Zero,
			Status:      StatusActive,
			LastUpdated: registrationDate,
		},
	}
}

func (d *Driver) appendTransaction(txType TransactionType, amount decimal.Decimal, at time.Time, note string) Transaction {
	tx := Transaction{
		ID:     uuid.New(),
		Seq:    len(d.CurrentCycle.Transactions) + 1,
		Type:   txType,
		Amount: amount,
		Date:   at,
		Note:   note,
	}
	d.CurrentCycle.Transactions = append(d.CurrentCycle.Transactions, tx)
	return tx
}

// SetBaseSalary replaces the active cycle's base salary and records it.
func (d *Driver) SetBaseSalary(amount decimal.Decimal, note string, at time.Time) Transaction {
	d.CurrentCycle.BaseSalary = amount
	return d.appendTransaction(TxSalary, amount, at, note)
}

// AdjustBaseSalary applies a signed delta to the base salary, clamping at zero.
// The recorded transaction carries the requested delta, not the clamped one.
func (d *Driver) AdjustBaseSalary(delta decimal.Decimal, note string, at time.Time) Transaction {
	d.CurrentCycle.BaseSalary = decimal.Max(decimal.Zero, d.CurrentCycle.BaseSalary.Add(delta))
	return d.appendTransaction(TxAdjustment, delta, at, note)
}

// GiveAdvance draws amount against the active cycle and records it both in the
// cycle ledger and in the driver-level advance list.
func (d *Driver) GiveAdvance(amount decimal.Decimal, note string, date time.Time, approvedBy int64, approvedAt time.Time) Transaction {
	d.CurrentCycle.Advances = d.CurrentCycle.Advances.Add(amount)
	tx := d.appendTransaction(TxAdvance, amount, date, note)
	d.Advances = append(d.Advances, Advance{
		Seq:        len(d.Advances) + 1,
		Amount:     amount,
		Date:       date,
		Notes:      note,
		Status:     AdvanceApproved,
		ApprovedBy: approvedBy,
		ApprovedAt: approvedAt,
	})
	return tx
}

// Clone returns a deep copy so a caller can discard a failed mutation.
func (d *Driver) Clone() *Driver {
	c := *d
	c.CurrentCycle = cloneCycle(d.CurrentCycle)
	c.SalaryCycles = make([]Cycle, len(d.SalaryCycles))
	for i, cy := range d.SalaryCycles {
		c.SalaryCycles[i] = cloneCycle(cy)
	}
	c.Advances = append([]Advance(nil), d.Advances...)
	return &c
}

func cloneCycle(c Cycle) Cycle {
	c.Transactions = append([]Transaction(nil), c.Transactions...)
	return c
}

// Validate checks the aggregate invariants of the ledger.
func (d *Driver) Validate() error {
	if d.CurrentCycle.Status != StatusActive {
		return fmt.Errorf("current cycle %d has status %q", d.CurrentCycle.Number, d.CurrentCycle.Status)
	}
	prev := 0
	for _, c := range d.SalaryCycles {
		if c.Status == StatusActive {
			return fmt.Errorf("archived cycle %d is still active", c.Number)
		}
		if c.Number <= prev {
			return fmt.Errorf("cycle number %d does not increase after %d", c.Number, prev)
		}
		prev = c.Number
	}
	if d.CurrentCycle.Number <= prev {
		return fmt.Errorf("current cycle number %d does not increase after %d", d.CurrentCycle.Number, prev)
	}
	sum := decimal.Zero
	for _, tx := range d.CurrentCycle.Transactions {
		if tx.Type == TxAdvance {
			sum = sum.Add(tx.Amount)
		}
	}
	if !sum.Equal(d.CurrentCycle.Advances) {
		return fmt.Errorf("current advances %s do not match advance transactions %s", d.CurrentCycle.Advances, sum)
	}
	return nil
}
