package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/cabapp/salary-ledger/internal/app"
	"github.com/cabapp/salary-ledger/internal/domain/driver"
	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatEvent renders a ledger event as a one-message notification.
func FormatEvent(e event.Event) string {
	var b strings.Builder
	switch e.Type {
	case event.SalarySet:
		fmt.Fprintf(&b, "Salary for %s set to %s (cycle %d).", e.DriverName, money(e.Amount), e.CycleNumber)
	case event.SalaryAdjusted:
		fmt.Fprintf(&b, "Salary for %s adjusted by %s to %s (cycle %d).", e.DriverName, signed(e.Amount), money(e.BaseSalary), e.CycleNumber)
	case event.AdvanceGiven:
		fmt.Fprintf(&b, "Advance of %s given to %s (cycle %d).", money(e.Amount), e.DriverName, e.CycleNumber)
	case event.CycleRolledOver:
		fmt.Fprintf(&b, "New salary cycle %d opened for %s with %s carried forward.", e.CycleNumber, e.DriverName, money(e.BaseSalary))
	default:
		fmt.Fprintf(&b, "Ledger event %s for %s.", e.Type, e.DriverName)
	}
	fmt.Fprintf(&b, "\nRemaining: %s", money(e.Remaining))
	if e.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s", e.Note)
	}
	return b.String()
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return money(d)
	}
	return "+" + money(d)
}

// FormatCycleStatus renders the reply to a ledger mutation.
func FormatCycleStatus(s *app.CycleStatus) string {
	var b strings.Builder
	if s.RolledOver {
		fmt.Fprintf(&b, "A new salary cycle was opened before this change.\n")
	}
	fmt.Fprintf(&b, "%s, cycle %d\n", s.DriverName, s.CurrentCycle.Number)
	fmt.Fprintf(&b, "Base salary: %s\n", money(s.CurrentCycle.BaseSalary))
	fmt.Fprintf(&b, "Advances: %s\n", money(s.CurrentCycle.Advances))
	fmt.Fprintf(&b, "Remaining: %s", money(s.Remaining))
	return b.String()
}

// FormatSalaryStatus renders the current cycle, the archive and recent transactions.
func FormatSalaryStatus(s *app.SalaryStatus) string {
	var b strings.Builder
	c := s.CurrentCycle
	fmt.Fprintf(&b, "--- %s ---\n", s.DriverName)
	fmt.Fprintf(&b, "Registered: %s\n", s.RegistrationDate.Format(dateLayout))
	fmt.Fprintf(&b, "Cycle %d since %s\n", c.Number, c.StartDate.Format(dateLayout))
	fmt.Fprintf(&b, "Base salary: %s, advances: %s, remaining: %s\n", money(c.BaseSalary), money(c.Advances), money(c.Remaining()))

	if len(s.SalaryHistory) > 0 {
		b.WriteString("\nPast cycles:\n")
		for _, h := range s.SalaryHistory {
			b.WriteString(formatArchivedCycle(h))
		}
	}
	b.WriteString("\nRecent transactions:\n")
	b.WriteString(FormatHistory(s.RecentTransactions))
	return strings.TrimRight(b.String(), "\n")
}

// FormatDriverReport renders the salary figures next to booking earnings.
func FormatDriverReport(r *app.DriverReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Report: %s ---\n", r.Driver.Name)
	fmt.Fprintf(&b, "Salary: %s\n", money(r.Salary))
	fmt.Fprintf(&b, "Total advance: %s\n", money(r.TotalAdvance))
	fmt.Fprintf(&b, "Remaining salary: %s\n", money(r.RemainingSalary))
	fmt.Fprintf(&b, "Bookings: %d (%d completed)\n", len(r.Bookings), r.CompletedBookings)
	fmt.Fprintf(&b, "Total earnings: %s\n", money(r.TotalEarnings))
	fmt.Fprintf(&b, "Current cycle: %d, archived cycles: %d, transactions: %d", r.CurrentCycle.Number, len(r.SalaryHistory), len(r.Transactions))
	return b.String()
}

func formatArchivedCycle(c driver.Cycle) string {
	return fmt.Sprintf("#%d %s..%s base %s, advances %s, %s\n",
		c.Number, c.StartDate.Format(dateLayout), c.EndDate.Format(dateLayout),
		money(c.BaseSalary), money(c.Advances), c.Status)
}

// FormatHistory lists flattened transactions, one per line.
func FormatHistory(entries []driver.HistoryEntry) string {
	if len(entries) == 0 {
		return "No transactions yet.\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s [cycle %d] %s %s", e.Date.Format(dateLayout), e.CycleNumber, e.Type, money(e.Amount))
		if e.Note != "" {
			fmt.Fprintf(&b, " (%s)", e.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", raw)
	}
	return amount, nil
}

// splitDate removes a trailing YYYY-MM-DD argument if present.
func splitDate(args []string) ([]string, time.Time) {
	if len(args) == 0 {
		return args, time.Time{}
	}
	t, err := time.Parse(dateLayout, args[len(args)-1])
	if err != nil {
		return args, time.Time{}
	}
	return args[:len(args)-1], t
}
