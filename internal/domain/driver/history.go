package driver

import (
	"cmp"
	"slices"
)

// HistoryEntry is a ledger transaction tagged with the cycle that owns it.
type HistoryEntry struct {
	Transaction
	CycleNumber int
}

// Flatten collects the transactions of the active and all archived cycles,
// newest first. A positive limit keeps only that many entries.
func Flatten(d *Driver, limit int) []HistoryEntry {
	n := len(d.CurrentCycle.Transactions)
	for _, c := range d.SalaryCycles {
		n += len(c.Transactions)
	}
	entries := make([]HistoryEntry, 0, n)
	add := func(c Cycle) {
		for _, tx := range c.Transactions {
			entries = append(entries, HistoryEntry{Transaction: tx, CycleNumber: c.Number})
		}
	}
	for _, c := range d.SalaryCycles {
		add(c)
	}
	add(d.CurrentCycle)

	slices.SortStableFunc(entries, func(a, b HistoryEntry) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(b.CycleNumber, a.CycleNumber); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
