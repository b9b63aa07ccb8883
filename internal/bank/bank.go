// Package bank holds the per-bank timing state machine: whether a command
// or refresh is in flight, which row is sensed, and when the in-flight
// operation completes.
package bank

import "github.com/sarchlab/dramsim/internal/reqqueue"

// Slot is the per-(rank, bank) request/refresh state.
type Slot struct {
	Valid        bool
	RowBufferHit bool
	NeedRefresh  bool
	UnderRefresh bool

	openRowSet bool
	openRow    uint64

	ReadyTime int64

	// Ref points back at the queue entry in flight on this bank. It is only
	// meaningful while Valid is true and UnderRefresh is false.
	Ref reqqueue.SlotRef
}

// OpenRow returns the currently sensed row and whether one is open at all.
func (s *Slot) OpenRow() (row uint64, ok bool) { return s.openRow, s.openRowSet }

// SetOpenRow records row as the currently sensed row.
func (s *Slot) SetOpenRow(row uint64) {
	s.openRow = row
	s.openRowSet = true
}

// ClearOpenRow forgets the currently sensed row.
func (s *Slot) ClearOpenRow() {
	s.openRow = 0
	s.openRowSet = false
}

// Reset returns the slot to its idle state, freeing the bank.
func (s *Slot) Reset() {
	*s = Slot{}
}
