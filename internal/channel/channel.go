// Package channel implements a single DRAM channel's per-tick pipeline: the
// write/read/prefetch queues, collision handling, write-mode switching, the
// per-bank timing state machine, data-bus arbitration and refresh
// interleaving.
package channel

import (
	"github.com/sarchlab/akita/v4/sim/naming"

	"github.com/sarchlab/dramsim/internal/addrmap"
	"github.com/sarchlab/dramsim/internal/bank"
	"github.com/sarchlab/dramsim/internal/reqqueue"
)

// Channel is one DRAM channel: its three queues, its rank×bank array of
// timing state, the data bus it arbitrates, and its refresh bookkeeping.
type Channel struct {
	naming.NamedBase

	WQ *reqqueue.Queue
	RQ *reqqueue.Queue
	PQ *reqqueue.Queue

	Banks []bank.Slot

	// ActiveRequest is the index into Banks currently holding the data bus,
	// or -1 if none.
	ActiveRequest int

	WriteMode          bool
	DBusCycleAvailable int64

	LastRefresh int64
	RefreshRow  uint64

	Warmup bool

	// CurrentTime is set by the owning controller before each Tick call; the
	// channel never advances it on its own.
	CurrentTime int64

	Mapper *addrmap.Mapper
	Timing Timing

	// BlockSizeBytes backs the PQ's block-number collision predicate, which
	// deliberately differs from the address mapper's is_collision (it is
	// never coarser, since the offset field spans whole cache blocks).
	BlockSizeBytes uint64

	SimStats Stats
	ROIStats Stats
}

// New builds an idle Channel with fixed-capacity queues and an all-idle bank
// array sized ranks*banks.
func New(name string, mapper *addrmap.Mapper, timing Timing, wqCap, rqCap, pqCap int, blockSizeBytes uint64) *Channel {
	numBanks := mapper.Banks() * mapper.Ranks()

	return &Channel{
		NamedBase:      naming.MakeNamedBase(name),
		WQ:             reqqueue.New(wqCap),
		RQ:             reqqueue.New(rqCap),
		PQ:             reqqueue.New(pqCap),
		Banks:          make([]bank.Slot, numBanks),
		ActiveRequest:  -1,
		Mapper:         mapper,
		Timing:         timing,
		BlockSizeBytes: blockSizeBytes,
	}
}

// BeginPhase zeroes the live accumulator, stamps it with name, and
// propagates the warmup flag.
func (c *Channel) BeginPhase(warmup bool, name string) {
	c.SimStats = Stats{Name: name}
	c.Warmup = warmup
}

// EndPhase snapshots the live accumulator into the region-of-interest stats.
func (c *Channel) EndPhase() {
	c.ROIStats = c.SimStats
}

// Tick advances the channel by one controller clock period, running stages
// A through G in order. It reports true unconditionally: a channel always
// has bookkeeping to do, matching the akita Ticker convention.
func (c *Channel) Tick() bool {
	if c.Warmup {
		c.drainWarmup()
		return true
	}

	c.stageBCollisions()
	c.stageCFinishTransfer()
	c.stageDWriteModeSwitch()
	c.stageERefresh()
	c.stageFArbitrate()
	c.stageGSchedulePacket()

	return true
}

// drainWarmup is Stage A: complete RQ/PQ immediately, drop WQ silently, and
// skip every other stage. No timing is modeled during warm-up.
func (c *Channel) drainWarmup() {
	for i := 0; i < c.RQ.Capacity(); i++ {
		if c.RQ.Present(i) {
			c.RQ.At(i).Deliver()
			c.RQ.Clear(i)
		}
	}

	for i := 0; i < c.PQ.Capacity(); i++ {
		if c.PQ.Present(i) {
			c.PQ.At(i).Deliver()
			c.PQ.Clear(i)
		}
	}

	for i := 0; i < c.WQ.Capacity(); i++ {
		if c.WQ.Present(i) {
			c.WQ.Clear(i)
		}
	}
}

func blockNumber(addr, blockSizeBytes uint64) uint64 { return addr / blockSizeBytes }

func (c *Channel) bankIndex(a addrmap.Address) uint64 {
	return c.Mapper.GetRank(a)*c.Mapper.Banks() + c.Mapper.GetBank(a)
}

func (c *Channel) queueByKind(k reqqueue.QueueKind) *reqqueue.Queue {
	switch k {
	case reqqueue.KindWQ:
		return c.WQ
	case reqqueue.KindPQ:
		return c.PQ
	default:
		return c.RQ
	}
}

// stageBCollisions is Stage B: WQ dedup, RQ write-forwarding/merge, PQ
// write-forwarding/merge with a block-number collision predicate.
func (c *Channel) stageBCollisions() {
	c.checkWQCollisions()
	c.checkRQCollisions()
	c.checkPQCollisions()
}

func (c *Channel) checkWQCollisions() {
	for i := 0; i < c.WQ.Capacity(); i++ {
		if !c.WQ.Present(i) || c.WQ.At(i).ForwardChecked {
			continue
		}

		req := c.WQ.At(i)
		collided := false

		for j := 0; j < c.WQ.Capacity(); j++ {
			if j == i || !c.WQ.Present(j) {
				continue
			}

			if c.Mapper.IsCollision(addrmap.Address(req.Address), addrmap.Address(c.WQ.At(j).Address)) {
				collided = true
				break
			}
		}

		if collided {
			c.WQ.Clear(i)
			continue
		}

		req.ForwardChecked = true
	}
}

func (c *Channel) checkRQCollisions() {
	for i := 0; i < c.RQ.Capacity(); i++ {
		if !c.RQ.Present(i) || c.RQ.At(i).ForwardChecked {
			continue
		}

		req := c.RQ.At(i)

		if wqIdx, ok := c.WQ.Find(func(w *reqqueue.Request) bool {
			return c.Mapper.IsCollision(addrmap.Address(req.Address), addrmap.Address(w.Address))
		}); ok {
			req.Data = c.WQ.At(wqIdx).Data
			req.Deliver()
			c.RQ.Clear(i)

			continue
		}

		merged := false

		for j := 0; j < c.RQ.Capacity(); j++ {
			if j == i || !c.RQ.Present(j) {
				continue
			}

			other := c.RQ.At(j)
			if c.Mapper.IsCollision(addrmap.Address(req.Address), addrmap.Address(other.Address)) {
				reqqueue.MergeInto(other, req)
				c.RQ.Clear(i)
				merged = true

				break
			}
		}

		if merged {
			continue
		}

		req.ForwardChecked = true
	}
}

// checkPQCollisions mirrors checkRQCollisions but compares block numbers
// rather than the address mapper's is_collision; this asymmetry with RQ is
// intentional and preserved from the original model.
func (c *Channel) checkPQCollisions() {
	for i := 0; i < c.PQ.Capacity(); i++ {
		if !c.PQ.Present(i) || c.PQ.At(i).ForwardChecked {
			continue
		}

		req := c.PQ.At(i)
		reqBlock := blockNumber(req.Address, c.BlockSizeBytes)

		if wqIdx, ok := c.WQ.Find(func(w *reqqueue.Request) bool {
			return blockNumber(w.Address, c.BlockSizeBytes) == reqBlock
		}); ok {
			req.Data = c.WQ.At(wqIdx).Data
			req.Deliver()
			c.PQ.Clear(i)

			continue
		}

		merged := false

		for j := 0; j < c.PQ.Capacity(); j++ {
			if j == i || !c.PQ.Present(j) {
				continue
			}

			other := c.PQ.At(j)
			if blockNumber(other.Address, c.BlockSizeBytes) == reqBlock {
				reqqueue.MergeInto(other, req)
				c.PQ.Clear(i)
				merged = true

				break
			}
		}

		if merged {
			continue
		}

		req.ForwardChecked = true
	}
}

// stageCFinishTransfer is Stage C: complete the bus transfer the active
// request, if any, holds once its bank's ready_time has arrived.
func (c *Channel) stageCFinishTransfer() {
	if c.ActiveRequest < 0 {
		return
	}

	bk := &c.Banks[c.ActiveRequest]
	if bk.ReadyTime > c.CurrentTime {
		return
	}

	q := c.queueByKind(bk.Ref.Queue)
	if q.Present(bk.Ref.Index) {
		q.At(bk.Ref.Index).Deliver()
		q.Clear(bk.Ref.Index)
	}

	bk.Valid = false
	c.ActiveRequest = -1
}

func ceilDiv(n, d int) int { return (n + d - 1) / d }

// stageDWriteModeSwitch is Stage D: apply write-mode hysteresis and, on a
// flip, evict every non-active in-flight bank command back into its queue.
func (c *Channel) stageDWriteModeSwitch() {
	wqOcc := c.WQ.Occupancy()
	rqOcc := c.RQ.Occupancy()
	wqCap := c.WQ.Capacity()

	hi := ceilDiv(wqCap*7, 8)
	lo := ceilDiv(wqCap*6, 8)

	flip := false
	switch {
	case !c.WriteMode && (wqOcc >= hi || (rqOcc == 0 && wqOcc > 0)):
		flip = true
	case c.WriteMode && (wqOcc == 0 || (rqOcc > 0 && wqOcc < lo)):
		flip = true
	}

	if !flip {
		return
	}

	c.WriteMode = !c.WriteMode

	for i := range c.Banks {
		if i == c.ActiveRequest {
			continue
		}

		bk := &c.Banks[i]
		if !bk.Valid {
			continue
		}

		if bk.ReadyTime < c.CurrentTime+c.Timing.TCAS {
			bk.ClearOpenRow()
		}

		bk.Valid = false

		q := c.queueByKind(bk.Ref.Queue)
		if q.Present(bk.Ref.Index) {
			q.At(bk.Ref.Index).Scheduled = false
			q.At(bk.Ref.Index).ReadyTime = c.CurrentTime
		}
	}

	base := c.CurrentTime
	if c.ActiveRequest >= 0 {
		base = c.Banks[c.ActiveRequest].ReadyTime
	}

	c.DBusCycleAvailable = base + c.Timing.DBusTurnAround
}

// stageERefresh is Stage E: pulse a refresh when tREF has elapsed, then
// advance every bank's own refresh start/end transition.
func (c *Channel) stageERefresh() {
	scheduleRefresh := c.CurrentTime >= c.LastRefresh+c.Timing.TREF

	if scheduleRefresh {
		c.LastRefresh = c.CurrentTime
		rows := c.Mapper.Rows()
		c.RefreshRow = (c.RefreshRow + c.Timing.RowsPerRefresh) % rows
		c.SimStats.RefreshCycles++
	}

	for i := range c.Banks {
		bk := &c.Banks[i]

		if scheduleRefresh {
			bk.NeedRefresh = true
		}

		switch {
		case bk.NeedRefresh && !bk.Valid:
			bk.ReadyTime = c.CurrentTime + (c.Timing.TRP+c.Timing.TRAS)*int64(c.Timing.RowsPerRefresh)
			bk.NeedRefresh = false
			bk.UnderRefresh = true
			bk.Valid = true
		case bk.UnderRefresh && bk.ReadyTime <= c.CurrentTime:
			bk.UnderRefresh = false
			bk.Valid = false
			bk.ClearOpenRow()
		}
	}
}

// stageFArbitrate is Stage F (populate_dbus): install the earliest-ready
// valid bank as the active request if the bus is free, else account for the
// congestion this tick observed.
func (c *Channel) stageFArbitrate() {
	minIdx := -1

	for i := range c.Banks {
		if !c.Banks[i].Valid {
			continue
		}

		if minIdx == -1 || c.Banks[i].ReadyTime < c.Banks[minIdx].ReadyTime {
			minIdx = i
		}
	}

	if minIdx == -1 {
		return
	}

	bk := &c.Banks[minIdx]
	if bk.ReadyTime > c.CurrentTime {
		return
	}

	if c.ActiveRequest < 0 && c.DBusCycleAvailable <= c.CurrentTime {
		c.ActiveRequest = minIdx
		bk.ReadyTime = c.CurrentTime + c.Timing.DBusReturnTime

		switch {
		case c.WriteMode && bk.RowBufferHit:
			c.SimStats.WQRowBufferHit++
		case c.WriteMode && !bk.RowBufferHit:
			c.SimStats.WQRowBufferMiss++
		case !c.WriteMode && bk.RowBufferHit:
			c.SimStats.RQRowBufferHit++
		default:
			c.SimStats.RQRowBufferMiss++
		}

		return
	}

	blocker := c.DBusCycleAvailable
	if c.ActiveRequest >= 0 {
		blocker = c.Banks[c.ActiveRequest].ReadyTime
	}

	if blocker > c.CurrentTime {
		c.SimStats.DBusCycleCongested += (blocker - c.CurrentTime) / c.Timing.DataBusPeriod
	}

	c.SimStats.DBusCountCongested++
}

// selectCandidate picks, among q's present-and-unscheduled entries, the one
// whose bank is free; among ties (or if none is free), the smallest
// ready_time wins.
func (c *Channel) selectCandidate(q *reqqueue.Queue) (int, bool) {
	best := -1
	bestFree := false
	var bestReady int64

	for i := 0; i < q.Capacity(); i++ {
		if !q.Present(i) {
			continue
		}

		r := q.At(i)
		if r.Scheduled {
			continue
		}

		free := !c.Banks[c.bankIndex(addrmap.Address(r.Address))].Valid

		switch {
		case best == -1:
			best, bestFree, bestReady = i, free, r.ReadyTime
		case free && !bestFree:
			best, bestFree, bestReady = i, free, r.ReadyTime
		case free == bestFree && r.ReadyTime < bestReady:
			best, bestFree, bestReady = i, free, r.ReadyTime
		}
	}

	if best == -1 {
		return 0, false
	}

	return best, true
}

// stageGSchedulePacket is Stage G: pick a candidate from WQ (write mode) or
// RQ-then-PQ (read mode) and, if its bank is free, assign the bank slot.
func (c *Channel) stageGSchedulePacket() {
	q := c.RQ
	if c.WriteMode {
		q = c.WQ
	}

	idx, ok := c.selectCandidate(q)

	if !c.WriteMode && (!ok || q.At(idx).ReadyTime > c.CurrentTime) {
		if pqIdx, pqOK := c.selectCandidate(c.PQ); pqOK {
			q, idx, ok = c.PQ, pqIdx, true
		}
	}

	if !ok {
		return
	}

	pkt := q.At(idx)
	if pkt.ReadyTime > c.CurrentTime {
		return
	}

	bankIdx := c.bankIndex(addrmap.Address(pkt.Address))
	bk := &c.Banks[bankIdx]

	if bk.Valid || bk.UnderRefresh {
		return
	}

	row := c.Mapper.GetRow(addrmap.Address(pkt.Address))
	openRow, hasOpen := bk.OpenRow()
	rowBufferHit := hasOpen && openRow == row

	rowChargeDelay := c.Timing.TRCD
	if hasOpen {
		rowChargeDelay = c.Timing.TRP + c.Timing.TRCD
	}

	bk.Valid = true
	bk.RowBufferHit = rowBufferHit
	bk.NeedRefresh = false
	bk.UnderRefresh = false
	bk.SetOpenRow(row)

	delay := c.Timing.TCAS
	if !rowBufferHit {
		delay += rowChargeDelay
	}
	bk.ReadyTime = c.CurrentTime + delay

	kind := reqqueue.KindRQ
	switch q {
	case c.WQ:
		kind = reqqueue.KindWQ
	case c.PQ:
		kind = reqqueue.KindPQ
	}
	bk.Ref = reqqueue.SlotRef{Queue: kind, Index: idx}

	pkt.Scheduled = true
	pkt.ReadyTime = reqqueue.ReadyNever
}
