// Package dramsim implements the core of an off-chip DRAM controller model
// for a cycle-driven microarchitectural simulator: an address mapper, a
// per-channel request pipeline, a per-bank timing state machine, and the
// top-level controller that binds channels to upstream endpoints and drives
// one simulated tick at a time.
package dramsim

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim/hooking"
	"github.com/sarchlab/akita/v4/sim/naming"
	"github.com/sarchlab/akita/v4/sim/timing"

	"github.com/sarchlab/dramsim/internal/addrmap"
	"github.com/sarchlab/dramsim/internal/channel"
	"github.com/sarchlab/dramsim/internal/reqqueue"
)

// HookPosReqAdmitted fires when a packet is copied into a channel queue.
var HookPosReqAdmitted = &hooking.HookPos{Name: "ReqAdmitted"}

// HookPosPhaseEnd fires when EndPhase snapshots ROI stats.
var HookPosPhaseEnd = &hooking.HookPos{Name: "PhaseEnd"}

// Controller is the top-level memory controller: the set of channels, the
// upstream endpoints it drains each tick, and the address mapper that routes
// a packet to its channel.
type Controller struct {
	naming.NamedBase
	hooking.HookableBase

	Channels  []*channel.Channel
	Mapper    *addrmap.Mapper
	Endpoints []Endpoint
	Freq      timing.Freq

	CurrentTime int64
	Warmup      bool

	cfg Config
}

// AddEndpoint registers an upstream endpoint to be drained every tick.
func (c *Controller) AddEndpoint(ep Endpoint) {
	c.Endpoints = append(c.Endpoints, ep)
}

func (c *Controller) channelFor(addr uint64) *channel.Channel {
	return c.Channels[c.Mapper.GetChannel(addrmap.Address(addr))]
}

// Tick drains every endpoint's queues into the appropriate channel, then
// advances each channel by one controller clock period, in channel order.
// It satisfies akita's timing.Ticker interface.
func (c *Controller) Tick() bool {
	c.initiateRequests()

	for _, ch := range c.Channels {
		ch.CurrentTime = c.CurrentTime
		ch.Tick()
	}

	c.CurrentTime++

	return true
}

// initiateRequests drains as large a prefix of each endpoint's PQ, RQ, WQ as
// the corresponding add_* call accepts; the first rejection stops that
// queue's drain for this tick.
func (c *Controller) initiateRequests() {
	for _, ep := range c.Endpoints {
		for {
			pkt, ok := ep.PeekPQ()
			if !ok || !c.addPQ(pkt, ep) {
				break
			}
			ep.PopPQ()
		}

		for {
			pkt, ok := ep.PeekRQ()
			if !ok || !c.addRQ(pkt, ep) {
				break
			}
			ep.PopRQ()
		}

		for {
			pkt, ok := ep.PeekWQ()
			if !ok || !c.addWQ(pkt) {
				break
			}
			ep.PopWQ()
		}
	}
}

// addRQ admits pkt into its channel's RQ. A promoted packet (pkt.Promotion)
// inherits the ready_time of a matching, not-yet-scheduled PQ entry and
// drops it; if no such entry exists the promotion is treated as already
// satisfied and addRQ reports success without consuming an RQ slot.
func (c *Controller) addRQ(pkt Packet, ep Endpoint) bool {
	ch := c.channelFor(pkt.Address)

	idx, ok := ch.RQ.FirstEmpty()
	if !ok {
		return false
	}

	readyTime := c.CurrentTime

	if pkt.Promotion {
		pqIdx, found := ch.PQ.Find(func(r *reqqueue.Request) bool {
			return r.Address == pkt.Address && !r.Scheduled
		})
		if !found {
			return true
		}

		readyTime = ch.PQ.At(pqIdx).ReadyTime
		ch.PQ.Clear(pqIdx)
	}

	req := reqqueue.NewRequest()
	req.Address = pkt.Address
	req.VAddress = pkt.VAddress
	req.Data = pkt.Data
	req.InstrDependOnMe = pkt.InstrDependOnMe
	req.PFMetadata = pkt.PFMetadata
	req.ResponseRequested = pkt.ResponseRequested
	req.ReadyTime = readyTime

	if pkt.ResponseRequested || pkt.Promotion {
		req.ToReturn = []reqqueue.ResponseSink{ep.Returned()}
	}

	ch.RQ.Put(idx, req)
	c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosReqAdmitted, Item: req})

	return true
}

// addPQ admits pkt into its channel's PQ.
func (c *Controller) addPQ(pkt Packet, ep Endpoint) bool {
	ch := c.channelFor(pkt.Address)

	idx, ok := ch.PQ.FirstEmpty()
	if !ok {
		return false
	}

	req := reqqueue.NewRequest()
	req.Address = pkt.Address
	req.VAddress = pkt.VAddress
	req.Data = pkt.Data
	req.InstrDependOnMe = pkt.InstrDependOnMe
	req.PFMetadata = pkt.PFMetadata
	req.ResponseRequested = pkt.ResponseRequested
	req.ReadyTime = c.CurrentTime

	if pkt.ResponseRequested {
		req.ToReturn = []reqqueue.ResponseSink{ep.Returned()}
	}

	ch.PQ.Put(idx, req)
	c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosReqAdmitted, Item: req})

	return true
}

// addWQ admits pkt into its channel's WQ. A full WQ increments WQFull.
func (c *Controller) addWQ(pkt Packet) bool {
	ch := c.channelFor(pkt.Address)

	idx, ok := ch.WQ.FirstEmpty()
	if !ok {
		ch.SimStats.WQFull++
		return false
	}

	req := reqqueue.NewRequest()
	req.Address = pkt.Address
	req.VAddress = pkt.VAddress
	req.Data = pkt.Data
	req.ReadyTime = c.CurrentTime

	ch.WQ.Put(idx, req)
	c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosReqAdmitted, Item: req})

	return true
}

// BeginPhase resets every channel's live stats (naming them "Channel 0",
// "Channel 1", ...) and propagates warmup.
func (c *Controller) BeginPhase(warmup bool) {
	c.Warmup = warmup

	for i, ch := range c.Channels {
		ch.BeginPhase(warmup, fmt.Sprintf("Channel %d", i))
	}
}

// EndPhase snapshots every channel's live stats into its ROI stats.
func (c *Controller) EndPhase() {
	for _, ch := range c.Channels {
		ch.EndPhase()
		c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosPhaseEnd, Item: ch.ROIStats})
	}
}

// deadlockEntry is one queue slot's diagnostic payload.
type deadlockEntry struct {
	Address        uint64
	ForwardChecked bool
	Scheduled      bool
}

// PrintDeadlock writes every channel's PQ/RQ/WQ contents to w as
// (address, forward_checked, scheduled) triples, the diagnostic payload
// shape the original model's print_deadlock hook produces.
func (c *Controller) PrintDeadlock(w io.Writer) {
	for i, ch := range c.Channels {
		fmt.Fprintf(w, "Channel %d:\n", i)
		printDeadlockQueue(w, "WQ", ch.WQ)
		printDeadlockQueue(w, "RQ", ch.RQ)
		printDeadlockQueue(w, "PQ", ch.PQ)
	}
}

func printDeadlockQueue(w io.Writer, label string, q *reqqueue.Queue) {
	for i := 0; i < q.Capacity(); i++ {
		if !q.Present(i) {
			continue
		}

		r := q.At(i)
		entry := deadlockEntry{Address: r.Address, ForwardChecked: r.ForwardChecked, Scheduled: r.Scheduled}
		fmt.Fprintf(w, "  %s[%d] = (%#x, %t, %t)\n", label, i, entry.Address, entry.ForwardChecked, entry.Scheduled)
	}
}

// Summary is a structured reproduction of the original model's
// initialization banner: channel count, per-channel width, and the
// effective aggregate data rate in bytes per controller-clock cycle.
type Summary struct {
	Channels          uint64
	ChannelWidthBytes uint64
	EffectiveDataRate float64
}

// Summary reports the controller's static topology for logging or the
// diagnostics HTTP server.
func (c *Controller) Summary() Summary {
	return Summary{
		Channels:          c.cfg.Chans,
		ChannelWidthBytes: c.cfg.ChanWidth,
		EffectiveDataRate: float64(c.cfg.Chans*c.cfg.ChanWidth) * float64(c.cfg.MCPeriod) / float64(c.cfg.DBusPeriod),
	}
}

// SummaryText renders Summary as a one-line banner, the shape the diagnostics
// server and the CLI's startup log share.
func (c *Controller) SummaryText() string {
	s := c.Summary()
	return fmt.Sprintf(
		"channels=%d channel_width=%dB effective_data_rate=%.3f B/cycle\n",
		s.Channels, s.ChannelWidthBytes, s.EffectiveDataRate,
	)
}

// ChannelStats reports the live and ROI stats of the channel whose name (as
// assigned by BeginPhase, e.g. "Channel 0") matches name.
func (c *Controller) ChannelStats(name string) (string, bool) {
	for i, ch := range c.Channels {
		if ch.SimStats.Name != name && fmt.Sprintf("Channel %d", i) != name {
			continue
		}

		return fmt.Sprintf(
			"sim: %+v\nroi: %+v\n", ch.SimStats, ch.ROIStats,
		), true
	}

	return "", false
}
