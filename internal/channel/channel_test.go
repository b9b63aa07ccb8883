package channel_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dramsim/internal/addrmap"
	"github.com/sarchlab/dramsim/internal/channel"
	"github.com/sarchlab/dramsim/internal/reqqueue"
)

type recordingSink struct {
	responses []reqqueue.Response
}

func (s *recordingSink) Deliver(r reqqueue.Response) { s.responses = append(s.responses, r) }

func testMapper() *addrmap.Mapper {
	m, err := addrmap.New(addrmap.Config{
		ChannelWidthBytes: 8,
		PrefetchSize:      8,
		BlockSizeBytes:    64,
		Channels:          1,
		Banks:             1,
		Ranks:             1,
		Rows:              1024,
		Columns:           1024,
	})
	Expect(err).NotTo(HaveOccurred())

	return m
}

func testTiming() channel.Timing {
	return channel.Timing{
		TRP:            2,
		TRCD:           2,
		TCAS:           2,
		TRAS:           8,
		DBusTurnAround: 8,
		DBusReturnTime: 4,
		TREF:           7800,
		RowsPerRefresh: 8,
		DataBusPeriod:  1,
	}
}

func newTestChannel() *channel.Channel {
	return channel.New("Channel 0", testMapper(), testTiming(), 8, 8, 8, 64)
}

// addrAt builds a test address with the given row and column, sharing bank 0.
func addrAt(row, col uint64) uint64 { return row<<13 | col<<6 }

func putRead(ch *channel.Channel, addr uint64, readyTime int64, sink reqqueue.ResponseSink) int {
	idx, ok := ch.RQ.FirstEmpty()
	Expect(ok).To(BeTrue())
	ch.RQ.Put(idx, reqqueue.Request{
		ID:                "r",
		Address:           addr,
		ReadyTime:         readyTime,
		ToReturn:          []reqqueue.ResponseSink{sink},
		ResponseRequested: true,
	})

	return idx
}

func putWrite(ch *channel.Channel, addr uint64, data []byte, readyTime int64) int {
	idx, ok := ch.WQ.FirstEmpty()
	Expect(ok).To(BeTrue())
	ch.WQ.Put(idx, reqqueue.Request{
		ID:        "w",
		Address:   addr,
		Data:      data,
		ReadyTime: readyTime,
	})

	return idx
}

func runUntil(ch *channel.Channel, from, to int64) {
	for t := from; t <= to; t++ {
		ch.CurrentTime = t
		ch.Tick()
	}
}

var _ = Describe("Channel", func() {
	var ch *channel.Channel

	BeforeEach(func() {
		ch = newTestChannel()
	})

	It("schedules a cold read and returns it after tCAS+tRCD+DBUS_RETURN", func() {
		sink := &recordingSink{}
		addrA := addrAt(5, 0)
		putRead(ch, addrA, 0, sink)

		ch.CurrentTime = 0
		ch.Tick()

		Expect(ch.Banks[0].Valid).To(BeTrue())
		Expect(ch.Banks[0].ReadyTime).To(BeEquivalentTo(4))

		runUntil(ch, 1, 8)

		Expect(sink.responses).To(HaveLen(1))
		Expect(sink.responses[0].Address).To(BeEquivalentTo(addrA))
		Expect(ch.SimStats.RQRowBufferMiss).To(BeEquivalentTo(1))
	})

	It("a same-row read hits the row buffer and returns sooner", func() {
		sink1 := &recordingSink{}
		addrA := addrAt(5, 0)
		putRead(ch, addrA, 0, sink1)
		runUntil(ch, 0, 8)
		Expect(sink1.responses).To(HaveLen(1))

		sink2 := &recordingSink{}
		addrAPrime := addrAt(5, 1)
		putRead(ch, addrAPrime, 9, sink2)

		ch.CurrentTime = 9
		ch.Tick()

		Expect(ch.Banks[0].ReadyTime).To(BeEquivalentTo(11))

		runUntil(ch, 10, 15)

		Expect(sink2.responses).To(HaveLen(1))
		Expect(ch.SimStats.RQRowBufferHit).To(BeEquivalentTo(1))
	})

	It("a different-row read on the same bank pays the full precharge penalty", func() {
		sink1 := &recordingSink{}
		addrA := addrAt(5, 0)
		putRead(ch, addrA, 0, sink1)
		runUntil(ch, 0, 8)
		Expect(sink1.responses).To(HaveLen(1))

		sink2 := &recordingSink{}
		addrB := addrAt(6, 0)
		putRead(ch, addrB, 9, sink2)

		ch.CurrentTime = 9
		ch.Tick()

		Expect(ch.Banks[0].ReadyTime).To(BeEquivalentTo(15))

		// Row-buffer counters are bumped when the bank wins the data bus.
		runUntil(ch, 10, 15)

		Expect(ch.SimStats.RQRowBufferMiss).To(BeEquivalentTo(2))
	})

	It("a read forwards from a colliding write without touching a bank", func() {
		addrA := addrAt(5, 0)
		putWrite(ch, addrA, []byte{0xDE, 0xAD}, 0)

		ch.CurrentTime = 0
		ch.Tick()

		sink := &recordingSink{}
		putRead(ch, addrA, 1, sink)

		ch.CurrentTime = 1
		ch.Tick()

		Expect(ch.RQ.Occupancy()).To(Equal(0))
		Expect(sink.responses).To(HaveLen(1))
		Expect(sink.responses[0].Data).To(Equal([]byte{0xDE, 0xAD}))
	})

	It("two writes to the same address dedup to one WQ entry", func() {
		addrA := addrAt(5, 0)
		putWrite(ch, addrA, []byte{1}, 0)
		putWrite(ch, addrA, []byte{2}, 0)

		Expect(ch.WQ.Occupancy()).To(Equal(2))

		ch.CurrentTime = 0
		ch.Tick()

		Expect(ch.WQ.Occupancy()).To(Equal(1))
	})

	It("a refresh preempts a pending read until the refresh completes", func() {
		const tref = int64(7800)

		sink := &recordingSink{}
		addrA := addrAt(5, 0)
		putRead(ch, addrA, tref, sink)

		ch.CurrentTime = tref
		ch.Tick()

		Expect(ch.Banks[0].UnderRefresh).To(BeTrue())
		Expect(ch.Banks[0].ReadyTime).To(BeEquivalentTo(tref + 80))
		Expect(ch.SimStats.RefreshCycles).To(BeEquivalentTo(1))

		for t := tref + 1; t < tref+80; t++ {
			ch.CurrentTime = t
			ch.Tick()
			Expect(ch.RQ.At(0).Scheduled).To(BeFalse())
		}

		ch.CurrentTime = tref + 80
		ch.Tick()

		Expect(ch.RQ.At(0).Scheduled).To(BeTrue())
		Expect(ch.Banks[0].ReadyTime).To(BeNumerically(">=", tref+80))
	})

	It("drains RQ and PQ immediately during warm-up without scheduling banks", func() {
		ch.Warmup = true

		sink := &recordingSink{}
		putRead(ch, addrAt(1, 0), 0, sink)

		ch.CurrentTime = 0
		ch.Tick()

		Expect(ch.RQ.Occupancy()).To(Equal(0))
		Expect(sink.responses).To(HaveLen(1))
		Expect(ch.Banks[0].Valid).To(BeFalse())
	})

	It("keeps at most one active request at a time", func() {
		putRead(ch, addrAt(1, 0), 0, &recordingSink{})

		for t := int64(0); t <= 20; t++ {
			ch.CurrentTime = t
			ch.Tick()
			Expect(ch.ActiveRequest).To(BeNumerically("<", 2))
		}
	})
})
