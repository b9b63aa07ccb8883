package dramsim_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	dramsim "github.com/sarchlab/dramsim"
	"github.com/sarchlab/dramsim/internal/reqqueue"
)

type recordingSink struct {
	responses []reqqueue.Response
}

func (s *recordingSink) Deliver(r reqqueue.Response) { s.responses = append(s.responses, r) }

type fakeEndpoint struct {
	pq, rq, wq []dramsim.Packet
	sink       *recordingSink
}

func newFakeEndpoint() *fakeEndpoint { return &fakeEndpoint{sink: &recordingSink{}} }

func (e *fakeEndpoint) PeekPQ() (dramsim.Packet, bool) {
	if len(e.pq) == 0 {
		return dramsim.Packet{}, false
	}
	return e.pq[0], true
}
func (e *fakeEndpoint) PopPQ() { e.pq = e.pq[1:] }

func (e *fakeEndpoint) PeekRQ() (dramsim.Packet, bool) {
	if len(e.rq) == 0 {
		return dramsim.Packet{}, false
	}
	return e.rq[0], true
}
func (e *fakeEndpoint) PopRQ() { e.rq = e.rq[1:] }

func (e *fakeEndpoint) PeekWQ() (dramsim.Packet, bool) {
	if len(e.wq) == 0 {
		return dramsim.Packet{}, false
	}
	return e.wq[0], true
}
func (e *fakeEndpoint) PopWQ() { e.wq = e.wq[1:] }

func (e *fakeEndpoint) Returned() reqqueue.ResponseSink { return e.sink }

func smallController() *dramsim.Controller {
	ctrl, err := dramsim.MakeBuilder().
		WithTopology(1, 1, 1, 1024, 1024).
		WithQueueSizes(2, 2, 2).
		Build("MemCtrl")
	Expect(err).NotTo(HaveOccurred())

	return ctrl
}

var _ = Describe("Controller", func() {
	var (
		ctrl *dramsim.Controller
		ep   *fakeEndpoint
	)

	BeforeEach(func() {
		ctrl = smallController()
		ep = newFakeEndpoint()
		ctrl.AddEndpoint(ep)
	})

	It("rejects config with a zero prefetch size", func() {
		_, err := dramsim.MakeBuilder().WithChanWidth(0).Build("Bad")
		Expect(err).To(HaveOccurred())
	})

	It("drains WQ up to capacity and reports full once it's exceeded", func() {
		for i := 0; i < 2; i++ {
			ep.wq = append(ep.wq, dramsim.Packet{Address: uint64(i) * 64})
		}
		ep.wq = append(ep.wq, dramsim.Packet{Address: 256})

		ctrl.Tick()

		Expect(len(ep.wq)).To(Equal(1))
		Expect(ctrl.Channels[0].SimStats.WQFull).To(BeEquivalentTo(1))
	})

	It("delivers a response for an admitted, response-requested read", func() {
		ep.rq = append(ep.rq, dramsim.Packet{Address: 0x40, ResponseRequested: true})

		for i := 0; i < 64; i++ {
			ctrl.Tick()
			if len(ep.sink.responses) > 0 {
				break
			}
		}

		Expect(ep.sink.responses).To(HaveLen(1))
		Expect(ep.sink.responses[0].Address).To(BeEquivalentTo(0x40))
	})

	It("promotes a matching PQ entry into RQ, inheriting its ready_time", func() {
		// The unscheduled PQ entry is placed in the channel with a ready_time
		// in the future, so the inherited value differs from CurrentTime and
		// the channel cannot schedule the promoted read during this tick
		// (scheduling would replace its ready_time with ReadyNever).
		ch := ctrl.Channels[0]
		ch.PQ.Put(0, reqqueue.Request{Address: 0x80, ReadyTime: 5})
		ep.rq = append(ep.rq, dramsim.Packet{Address: 0x80, Promotion: true, ResponseRequested: true})

		ctrl.Tick()

		Expect(ch.PQ.Occupancy()).To(Equal(0))

		idx, ok := ch.RQ.Find(func(r *reqqueue.Request) bool { return r.Address == 0x80 })
		Expect(ok).To(BeTrue())
		Expect(ch.RQ.At(idx).ReadyTime).To(BeEquivalentTo(5))
	})

	It("treats a promotion with no matching PQ entry as already satisfied", func() {
		ep.rq = append(ep.rq, dramsim.Packet{Address: 0x80, Promotion: true})
		ctrl.Tick()

		Expect(ctrl.Channels[0].RQ.Occupancy()).To(Equal(0))
		Expect(ep.rq).To(BeEmpty())
	})

	It("names channels and resets stats at phase boundaries", func() {
		ctrl.BeginPhase(false)
		Expect(ctrl.Channels[0].SimStats.Name).To(Equal("Channel 0"))

		ctrl.Channels[0].SimStats.RefreshCycles = 3
		ctrl.EndPhase()
		Expect(ctrl.Channels[0].ROIStats.RefreshCycles).To(BeEquivalentTo(3))

		ctrl.BeginPhase(false)
		Expect(ctrl.Channels[0].SimStats.RefreshCycles).To(BeEquivalentTo(0))
	})

	It("prints a deadlock diagnostic with (address, forward_checked, scheduled) per entry", func() {
		ep.wq = append(ep.wq, dramsim.Packet{Address: 0x40})
		ctrl.Tick()

		var buf bytes.Buffer
		ctrl.PrintDeadlock(&buf)

		Expect(buf.String()).To(ContainSubstring("Channel 0:"))
		Expect(buf.String()).To(ContainSubstring("0x40"))
	})

	It("reports a topology summary", func() {
		s := ctrl.Summary()
		Expect(s.Channels).To(BeEquivalentTo(1))
		Expect(s.ChannelWidthBytes).To(BeEquivalentTo(8))
	})
})
