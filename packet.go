package dramsim

import "github.com/sarchlab/dramsim/internal/reqqueue"

// Packet is the request an upstream endpoint hands to the controller: an
// address pair, an opaque data payload, dependency bookkeeping, and the
// flags that steer admission.
type Packet struct {
	Address         uint64
	VAddress        uint64
	Data            []byte
	PFMetadata      uint64
	InstrDependOnMe []uint64

	ResponseRequested bool
	// Promotion marks an RQ admission that should inherit an already-queued
	// PQ entry's progress instead of starting fresh.
	Promotion bool

	ASID [2]int32
}

// Response is the completion payload pushed to an endpoint's Returned sink.
type Response = reqqueue.Response

// Endpoint is the upstream contract: three front-to-back-iterable input
// queues and a sink for completed responses.
type Endpoint interface {
	PeekPQ() (Packet, bool)
	PopPQ()
	PeekRQ() (Packet, bool)
	PopRQ()
	PeekWQ() (Packet, bool)
	PopWQ()

	// Returned is the sink completed PQ/RQ responses are delivered to.
	Returned() reqqueue.ResponseSink
}
