// Package reqqueue implements the fixed-capacity optional-slot queues that
// hold in-flight DRAM requests (WQ, RQ, PQ) and the request/response types
// that flow through them.
package reqqueue

import "github.com/rs/xid"

// ReadyNever is the sentinel ready time used for a request that has already
// been scheduled onto a bank: its ready_time becomes unreachable until the
// owning bank slot completes and clears it.
const ReadyNever = int64(1) << 62

// Response is pushed to every ToReturn sink once a request completes.
type Response struct {
	Address         uint64
	VAddress        uint64
	Data            []byte
	PFMetadata      uint64
	InstrDependOnMe []uint64
}

// ResponseSink is the upstream endpoint's `returned` queue.
type ResponseSink interface {
	Deliver(Response)
}

// QueueKind names which of a channel's three queues an entry lives in.
type QueueKind int

// The three queue kinds a channel maintains.
const (
	KindWQ QueueKind = iota
	KindRQ
	KindPQ
)

func (k QueueKind) String() string {
	switch k {
	case KindWQ:
		return "WQ"
	case KindRQ:
		return "RQ"
	case KindPQ:
		return "PQ"
	default:
		return "?"
	}
}

// SlotRef stably identifies a queue entry so a bank slot can find it again
// after a tick resumes, without holding a pointer into the queue array.
type SlotRef struct {
	Queue QueueKind
	Index int
}

// Request is one queued DRAM operation.
type Request struct {
	// ID is a per-request trace identifier, carried in the admission hook's
	// payload. No completion hook exists to correlate it with.
	ID string

	Address         uint64
	VAddress        uint64
	Data            []byte
	InstrDependOnMe []uint64
	ToReturn        []ResponseSink
	PFMetadata      uint64

	Scheduled         bool
	ForwardChecked    bool
	ReadyTime         int64
	ResponseRequested bool
}

// NewRequest builds a Request with a fresh trace ID.
func NewRequest() Request {
	return Request{ID: xid.New().String()}
}

// Response builds the completion response carried by this request.
func (r *Request) Response() Response {
	return Response{
		Address:         r.Address,
		VAddress:        r.VAddress,
		Data:            r.Data,
		PFMetadata:      r.PFMetadata,
		InstrDependOnMe: r.InstrDependOnMe,
	}
}

// deliver pushes this request's response to every registered sink.
func (r *Request) deliver() {
	resp := r.Response()
	for _, sink := range r.ToReturn {
		sink.Deliver(resp)
	}
}

// Deliver is exported so channel/controller code outside this package can
// trigger delivery without re-building the response shape.
func (r *Request) Deliver() { r.deliver() }

// MergeSortedUnique merges two sorted, duplicate-free uint64 slices into a
// single sorted, duplicate-free slice.
func MergeSortedUnique(a, b []uint64) []uint64 {
	merged := make([]uint64, 0, len(a)+len(b))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			merged = append(merged, a[i])
			i++
		case a[i] > b[j]:
			merged = append(merged, b[j])
			j++
		default:
			merged = append(merged, a[i])
			i++
			j++
		}
	}

	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)

	return merged
}

// mergeSinks unions two ResponseSink slices without introducing duplicates,
// preserving relative order (a's elements first).
func mergeSinks(a, b []ResponseSink) []ResponseSink {
	merged := make([]ResponseSink, 0, len(a)+len(b))
	merged = append(merged, a...)

	for _, sink := range b {
		found := false
		for _, existing := range merged {
			if existing == sink {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, sink)
		}
	}

	return merged
}

// MergeInto unions src's dependency and return-sink lists into dst, so dst
// becomes the surviving entry of a collision merge.
func MergeInto(dst, src *Request) {
	dst.InstrDependOnMe = MergeSortedUnique(dst.InstrDependOnMe, src.InstrDependOnMe)
	dst.ToReturn = mergeSinks(dst.ToReturn, src.ToReturn)
}
