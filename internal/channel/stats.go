package channel

// Stats holds the per-channel counters accumulated between phase boundaries.
// sim_stats is the live accumulator; roi_stats is a snapshot taken at the
// last end_phase call.
type Stats struct {
	// Name identifies the channel these counters belong to, e.g. "Channel 0".
	// It is assigned at begin_phase, mirroring the original dram_stats.name
	// field rather than living on the Channel itself.
	Name string

	WQRowBufferHit  int64
	WQRowBufferMiss int64
	RQRowBufferHit  int64
	RQRowBufferMiss int64
	WQFull          int64

	DBusCycleCongested int64
	DBusCountCongested int64

	RefreshCycles int64
}
