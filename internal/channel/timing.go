package channel

// Timing holds the derived, controller-clock-cycle timing parameters a
// channel's bank state machine and data bus obey. Callers at the config
// layer are responsible for converting picosecond inputs (dbus_period,
// mc_period) down to this cycle domain; Timing itself never touches real
// time units.
type Timing struct {
	TRP  int64
	TRCD int64
	TCAS int64
	TRAS int64

	// DBusTurnAround is added to the reference point computed in Stage D
	// (write-mode switch) to produce the next dbus_cycle_available.
	DBusTurnAround int64

	// DBusReturnTime is how long a command occupies the data bus once
	// installed as the active request.
	DBusReturnTime int64

	TREF           int64
	RowsPerRefresh uint64

	// DataBusPeriod is the divisor used to convert a congestion delay (in
	// cycles) into a congestion-cycle count.
	DataBusPeriod int64
}
