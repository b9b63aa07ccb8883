package dramsim

import "github.com/sarchlab/dramsim/internal/channel"

// Config carries every controller construction parameter. Period fields are
// in picoseconds; timing fields are in controller-clock cycles; everything
// else is a plain count.
type Config struct {
	DBusPeriod int64 // picoseconds
	MCPeriod   int64 // picoseconds

	TRP  int64
	TRCD int64
	TCAS int64
	TRAS int64

	RefreshPeriod      int64 // picoseconds
	RefreshesPerPeriod uint64

	RQSize uint64
	WQSize uint64
	PQSize uint64

	Chans   uint64
	Ranks   uint64
	Banks   uint64
	Columns uint64
	Rows    uint64

	ChanWidth uint64 // bytes per channel
	BlockSize uint64 // bytes per cache block
}

// prefetchSize is BLOCK_SIZE / chan_width, the number of channel-width
// bursts a single row-buffer fill pulls in. A zero chan_width has no
// quotient; it is left for addrmap.New to reject as an invalid config
// rather than panicking here.
func (c Config) prefetchSize() uint64 {
	if c.ChanWidth == 0 {
		return 0
	}

	return c.BlockSize / c.ChanWidth
}

// deriveTiming converts the picosecond-denominated inputs into the
// controller-clock-cycle Timing the channel pipeline operates on.
func (c Config) deriveTiming() channel.Timing {
	dbusReturn := (c.DBusPeriod * int64(c.prefetchSize())) / c.MCPeriod

	dataBusPeriod := c.DBusPeriod / c.MCPeriod
	if dataBusPeriod < 1 {
		dataBusPeriod = 1
	}

	return channel.Timing{
		TRP:  c.TRP,
		TRCD: c.TRCD,
		TCAS: c.TCAS,
		TRAS: c.TRAS,
		// DBUS_TURN_AROUND = t_ras * mc_period expressed back down in
		// controller cycles is just t_ras: both sides of that product share
		// the mc_period factor once everything is measured in cycles.
		DBusTurnAround: c.TRAS,
		DBusReturnTime: dbusReturn,
		TREF:           c.RefreshPeriod / c.MCPeriod / int64(c.RefreshesPerPeriod),
		RowsPerRefresh: c.Rows / c.RefreshesPerPeriod,
		DataBusPeriod:  dataBusPeriod,
	}
}
