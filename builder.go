package dramsim

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim/naming"
	"github.com/sarchlab/akita/v4/sim/timing"

	"github.com/sarchlab/dramsim/internal/addrmap"
	"github.com/sarchlab/dramsim/internal/channel"
)

// Builder assembles a Controller with the fluent WithX idiom used throughout
// the corpus's akita-based components.
type Builder struct {
	freq timing.Freq
	cfg  Config
}

// MakeBuilder returns a Builder seeded with a small, conventional topology
// and timing, so callers only override what they need.
func MakeBuilder() Builder {
	return Builder{
		freq: 1 * timing.GHz,
		cfg: Config{
			DBusPeriod:         1000,
			MCPeriod:           1000,
			TRP:                2,
			TRCD:               2,
			TCAS:               2,
			TRAS:               8,
			RefreshPeriod:      7_800_000,
			RefreshesPerPeriod: 1,
			RQSize:             8,
			WQSize:             8,
			PQSize:             8,
			Chans:              1,
			Ranks:              1,
			Banks:              8,
			Columns:            1024,
			Rows:               1024,
			ChanWidth:          8,
			BlockSize:          64,
		},
	}
}

// WithFreq sets the controller clock frequency, matching every other
// akita-based builder's WithFreq convention.
func (b Builder) WithFreq(f timing.Freq) Builder {
	b.freq = f
	return b
}

// WithDBusPeriod sets the data-bus clock period, in picoseconds.
func (b Builder) WithDBusPeriod(ps int64) Builder {
	b.cfg.DBusPeriod = ps
	return b
}

// WithMCPeriod sets the controller clock period, in picoseconds.
func (b Builder) WithMCPeriod(ps int64) Builder {
	b.cfg.MCPeriod = ps
	return b
}

// WithTiming sets tRP/tRCD/tCAS/tRAS, in controller-clock cycles.
func (b Builder) WithTiming(trp, trcd, tcas, tras int64) Builder {
	b.cfg.TRP, b.cfg.TRCD, b.cfg.TCAS, b.cfg.TRAS = trp, trcd, tcas, tras
	return b
}

// WithRefresh sets the refresh period (picoseconds) and how many pulses
// subdivide it.
func (b Builder) WithRefresh(periodPS int64, perPeriod uint64) Builder {
	b.cfg.RefreshPeriod, b.cfg.RefreshesPerPeriod = periodPS, perPeriod
	return b
}

// WithQueueSizes sets the RQ/WQ/PQ capacities.
func (b Builder) WithQueueSizes(rq, wq, pq uint64) Builder {
	b.cfg.RQSize, b.cfg.WQSize, b.cfg.PQSize = rq, wq, pq
	return b
}

// WithTopology sets the channel/rank/bank/column/row counts.
func (b Builder) WithTopology(chans, ranks, banks, columns, rows uint64) Builder {
	b.cfg.Chans, b.cfg.Ranks, b.cfg.Banks, b.cfg.Columns, b.cfg.Rows = chans, ranks, banks, columns, rows
	return b
}

// WithChanWidth sets the per-channel byte width.
func (b Builder) WithChanWidth(bytes uint64) Builder {
	b.cfg.ChanWidth = bytes
	return b
}

// WithBlockSize sets the cache block size in bytes.
func (b Builder) WithBlockSize(bytes uint64) Builder {
	b.cfg.BlockSize = bytes
	return b
}

// Build validates the accumulated configuration and constructs a Controller
// with one idle Channel per configured chan. It returns *InvalidConfigError
// (via addrmap.New) when the configuration cannot produce a valid address
// slicing.
func (b Builder) Build(name string) (*Controller, error) {
	mapper, err := addrmap.New(addrmap.Config{
		ChannelWidthBytes: b.cfg.ChanWidth,
		PrefetchSize:      b.cfg.prefetchSize(),
		BlockSizeBytes:    b.cfg.BlockSize,
		Channels:          b.cfg.Chans,
		Banks:             b.cfg.Banks,
		Ranks:             b.cfg.Ranks,
		Rows:              b.cfg.Rows,
		Columns:           b.cfg.Columns,
	})
	if err != nil {
		return nil, err
	}

	timingCfg := b.cfg.deriveTiming()

	chans := make([]*channel.Channel, b.cfg.Chans)
	for i := range chans {
		chans[i] = channel.New(
			fmt.Sprintf("%s.Channel%d", name, i),
			mapper,
			timingCfg,
			int(b.cfg.WQSize),
			int(b.cfg.RQSize),
			int(b.cfg.PQSize),
			b.cfg.BlockSize,
		)
	}

	ctrl := &Controller{
		NamedBase: naming.MakeNamedBase(name),
		Channels:  chans,
		Mapper:    mapper,
		Freq:      b.freq,
		cfg:       b.cfg,
	}

	return ctrl, nil
}
