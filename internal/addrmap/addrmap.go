// Package addrmap slices a physical address into the fields a DRAM
// controller needs to route and schedule a request: channel, rank, bank,
// row, column and the within-burst offset.
package addrmap

import "fmt"

// Address is a physical byte address. It is opaque beyond equality and bit
// extraction.
type Address uint64

// InvalidConfigError is returned when the mapper's construction parameters
// cannot produce a valid bit slicing.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid address mapper config: %s", e.Reason)
}

// field index order, least-significant first. The order itself is part of
// the contract: OFFSET sits below CHANNEL, which sits below BANK, and so on.
const (
	fieldOffset = iota
	fieldChannel
	fieldBank
	fieldRank
	fieldColumn
	fieldRow
	numFields
)

type extent struct {
	shift uint
	width uint
}

// Config carries every construction parameter the mapper needs.
type Config struct {
	ChannelWidthBytes uint64
	PrefetchSize      uint64
	BlockSizeBytes    uint64

	Channels uint64
	Banks    uint64
	Ranks    uint64
	Rows     uint64
	// Columns is the number of columns in a fully open row (i.e. the row
	// buffer width in columns), not the per-prefetch-burst count.
	Columns uint64
}

// Mapper is a pure, stateless address-to-field slicer.
type Mapper struct {
	fields       [numFields]extent
	prefetchSize uint64
	totalBits    uint
}

// New validates cfg and builds a Mapper. It fails with an *InvalidConfigError
// when the prefetch size is zero or the channel-width/prefetch product does
// not evenly divide into whole cache blocks.
func New(cfg Config) (*Mapper, error) {
	if cfg.PrefetchSize == 0 {
		return nil, &InvalidConfigError{Reason: "prefetch size must be nonzero"}
	}

	if (cfg.ChannelWidthBytes*cfg.PrefetchSize)%cfg.BlockSizeBytes != 0 {
		return nil, &InvalidConfigError{
			Reason: "channel_width * prefetch_size must be a multiple of the cache block size",
		}
	}

	m := &Mapper{prefetchSize: cfg.PrefetchSize}

	counts := [numFields]uint64{
		fieldOffset:  cfg.ChannelWidthBytes * cfg.PrefetchSize,
		fieldChannel: cfg.Channels,
		fieldBank:    cfg.Banks,
		fieldRank:    cfg.Ranks,
		fieldColumn:  cfg.Columns / cfg.PrefetchSize,
		fieldRow:     cfg.Rows,
	}

	shift := uint(0)
	for i, count := range counts {
		width := ceilLog2(count)
		m.fields[i] = extent{shift: shift, width: width}
		shift += width
	}
	m.totalBits = shift

	return m, nil
}

// ceilLog2 returns ceil(log2(n)), treating n <= 1 as needing zero bits.
func ceilLog2(n uint64) uint {
	if n <= 1 {
		return 0
	}

	width := uint(0)
	v := n - 1
	for v > 0 {
		width++
		v >>= 1
	}

	return width
}

func (m *Mapper) extract(a Address, f int) uint64 {
	e := m.fields[f]
	mask := uint64(1)<<e.width - 1

	return (uint64(a) >> e.shift) & mask
}

// GetChannel returns the channel index encoded in a.
func (m *Mapper) GetChannel(a Address) uint64 { return m.extract(a, fieldChannel) }

// GetRank returns the rank index encoded in a.
func (m *Mapper) GetRank(a Address) uint64 { return m.extract(a, fieldRank) }

// GetBank returns the bank index encoded in a.
func (m *Mapper) GetBank(a Address) uint64 { return m.extract(a, fieldBank) }

// GetRow returns the row index encoded in a.
func (m *Mapper) GetRow(a Address) uint64 { return m.extract(a, fieldRow) }

// GetColumn returns the column index encoded in a.
func (m *Mapper) GetColumn(a Address) uint64 { return m.extract(a, fieldColumn) }

// Rows returns the number of rows per bank the row field can encode: the
// configured count rounded up to a power of two. The same rounding applies
// to Ranks, Banks and Channels.
func (m *Mapper) Rows() uint64 { return uint64(1) << m.fields[fieldRow].width }

// Columns returns the row-buffer width in columns.
func (m *Mapper) Columns() uint64 {
	return m.prefetchSize << m.fields[fieldColumn].width
}

// Ranks returns the number of ranks per channel (power-of-two rounded).
func (m *Mapper) Ranks() uint64 { return uint64(1) << m.fields[fieldRank].width }

// Banks returns the number of banks per rank (power-of-two rounded).
func (m *Mapper) Banks() uint64 { return uint64(1) << m.fields[fieldBank].width }

// Channels returns the number of channels (power-of-two rounded).
func (m *Mapper) Channels() uint64 { return uint64(1) << m.fields[fieldChannel].width }

// PrefetchSize returns the number of channel-width bursts fetched per
// row-buffer access.
func (m *Mapper) PrefetchSize() uint64 { return m.prefetchSize }

// Size returns the total addressable space in bytes.
func (m *Mapper) Size() uint64 { return uint64(1) << m.totalBits }

// IsCollision reports whether a and b share every field above OFFSET, i.e.
// whether they address the same channel/rank/bank/row/column group.
func (m *Mapper) IsCollision(a, b Address) bool {
	offsetWidth := m.fields[fieldOffset].width

	return uint64(a)>>offsetWidth == uint64(b)>>offsetWidth
}
