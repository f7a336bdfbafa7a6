package device

import "sync"

// Mem is an in-memory BlockDevice, mainly for tests and benchmarks.
// It records the number of reads and writes per sector so tests can
// assert on cache coalescing, and can be told to fail specific calls.
type Mem struct {
	mu         sync.Mutex
	sectorSize int
	capacity   int
	sectors    map[SectorID][]byte

	reads  map[SectorID]int
	writes map[SectorID]int

	// FailRead/FailWrite, if non-nil, are consulted before every
	// Read/Write call; returning a non-nil error fails that call
	// without touching sectors or counters.
	FailRead  func(sector SectorID) error
	FailWrite func(sector SectorID) error
}

// NewMem creates an in-memory device with the given sector size and
// capacity (number of addressable sectors). Sectors read before being
// written return all-zero data, matching a freshly formatted device.
func NewMem(sectorSize, capacity int) *Mem {
	return &Mem{
		sectorSize: sectorSize,
		capacity:   capacity,
		sectors:    make(map[SectorID][]byte),
		reads:      make(map[SectorID]int),
		writes:     make(map[SectorID]int),
	}
}

func (m *Mem) SectorSize() int { return m.sectorSize }

func (m *Mem) Read(sector SectorID, dst []byte) error {
	if m.FailRead != nil {
		if err := m.FailRead(sector); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if int(sector) >= m.capacity {
		return ErrOutOfRange
	}

	m.reads[sector]++

	if data, ok := m.sectors[sector]; ok {
		copy(dst, data)
	} else {
		for i := range dst {
			dst[i] = 0
		}
	}
	return nil
}

func (m *Mem) Write(sector SectorID, src []byte) error {
	if m.FailWrite != nil {
		if err := m.FailWrite(sector); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if int(sector) >= m.capacity {
		return ErrOutOfRange
	}

	m.writes[sector]++

	buf := make([]byte, m.sectorSize)
	copy(buf, src)
	m.sectors[sector] = buf
	return nil
}

// ReadCount returns the number of Read calls observed for sector.
func (m *Mem) ReadCount(sector SectorID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[sector]
}

// WriteCount returns the number of Write calls observed for sector.
func (m *Mem) WriteCount(sector SectorID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[sector]
}

// TotalWrites returns the number of Write calls observed across all sectors.
func (m *Mem) TotalWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.writes {
		n += c
	}
	return n
}

// Snapshot returns a copy of the current on-device bytes for sector, or
// nil if the sector has never been written.
func (m *Mem) Snapshot(sector SectorID) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sectors[sector]
	if !ok {
		return nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
