package device

import (
	"fmt"
	"os"
)

// File is a BlockDevice backed by a regular file, addressed with
// pread/pwrite-style offset I/O (os.File's ReadAt/WriteAt) rather than
// a shared seek position, so concurrent callers on different sectors
// never race on the file's cursor.
type File struct {
	f          *os.File
	sectorSize int
	capacity   int
}

// OpenFile opens (creating if necessary) path as a File device with the
// given sector size and capacity, preallocating the backing file to
// capacity*sectorSize bytes if it is smaller.
func OpenFile(path string, sectorSize, capacity int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}

	size := int64(sectorSize) * int64(capacity)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("device: stat %s: %w", path, err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("device: truncate %s: %w", path, err)
		}
	}

	return &File{f: f, sectorSize: sectorSize, capacity: capacity}, nil
}

func (d *File) SectorSize() int { return d.sectorSize }

func (d *File) Read(sector SectorID, dst []byte) error {
	if int(sector) >= d.capacity {
		return ErrOutOfRange
	}
	off := int64(sector) * int64(d.sectorSize)
	n, err := d.f.ReadAt(dst[:d.sectorSize], off)
	if err != nil {
		return fmt.Errorf("device: read sector %d: %w", sector, err)
	}
	if n != d.sectorSize {
		return fmt.Errorf("device: short read on sector %d: got %d of %d bytes", sector, n, d.sectorSize)
	}
	return nil
}

func (d *File) Write(sector SectorID, src []byte) error {
	if int(sector) >= d.capacity {
		return ErrOutOfRange
	}
	off := int64(sector) * int64(d.sectorSize)
	n, err := d.f.WriteAt(src[:d.sectorSize], off)
	if err != nil {
		return fmt.Errorf("device: write sector %d: %w", sector, err)
	}
	if n != d.sectorSize {
		return fmt.Errorf("device: short write on sector %d: wrote %d of %d bytes", sector, n, d.sectorSize)
	}
	return nil
}

// Sync flushes the underlying file to stable storage.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close closes the backing file.
func (d *File) Close() error {
	return d.f.Close()
}
