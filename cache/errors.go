package cache

import (
	"errors"
	"fmt"
)

// ErrDeviceIO wraps a failure returned by the underlying block device.
// Use errors.Is(err, ErrDeviceIO) to classify it; the device's own
// error is wrapped alongside it, so errors.Is and errors.As reach it
// too (errors.Unwrap does not, as the error wraps two).
var ErrDeviceIO = errors.New("cache: device i/o error")

// ErrInvalidRange is returned synchronously, before any lock is taken,
// by a partial read/write whose (start, length) falls outside the
// sector.
var ErrInvalidRange = errors.New("cache: invalid range")

// ErrShutdown is returned by any operation that arrives after
// Shutdown has been called.
var ErrShutdown = errors.New("cache: shut down")

func deviceErr(op string, sector interface{}, err error) error {
	return fmt.Errorf("cache: %s sector %v: %w: %w", op, sector, ErrDeviceIO, err)
}
