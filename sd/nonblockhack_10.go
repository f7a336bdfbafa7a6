// +build !go1.11

package sd

import (
	"os"
	unix "syscall"
)

// Before Go 1.11, net.FileListener/net.FilePacketConn left an
// inherited descriptor in blocking mode; force it non-blocking so the
// runtime poller can multiplex it like any other listener.
func nonblockHack(file *os.File) error {
	return unix.SetNonblock(int(file.Fd()), true)
}
