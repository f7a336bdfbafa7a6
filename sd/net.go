package sd

import (
	"errors"
	"net"
	"os"
	"sync/atomic"
	unix "syscall"
)

// ErrNoSuchFdName is returned when a UNIX-domain Listen/ListenPacket
// call can use neither an inherited descriptor nor a local address —
// unlike TCP/UDP, a UNIX socket has no "listen on everything" address
// to fall back to.
var ErrNoSuchFdName = errors.New("sd: no inherited file with that name, and no address to bind")

var unixSocketUnlinkPolicy uint32 = UnixSocketUnlinkPolicySocket

// UnixSocketUnlinkPolicy* values govern what NamedListenUnix and
// NamedListenUnixgram do with a stale socket file found at the bind
// path before creating a fresh (non-inherited) listener. The kernel
// does not reclaim a UNIX socket's filesystem entry when the last fd
// referencing it closes, so a crashed prior instance leaves a file
// behind that would otherwise fail the next bind(2).
const (
	// UnixSocketUnlinkPolicyNone never removes an existing socket file.
	UnixSocketUnlinkPolicyNone uint32 = iota
	// UnixSocketUnlinkPolicyAlways unconditionally unlinks it first.
	UnixSocketUnlinkPolicyAlways
	// UnixSocketUnlinkPolicySocket unlinks it only after stat(2)
	// confirms it really is a socket, not some unrelated file that
	// happens to occupy the path.
	UnixSocketUnlinkPolicySocket
	// UnixSocketUnlinkPolicyFlock takes an exclusive flock(2) on a
	// companion ".lock" file before unlinking, so a still-live sibling
	// process holding the same path can't have its socket stolen out
	// from under it.
	UnixSocketUnlinkPolicyFlock
)

// SetUnixSocketUnlinkPolicy changes how NamedListenUnix and
// NamedListenUnixgram treat a pre-existing socket file at the bind
// path for freshly created (non-inherited) listeners. This package
// never unlinks on Close — systemd-handed-off sockets must survive
// past this process's lifetime — so the cleanup has to happen before
// bind instead. Default is UnixSocketUnlinkPolicySocket.
func SetUnixSocketUnlinkPolicy(policy uint32) {
	atomic.StoreUint32(&unixSocketUnlinkPolicy, policy)
}

// InheritNamedListener looks for an already-open, inherited file
// descriptor named wantName (or any name, if wantName is empty) that
// passes every test, and wraps it as a net.Listener. l is nil with a
// nil err if no inherited descriptor matches. A successfully returned
// listener is Export'ed under gotName; call Forget to undo that.
func InheritNamedListener(wantName string, tests ...FileTest) (l net.Listener, gotName string, err error) {
	file, gotName, err := FileWith(wantName, tests...)
	if err != nil || file == nil {
		return nil, gotName, err
	}
	defer file.Close() // FileListener and Export each take their own dup

	l, err = net.FileListener(file)
	if err != nil {
		return nil, gotName, err
	}
	if err = Export(gotName, l); err != nil {
		return nil, gotName, err
	}
	return l, gotName, nil
}

// InheritNamedPacketConn is InheritNamedListener for datagram sockets.
func InheritNamedPacketConn(wantName string, tests ...FileTest) (l net.PacketConn, gotName string, err error) {
	file, gotName, err := FileWith(wantName, tests...)
	if err != nil || file == nil {
		return nil, gotName, err
	}
	defer file.Close()

	l, err = net.FilePacketConn(file)
	if err != nil {
		return nil, gotName, err
	}
	if err = Export(gotName, l); err != nil {
		return nil, gotName, err
	}
	return l, gotName, nil
}

// Listen behaves like net.Listen but prefers a matching inherited
// descriptor over creating a new socket. The result is Export'ed;
// call Forget to undo that.
func Listen(nett, laddr string) (net.Listener, error) {
	switch nett {
	case "tcp", "tcp4", "tcp6":
		addr, err := net.ResolveTCPAddr(nett, laddr)
		if err != nil {
			return nil, err
		}
		return ListenTCP(nett, addr)
	case "unix", "unixpacket":
		addr, err := net.ResolveUnixAddr(nett, laddr)
		if err != nil {
			return nil, err
		}
		return ListenUnix(nett, addr)
	default:
		return nil, net.UnknownNetworkError(nett)
	}
}

// ListenPacket behaves like net.ListenPacket but prefers a matching
// inherited descriptor over creating a new socket.
func ListenPacket(nett, laddr string) (net.PacketConn, error) {
	switch nett {
	case "udp", "udp4", "udp6":
		addr, err := net.ResolveUDPAddr(nett, laddr)
		if err != nil {
			return nil, err
		}
		return ListenUDP(nett, addr)
	case "unixgram":
		addr, err := net.ResolveUnixAddr(nett, laddr)
		if err != nil {
			return nil, err
		}
		return ListenUnixgram(nett, addr)
	case "ip", "ip4", "ip6":
		addr, err := net.ResolveIPAddr(nett, laddr)
		if err != nil {
			return nil, err
		}
		return net.ListenIP(nett, addr)
	default:
		return nil, net.UnknownNetworkError(nett)
	}
}

// ListenTCP is NamedListenTCP with an empty (match-any) name.
func ListenTCP(nett string, laddr *net.TCPAddr) (*net.TCPListener, error) {
	return NamedListenTCP("", nett, laddr)
}

// NamedListenTCP returns an inherited TCP listener bound to laddr and
// named name, if one was handed off to this process; otherwise it
// binds a fresh one and exports it under name for a future restart to
// inherit.
func NamedListenTCP(name, nett string, laddr *net.TCPAddr) (*net.TCPListener, error) {
	if il, _, err := InheritNamedListener(name, IsTCPListener(laddr)); il != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return il.(*net.TCPListener), nil
	}

	l, err := net.ListenTCP(nett, laddr)
	if err != nil {
		return nil, err
	}
	if err := Export(name, l); err != nil {
		return nil, err
	}
	return l, nil
}

// ListenUnixgram is NamedListenUnixgram with an empty (match-any) name.
func ListenUnixgram(nett string, laddr *net.UnixAddr) (*net.UnixConn, error) {
	return NamedListenUnixgram("", nett, laddr)
}

// NamedListenUnixgram is NamedListenTCP for datagram UNIX sockets.
func NamedListenUnixgram(name, nett string, laddr *net.UnixAddr) (*net.UnixConn, error) {
	var pathp *string
	if laddr != nil {
		pathp = &laddr.Name
	}

	if il, _, err := InheritNamedPacketConn(name, IsSocketUnix(unix.SOCK_DGRAM, 0, pathp)); il != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return il.(*net.UnixConn), nil
	}

	if laddr == nil {
		return nil, ErrNoSuchFdName
	}

	lock, _ := maybeUnlinkUnixSocketFile(laddr) // failure here just means the bind below fails instead

	l, err := net.ListenUnixgram(nett, laddr)
	if err != nil {
		return nil, err
	}
	if err := exportInternal(name, l, lock); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// ListenUnix is NamedListenUnix with an empty (match-any) name.
func ListenUnix(nett string, laddr *net.UnixAddr) (*net.UnixListener, error) {
	return NamedListenUnix("", nett, laddr)
}

// NamedListenUnix returns an inherited stream UNIX listener bound to
// laddr and named name, if one was handed off; otherwise it unlinks
// any stale socket file per the current UnixSocketUnlinkPolicy, binds
// a fresh listener with unlink-on-close disabled (a handed-off socket
// must outlive this process), and exports it under name.
func NamedListenUnix(name, nett string, laddr *net.UnixAddr) (*net.UnixListener, error) {
	if il, _, err := InheritNamedListener(name, IsUNIXListener(laddr)); il != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return il.(*net.UnixListener), nil
	}

	if laddr == nil {
		return nil, ErrNoSuchFdName
	}

	lock, _ := maybeUnlinkUnixSocketFile(laddr)

	l, err := net.ListenUnix(nett, laddr)
	if err != nil {
		return nil, err
	}
	l.SetUnlinkOnClose(false)
	if err := exportInternal(name, l, lock); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// ListenUDP is NamedListenUDP with an empty (match-any) name.
func ListenUDP(nett string, laddr *net.UDPAddr) (*net.UDPConn, error) {
	return NamedListenUDP("", nett, laddr)
}

// NamedListenUDP is NamedListenTCP for UDP sockets.
func NamedListenUDP(name, nett string, laddr *net.UDPAddr) (*net.UDPConn, error) {
	if il, _, err := InheritNamedPacketConn(name, IsSocketInet(unixAddrFamily(laddr), unix.SOCK_DGRAM, -1, uint16(laddr.Port))); il != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return il.(*net.UDPConn), nil
	}

	l, err := net.ListenUDP(nett, laddr)
	if err != nil {
		return nil, err
	}
	if err := Export(name, l); err != nil {
		return nil, err
	}
	return l, nil
}

func unixAddrFamily(addr *net.UDPAddr) int {
	if addr != nil && addr.IP != nil && addr.IP.To4() == nil {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// maybeUnlinkUnixSocketFile applies the current UnixSocketUnlinkPolicy
// to addr's path before a fresh bind. An abstract-namespace address
// (leading '@' or NUL) has no filesystem entry to clean up.
func maybeUnlinkUnixSocketFile(addr *net.UnixAddr) (lock *os.File, err error) {
	policy := atomic.LoadUint32(&unixSocketUnlinkPolicy)
	if policy == UnixSocketUnlinkPolicyNone {
		return nil, nil
	}

	name := addr.Name
	if name == "" || name[0] == '@' || name[0] == '\x00' {
		return nil, nil
	}

	switch policy {
	case UnixSocketUnlinkPolicyAlways:
		return nil, unix.Unlink(name)
	case UnixSocketUnlinkPolicySocket:
		return nil, unlinkIfSocket(name)
	case UnixSocketUnlinkPolicyFlock:
		lock, err = os.OpenFile(name+".lock", os.O_RDONLY|os.O_CREATE, 0700)
		if err != nil {
			return nil, err
		}
		if err = unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			return lock, err
		}
		return lock, unlinkIfSocket(name)
	}
	return nil, nil
}

// unlinkIfSocket removes name only if stat(2) confirms it's a socket
// file, not some unrelated file occupying the same path. A missing
// file is not an error — there was nothing to clean up.
func unlinkIfSocket(name string) error {
	var stat unix.Stat_t
	if err := unix.Stat(name, &stat); err != nil {
		if err == unix.ENOENT {
			return nil
		}
		return err
	}
	if stat.Mode&unix.S_IFMT == unix.S_IFSOCK {
		return unix.Unlink(name)
	}
	return nil
}
