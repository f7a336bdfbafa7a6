package sd

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	unix "golang.org/x/sys/unix"
)

// FileTest predicates mirror libsystemd's sd_is_socket(3) family: each
// checks one property of an inherited descriptor so InheritNamedListener
// and friends only hand back a descriptor that actually matches what
// the caller asked to bind.

// FileTest reports whether an *os.File fulfills some criterion. Write
// your own when none of the provided tests fit.
type FileTest func(*os.File) (bool, error)

func (f *sdfile) isMatching(tests ...FileTest) (bool, error) {
	for _, t := range tests {
		ok, err := t(f.File)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// isSocketInternal checks fd is a socket, optionally of the given
// socket type, optionally in the given listening state. wantListening
// < 0 means "don't care".
func isSocketInternal(fd uintptr, sotype int, wantListening int) (bool, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(int(fd), &stat); err != nil {
		return false, err
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return false, nil
	}

	if sotype != 0 {
		istype, err := unix.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_TYPE)
		if err != nil {
			return false, err
		}
		if istype != sotype {
			return false, nil
		}
	}

	if wantListening < 0 {
		return true, nil
	}
	val, err := unix.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_ACCEPTCONN)
	if err != nil {
		return false, err
	}
	return (val != 0) == (wantListening > 0), nil
}

// IsFifo tests whether the file is a FIFO, and if path is non-empty,
// that it is the specific FIFO at that path.
func IsFifo(path string) FileTest {
	return func(file *os.File) (bool, error) {
		var stat unix.Stat_t
		if err := unix.Fstat(int(file.Fd()), &stat); err != nil {
			return false, err
		}
		if stat.Mode&unix.S_IFMT != unix.S_IFIFO {
			return false, nil
		}
		if path == "" {
			return true, nil
		}
		var pstat unix.Stat_t
		if err := unix.Stat(path, &pstat); err != nil {
			if err == unix.ENOENT || err == unix.ENOTDIR {
				return false, nil
			}
			return false, err
		}
		return stat.Dev == pstat.Dev && stat.Ino == pstat.Ino, nil
	}
}

func listeningUnixSocketPath(fd int) (path string, ok bool) {
	ok, err := isSocketInternal(uintptr(fd), 0, 1)
	if !ok || err != nil {
		return "", false
	}
	lsa, err := unix.Getsockname(fd)
	if err != nil {
		return "", false
	}
	if ua, ok := lsa.(*unix.SockaddrUnix); ok {
		return ua.Name, true
	}
	return "", false
}

// IsSocket is sd_is_socket: tests family (0 = any), socket type (0 =
// any) and listening state (-1 = don't care).
func IsSocket(family, sotype int, listening int) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, sotype, listening)
		if !ok || err != nil {
			return ok, err
		}
		if family <= 0 {
			return true, nil
		}
		lsa, err := unix.Getsockname(int(fd))
		if err != nil {
			return false, err
		}
		var got int
		switch lsa.(type) {
		case *unix.SockaddrInet4:
			got = unix.AF_INET
		case *unix.SockaddrInet6:
			got = unix.AF_INET6
		case *unix.SockaddrUnix:
			got = unix.AF_UNIX
		case *unix.SockaddrNetlink:
			got = unix.AF_NETLINK
		default:
			return false, errors.New("sd: socket has unsupported address family")
		}
		return family == got, nil
	}
}

// IsSocketInet is sd_is_socket_inet: tests an AF_INET/AF_INET6 socket
// of the given type, listening state, and port (0 = any port).
func IsSocketInet(family int, sotype int, listening int, port uint16) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, sotype, listening)
		if !ok || err != nil {
			return ok, err
		}
		if family != unix.AF_INET && family != unix.AF_INET6 {
			return false, nil
		}

		lsa, _ := unix.Getsockname(int(fd))
		switch a := lsa.(type) {
		case *unix.SockaddrInet4:
			if family != unix.AF_INET || (port > 0 && int(port) != a.Port) {
				return false, nil
			}
		case *unix.SockaddrInet6:
			if family != unix.AF_INET6 || (port > 0 && int(port) != a.Port) {
				return false, nil
			}
		default:
			return false, nil
		}
		return true, nil
	}
}

// IsSocketUnix is sd_is_socket_unix. path == nil means "don't care";
// an empty string matches the unnamed (autobind) socket.
func IsSocketUnix(sotype int, listening int, path *string) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, sotype, listening)
		if !ok || err != nil {
			return ok, err
		}

		lsa, _ := unix.Getsockname(int(fd))
		unixAddr, ok := lsa.(*unix.SockaddrUnix)
		if !ok {
			return false, nil
		}
		if path != nil && *path != unixAddr.Name {
			return false, nil
		}
		return true, nil
	}
}

// IsUNIXListener tests a listening UNIX-domain socket; addr == nil
// matches any AF_UNIX address, abstract sockets included.
func IsUNIXListener(addr *net.UnixAddr) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		sotype := 0
		if addr != nil {
			var err error
			if sotype, err = net2sotypeUnix(addr.Network()); err != nil {
				return false, err
			}
		}
		ok, err := isSocketInternal(fd, sotype, 1)
		if !ok || err != nil {
			return ok, err
		}

		lsa, _ := unix.Getsockname(int(fd))
		if _, isUnix := lsa.(*unix.SockaddrUnix); !isUnix {
			return false, nil
		}
		if addr == nil {
			return true, nil
		}
		saddr := addrFunc(unix.AF_UNIX, sotype)(lsa)
		return isSameUnixAddr(saddr, addr), nil
	}
}

// IsTCPListener tests a listening TCP socket; addr == nil skips the
// address comparison.
func IsTCPListener(addr *net.TCPAddr) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, unix.SOCK_STREAM, 1)
		if !ok || err != nil || addr == nil {
			return ok, err
		}
		return matchesInetAddr(fd, unix.SOCK_STREAM, addr)
	}
}

// IsUDPListener is IsTCPListener for UDP sockets.
func IsUDPListener(addr *net.UDPAddr) FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, unix.SOCK_DGRAM, 1)
		if !ok || err != nil || addr == nil {
			return ok, err
		}
		return matchesInetAddr(fd, unix.SOCK_DGRAM, addr)
	}
}

func matchesInetAddr(fd uintptr, sotype int, want net.Addr) (bool, error) {
	lsa, _ := unix.Getsockname(int(fd))
	var got net.Addr
	switch lsa.(type) {
	case *unix.SockaddrInet4:
		got = addrFunc(unix.AF_INET, sotype)(lsa)
	case *unix.SockaddrInet6:
		got = addrFunc(unix.AF_INET6, sotype)(lsa)
	default:
		return false, nil
	}
	return isSameIPAddr(got, want), nil
}

// IsListening tests only whether the descriptor is in listening state.
func IsListening(want bool) FileTest {
	return func(file *os.File) (bool, error) {
		w := -1
		if want {
			w = 1
		} else {
			w = 0
		}
		return isSocketInternal(file.Fd(), 0, w)
	}
}

// IsSoReusePort tests whether SO_REUSEPORT is set on the socket.
func IsSoReusePort() FileTest {
	return func(file *os.File) (bool, error) {
		fd := file.Fd()
		ok, err := isSocketInternal(fd, 0, -1)
		if !ok || err != nil {
			return false, err
		}
		val, err := unix.GetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT)
		if err != nil {
			return false, err
		}
		return val == 1, nil
	}
}

func sockaddrToTCP(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: sa.Addr[0:], Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: sa.Addr[0:], Port: sa.Port, Zone: zoneToString(int(sa.ZoneId))}
	}
	return nil
}

func sockaddrToUDP(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: sa.Addr[0:], Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: sa.Addr[0:], Port: sa.Port, Zone: zoneToString(int(sa.ZoneId))}
	}
	return nil
}

func sockaddrToUnix(sa unix.Sockaddr) net.Addr {
	if s, ok := sa.(*unix.SockaddrUnix); ok {
		return &net.UnixAddr{Name: s.Name, Net: "unix"}
	}
	return nil
}

func sockaddrToUnixgram(sa unix.Sockaddr) net.Addr {
	if s, ok := sa.(*unix.SockaddrUnix); ok {
		return &net.UnixAddr{Name: s.Name, Net: "unixgram"}
	}
	return nil
}

func sockaddrToUnixpacket(sa unix.Sockaddr) net.Addr {
	if s, ok := sa.(*unix.SockaddrUnix); ok {
		return &net.UnixAddr{Name: s.Name, Net: "unixpacket"}
	}
	return nil
}

func sockaddrToIP(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.IPAddr{IP: sa.Addr[0:]}
	case *unix.SockaddrInet6:
		return &net.IPAddr{IP: sa.Addr[0:], Zone: zoneToString(int(sa.ZoneId))}
	}
	return nil
}

func zoneToString(zone int) string {
	if zone == 0 {
		return ""
	}
	if ifi, err := net.InterfaceByIndex(zone); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(zone), 10)
}

func net2sotypeUnix(nett string) (int, error) {
	switch nett {
	case "unix":
		return unix.SOCK_STREAM, nil
	case "unixgram":
		return unix.SOCK_DGRAM, nil
	case "unixpacket":
		return unix.SOCK_SEQPACKET, nil
	default:
		return 0, net.UnknownNetworkError(nett)
	}
}

func addrFunc(family, sotype int) func(unix.Sockaddr) net.Addr {
	switch family {
	case unix.AF_INET, unix.AF_INET6:
		switch sotype {
		case unix.SOCK_STREAM:
			return sockaddrToTCP
		case unix.SOCK_DGRAM:
			return sockaddrToUDP
		case unix.SOCK_RAW:
			return sockaddrToIP
		}
	case unix.AF_UNIX:
		switch sotype {
		case unix.SOCK_STREAM:
			return sockaddrToUnix
		case unix.SOCK_DGRAM:
			return sockaddrToUnixgram
		case unix.SOCK_SEQPACKET:
			return sockaddrToUnixpacket
		}
	}
	return func(unix.Sockaddr) net.Addr { return nil }
}

func isSameUnixAddr(a1, a2 net.Addr) bool {
	return a1.Network() == a2.Network() && a1.String() == a2.String()
}

// isSameIPAddr compares two IP addresses, treating an IPv6 "any"
// address ("[::]") and an IPv4 "any" address ("0.0.0.0") as
// interchangeable — both mean "every interface" when listening on
// localhost.
func isSameIPAddr(a1, a2 net.Addr) bool {
	if a1.Network() != a2.Network() {
		return false
	}
	s1, s2 := a1.String(), a2.String()
	if s1 == s2 {
		return true
	}
	for _, prefix := range []string{"[::]", "0.0.0.0"} {
		s1 = strings.TrimPrefix(s1, prefix)
		s2 = strings.TrimPrefix(s2, prefix)
	}
	return s1 == s2
}
