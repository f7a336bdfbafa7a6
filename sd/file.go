package sd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	unix "syscall"
)

const (
	envListenFds       = "LISTEN_FDS"
	envListenPid       = "LISTEN_PID"
	envListenFdNames   = "LISTEN_FDNAMES"
	envIgnoreListenPid = "LISTEN_PID_IGNORE" // escape hatch for tests that can't set LISTEN_PID
	sdListenFdStart    = 3
)

// envGoneFdInfo carries a ':'-separated per-fd flag string alongside
// LISTEN_FDNAMES; only the "u" flag (this fd is a flock(2) guarding a
// UNIX socket file, not a socket itself) is defined.
const envGoneFdInfo = "GONE_FDINFO"

var fdState *state

// filer is satisfied by anything that can hand over a dup'd *os.File
// of itself — net.Listener, net.PacketConn, and friends all do.
type filer interface {
	File() (*os.File, error)
}

// sdfile pairs an inherited or exported descriptor with the systemd
// socket name it is known by, which is unrelated to whatever
// (*os.File).Name() reports for a socket fd.
type sdfile struct {
	*os.File
	name string
	lock *os.File // flock(2) guarding the UNIX socket file this fd represents, if any
}

func (f *sdfile) close() error {
	return f.File.Close()
}

// state tracks the descriptors this process inherited, which of those
// remain available for FileWith to hand out, and which have since
// been claimed (Export'ed) into active use.
type state struct {
	mutex       sync.Mutex
	inheritOnce sync.Once

	err   error
	count int
	names []string

	available []*sdfile

	// active indexes every exported descriptor by the object it was
	// exported under (or nil once that object's fd has been reclaimed);
	// a map because the same underlying fd could in principle be
	// exported more than once under different keys.
	active map[interface{}]*sdfile
}

func newState() *state {
	return &state{active: make(map[interface{}]*sdfile)}
}

func init() {
	fdState = newState()
	fdState.inherit()
}

func (s *state) activeFiles() []*sdfile {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.activeFilesLocked()
}

func (s *state) activeFilesLocked() []*sdfile {
	files := make([]*sdfile, 0, len(s.active))
	for _, f := range s.active {
		if f != nil {
			files = append(files, f)
		}
	}
	return files
}

// Cleanup closes every inherited descriptor that was never claimed via
// Export.
func Cleanup() {
	fdState.cleanup()
}

func (s *state) cleanup() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cleanupLocked()
}

func (s *state) cleanupLocked() {
	for _, f := range s.available {
		if f != nil {
			f.close()
		}
	}
	s.available = nil
}

// Reset closes every descriptor not currently active, then makes the
// active set available again as if freshly inherited — useful for
// tests that want to simulate a second round of socket activation
// within the same process.
func Reset() {
	fdState.reset()
}

func (s *state) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cleanupLocked()

	s.available = s.activeFilesLocked()
	s.names = s.names[:0]
	for _, f := range s.available {
		if f != nil {
			s.names = append(s.names, f.name)
		}
	}
	s.count = len(s.available)
	s.err = nil
	s.active = make(map[interface{}]*sdfile)
}

// inherit parses LISTEN_FDS/LISTEN_PID/LISTEN_FDNAMES/GONE_FDINFO on
// first use, claiming descriptors sdListenFdStart..sdListenFdStart+count
// as inherited and making them available to FileWith. It unsets the
// activation env vars so a child this process later execs does not
// also think it was socket-activated.
func (s *state) inherit() error {
	var retErr error

	s.inheritOnce.Do(func() {
		defer os.Unsetenv(envListenPid)
		defer os.Unsetenv(envListenFds)
		defer os.Unsetenv(envListenFdNames)
		defer os.Unsetenv(envGoneFdInfo)

		countStr := os.Getenv(envListenFds)
		if countStr == "" {
			return // nothing inherited
		}

		// Go cannot set LISTEN_PID on a respawned child, so tests that
		// exercise respawn set envIgnoreListenPid instead of a real pid.
		if pidStr := os.Getenv(envListenPid); pidStr != "" {
			pid, err := strconv.Atoi(pidStr)
			if err != nil {
				retErr = err
				return
			}
			if pid != os.Getpid() && os.Getenv(envIgnoreListenPid) == "" {
				fmt.Println("sd: inherited fds are not for this pid", pid)
				return
			}
		}

		count, err := strconv.Atoi(countStr)
		if err != nil {
			retErr = fmt.Errorf("sd: invalid %s=%q", envListenFds, countStr)
			return
		}

		var names []string
		if namesStr := os.Getenv(envListenFdNames); namesStr != "" {
			names = strings.Split(namesStr, ":")
		}
		var fdinfo []string
		if infoStr := os.Getenv(envGoneFdInfo); infoStr != "" {
			fdinfo = strings.Split(infoStr, ":")
		}

		var sum int
		var nidx int
		var locksFromFdstore []int
		for fd := sdListenFdStart; fd < sdListenFdStart+count; fd++ {
			var lock *os.File
			var filename string
			var listeningUnixSocket bool

			if fdinfo != nil && fdinfo[nidx] == "u" {
				if path, ok := listeningUnixSocketPath(fd + 1); ok {
					lock = os.NewFile(uintptr(fd), path+".lock")
					filename = path
					listeningUnixSocket = true
					unix.CloseOnExec(fd)
				} else {
					retErr = unix.Close(fd)
				}
				fd++ // step past the socket fd this lock guards
				nidx++
			}

			var name string
			if names != nil {
				if names[nidx] == goneUnixSocketLockFdName {
					locksFromFdstore = append(locksFromFdstore, fd)
					continue
				}
				name = names[nidx]
				s.names = append(s.names, name)
			}

			unix.CloseOnExec(fd) // close unless explicitly re-exported later
			if !listeningUnixSocket {
				filename = "fd:" + name
			}
			s.available = append(s.available, &sdfile{
				File: os.NewFile(uintptr(fd), filename),
				name: name,
				lock: lock,
			})
			nidx++
			sum++
		}

		// Match up FDSTORE-delivered lock fds with the socket they guard
		// by comparing device/inode of each lock's expected path.
		for _, sdf := range s.available {
			if sdf.lock != nil || locksFromFdstore == nil {
				continue
			}
			path, ok := listeningUnixSocketPath(int(sdf.Fd()))
			if !ok {
				continue
			}
			var want unix.Stat_t
			if err := unix.Stat(path+".lock", &want); err != nil {
				if err == unix.ENOENT {
					continue
				}
				retErr = err
				return
			}
			for _, lockfd := range locksFromFdstore {
				var got unix.Stat_t
				if err := unix.Fstat(lockfd, &got); err != nil {
					retErr = err
					return
				}
				if want.Dev == got.Dev && want.Ino == got.Ino {
					sdf.lock = os.NewFile(uintptr(lockfd), path+".lock")
				}
			}
		}

		s.count = sum
	})
	s.err = retErr
	return retErr
}

// Forget makes the package stop tracking a descriptor that was
// previously Export'ed — either by its systemd name (closing every
// active descriptor under that name) or by the exact object Export
// was called with.
func Forget(f interface{}) error {
	s := fdState
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if name, ok := f.(string); ok {
		for key, file := range s.active {
			if file != nil && file.name == name {
				file.File.Close()
				if file.lock != nil {
					file.lock.Close()
				}
				delete(s.active, key)
			}
		}
		return nil
	}

	file, ok := s.active[f]
	if !ok {
		return errors.New("sd: file descriptor not exported")
	}
	file.File.Close()
	if file.lock != nil {
		file.lock.Close()
	}
	delete(s.active, f)
	return nil
}

// Export records a dup(2) of f's descriptor under sdname and marks it
// active, so a future restart can hand it back via
// InheritNamedListener/FileWith. Closing f itself afterwards does not
// close the tracked descriptor. Call Forget to stop tracking it.
func Export(sdname string, f interface{}) error {
	return exportInternal(sdname, f, nil)
}

func exportInternal(sdname string, f interface{}, lock *os.File) error {
	var file *os.File
	switch tf := f.(type) {
	case *os.File:
		newfd, err := dupCloseOnExec(int(tf.Fd()))
		if err != nil {
			return err
		}
		file = os.NewFile(uintptr(newfd), tf.Name())
	case filer:
		var err error
		file, err = tf.File() // File() already dups
		if err != nil {
			return err
		}
		if err := unix.SetNonblock(int(file.Fd()), true); err != nil {
			file.Close()
			return err
		}
	default:
		return errors.New("sd: unsupported type, not exported")
	}

	s := fdState
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, already := s.active[f]; already {
		file.Close()
		return errors.New("sd: file descriptor already exported")
	}
	s.active[f] = &sdfile{File: file, name: sdname, lock: lock}
	return nil
}

func dupCloseOnExec(fd int) (int, error) {
	return fcntl(fd, unix.F_DUPFD_CLOEXEC, 0)
}

func fcntl(fd int, cmd int, arg int) (int, error) {
	r0, _, errno := unix.Syscall(unix.SYS_FCNTL, uintptr(fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return 0, fmt.Errorf("sd: fcntl: %w", errno)
	}
	return int(r0), nil
}

// FileWith claims and returns the first available inherited
// descriptor named sdname (or any name, if sdname is "") that passes
// every test. The descriptor is removed from the available pool
// either way it returns; Export it to keep tracking it, or it leaks.
func FileWith(sdname string, tests ...FileTest) (rfile *os.File, rname string, err error) {
	s := fdState
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i, candidate := range s.available {
		if candidate == nil {
			continue
		}
		if sdname != "" && candidate.name != sdname {
			continue
		}
		ok, testErr := candidate.isMatching(tests...)
		if testErr != nil {
			return nil, "", testErr
		}
		if ok {
			s.available[i] = nil
			return candidate.File, candidate.name, nil
		}
	}
	return nil, "", nil
}

// ListenFdsWithNames reports how many descriptors were inherited at
// startup, their systemd names, and any error encountered parsing
// them. Reset invalidates and recomputes these values.
func ListenFdsWithNames() (count int, names []string, err error) {
	fdState.mutex.Lock()
	defer fdState.mutex.Unlock()
	return fdState.count, fdState.names, fdState.err
}
