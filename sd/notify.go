package sd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	unix "syscall"
	"time"
)

const (
	envNotifySocket = "NOTIFY_SOCKET"
	envWatchdogUsec = "WATCHDOG_USEC"
	envWatchdogPid  = "WATCHDOG_PID"
)

const (
	goneUnixSocketLockFdName = "GONEUXSCKLCK"
)

// Status values accepted by NotifyStatus.
const (
	StatusNone = iota
	StatusReady
	StatusReloading
	StatusStopping
	StatusWatchdog
)

// Flags accepted by Notify.
const (
	// NotifyUnsetEnv unsets NOTIFY_SOCKET from the environment after
	// the message is sent, so a child this process later forks cannot
	// also claim to speak for the service manager.
	NotifyUnsetEnv = 1 << iota
	// NotifyWithFds attaches every currently tracked listener
	// descriptor to the notify message as an FDSTORE upload.
	NotifyWithFds
)

// ErrSdNotifyNoSocket is returned by Notify/NotifyStatus when the
// process was not started with a NOTIFY_SOCKET in its environment —
// the common case outside of systemd.
var ErrSdNotifyNoSocket = errors.New("sd: no systemd notify socket in environment")

var (
	watchdogDuration time.Duration
	watchdogEnabled  bool
	notifySocket     string
)

func init() {
	if usec, err := strconv.Atoi(os.Getenv(envWatchdogUsec)); err == nil {
		watchdogDuration = time.Duration(usec) * time.Microsecond
	}
	if pidStr, ok := os.LookupEnv(envWatchdogPid); ok && watchdogDuration != 0 {
		if pidStr == "" {
			watchdogEnabled = true
		} else if pid, err := strconv.Atoi(pidStr); err == nil && pid == os.Getpid() {
			watchdogEnabled = true
		}
	}
	if notifySocket = os.Getenv(envNotifySocket); notifySocket != "" && notifySocket[0] == '@' {
		// Abstract socket namespace: systemd spells it with a leading
		// '@', the kernel wants a leading NUL.
		notifySocket = "\x00" + notifySocket[1:]
	}
}

// WatchdogEnabled reports whether the service manager asked this
// process to send periodic StatusWatchdog keepalives, and at what
// interval.
func WatchdogEnabled() (enabled bool, interval time.Duration) {
	return watchdogEnabled, watchdogDuration
}

// NotifyStatus sends a single-line status update plus an optional
// state transition (ready/reloading/stopping/watchdog) to the service
// manager.
func NotifyStatus(status int, message string) error {
	var lines []string
	switch status {
	case StatusNone:
	case StatusReady:
		lines = append(lines, "READY=1")
	case StatusReloading:
		lines = append(lines, "RELOADING=1")
	case StatusStopping:
		lines = append(lines, "STOPPING=1")
	case StatusWatchdog:
		lines = append(lines, "WATCHDOG=1")
	default:
		return fmt.Errorf("sd: unknown notify status %d", status)
	}
	lines = append(lines, "STATUS="+message)
	return Notify(0, lines...)
}

// Notify sends lines to the service manager's notify socket, joined
// with newlines as sd_notify(3) expects. NotifyWithFds additionally
// attaches every descriptor currently tracked by Export/inherit as an
// FDSTORE upload, grouped into one message per fd name so each group
// can carry its own FDNAME.
func Notify(flags int, lines ...string) (err error) {
	if notifySocket == "" {
		return ErrSdNotifyNoSocket
	}
	if flags&NotifyUnsetEnv != 0 {
		defer os.Unsetenv(envNotifySocket)
	}

	dest := &net.UnixAddr{Name: notifySocket, Net: "unixgram"}
	src := &net.UnixAddr{Name: fmt.Sprintf("\x00sdnotify%d", os.Getpid()), Net: "unixgram"}

	conn, err := net.ListenUnixgram("unixgram", src)
	if err != nil {
		return err
	}
	defer conn.Close()

	state := strings.Join(lines, "\n")

	if flags&NotifyWithFds == 0 {
		_, _, err = conn.WriteMsgUnix([]byte(state), nil, dest)
		return err
	}

	byName := fdsByName()

	var oob []byte
	if unnamed, ok := byName[""]; ok {
		delete(byName, "")
		if state != "" {
			state += "\n"
		}
		state += "FDSTORE=1"
		oob = unix.UnixRights(unnamed...)
	}
	if _, _, err = conn.WriteMsgUnix([]byte(state), oob, dest); err != nil {
		return err
	}

	for name, fds := range byName {
		msg := "FDSTORE=1\nFDNAME=" + name
		if _, _, err = conn.WriteMsgUnix([]byte(msg), unix.UnixRights(fds...), dest); err != nil {
			return err
		}
	}
	return nil
}

// fdsByName groups every actively tracked descriptor — and its
// companion unix-socket unlink lock file, if any — by the name it was
// exported or inherited under.
func fdsByName() map[string][]int {
	byName := make(map[string][]int)
	for _, sdf := range fdState.activeFiles() {
		byName[sdf.name] = append(byName[sdf.name], int(sdf.File.Fd()))
		if sdf.lock != nil {
			byName[goneUnixSocketLockFdName] = append(byName[goneUnixSocketLockFdName], int(sdf.lock.Fd()))
		}
	}
	return byName
}
