// Package sd gives the netdevice server systemd-compatible process
// lifecycle hooks: inherited listener sockets on socket-activated
// restart, sd_notify(3) readiness/status signaling, and FDSTORE-backed
// descriptor handoff across a re-exec.
//
// None of this requires systemd to actually be present. With no
// LISTEN_FDS inherited, NamedListenTCP/NamedListenUnix fall back to an
// ordinary net.Listen; with no NOTIFY_SOCKET, Notify and NotifyStatus
// return ErrSdNotifyNoSocket rather than blocking or panicking.
//
// See https://www.freedesktop.org/software/systemd/man/daemon.html for
// the wire-level contract this package implements against.
package sd
