// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kernelUeventGroup is the netlink multicast group carrying raw
// kernel uevents (group 2 carries udevd's processed copies).
const kernelUeventGroup = 1

// ueventSource subscribes to kernel hotplug uevents over netlink. A
// self-pipe provides the synthetic wake that makes stop latency
// bounded: a blocked poll cannot otherwise be interrupted by a flag.
type ueventSource struct {
	fd      int
	wakeR   int
	wakeW   int
	recheck time.Duration
	log     *slog.Logger

	buf  []byte
	once sync.Once
}

// newUeventSource opens and binds the uevent socket. recheck caps the
// poll timeout so DPMS state is re-examined periodically even when no
// hotplug events arrive.
func newUeventSource(recheck time.Duration, log *slog.Logger) (*ueventSource, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("opening uevent socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelUeventGroup}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding uevent socket: %w", err)
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	return &ueventSource{
		fd:      fd,
		wakeR:   pipe[0],
		wakeW:   pipe[1],
		recheck: recheck,
		log:     log,
		buf:     make([]byte, 8192),
	}, nil
}

func (s *ueventSource) next() bool {
	for {
		fds := []unix.PollFd{
			{Fd: int32(s.fd), Events: unix.POLLIN},
			{Fd: int32(s.wakeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, int(s.recheck.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			s.log.Error("uevent poll failed", "err", err)
			s.releaseFDs()
			return false
		}
		if n == 0 {
			// Timeout: run a cycle anyway, for the DPMS recheck.
			return true
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			// Wake byte: stop requested.
			s.releaseFDs()
			return false
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}
		length, _, err := unix.Recvfrom(s.fd, s.buf, 0)
		if err != nil {
			continue
		}
		if relevantUevent(s.buf[:length]) {
			return true
		}
	}
}

// close unblocks next by writing the wake byte. Each end of the wake
// pipe has exactly one owner: close holds the write end, the loop
// goroutine tears down the read end and the socket on its way out, so
// neither side ever touches a descriptor the other may have freed.
// When the loop already exited on a poll error the write sees EPIPE,
// which is fine.
func (s *ueventSource) close() error {
	s.once.Do(func() {
		unix.Write(s.wakeW, []byte{0})
		unix.Close(s.wakeW)
	})
	return nil
}

// releaseFDs runs on the loop goroutine, exactly once, after the
// final poll.
func (s *ueventSource) releaseFDs() {
	unix.Close(s.fd)
	unix.Close(s.wakeR)
}

// relevantUevent reports whether a raw uevent concerns display
// topology. Kernel uevents are NUL-separated KEY=VALUE blocks after
// an "action@devpath" summary line; only the drm and i2c-dev
// subsystems matter here.
func relevantUevent(data []byte) bool {
	for _, field := range bytes.Split(data, []byte{0}) {
		value, ok := bytes.CutPrefix(field, []byte("SUBSYSTEM="))
		if !ok {
			continue
		}
		switch string(value) {
		case "drm", "i2c-dev":
			return true
		}
	}
	return false
}
