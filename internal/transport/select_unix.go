//go:build unix

package transport

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// SelectReady runs a single raw select(2) over the given TCP connections and
// returns the indices of those that are readable within timeout. It exists
// to give the spec's "select-based multiplexer" a literal, testable home:
// the production Master Listener uses one goroutine per connection instead
// (idiomatic Go), but this function is exercised directly by the transport
// tests as the corrected realization of the source's maxfd computation,
// which the spec's design notes call out as wrong on non-POSIX platforms
// (using only the first socket's fd). Here maxfd is always
// 1 + max(fd_i) across every connection passed in.
func SelectReady(conns []*net.TCPConn, timeout time.Duration) ([]int, error) {
	if len(conns) == 0 {
		return nil, nil
	}

	fds := make([]int, len(conns))
	maxfd := 0
	var rfds unix.FdSet
	for i, c := range conns {
		sc, err := c.SyscallConn()
		if err != nil {
			return nil, err
		}
		var fd int
		if cerr := sc.Control(func(f uintptr) { fd = int(f) }); cerr != nil {
			return nil, cerr
		}
		fds[i] = fd
		if fd > maxfd {
			maxfd = fd
		}
		fdSetBit(&rfds, fd)
	}

	tv := unix.NsecToTimeval(int64(timeout))
	n, err := unix.Select(maxfd+1, &rfds, nil, nil, &tv)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]int, 0, n)
	for i, fd := range fds {
		if fdIsSet(&rfds, fd) {
			ready = append(ready, i)
		}
	}
	return ready, nil
}

func fdSetBit(set *unix.FdSet, fd int) {
	idx := fd / 64
	bit := uint(fd % 64)
	set.Bits[idx] |= 1 << bit
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	idx := fd / 64
	bit := uint(fd % 64)
	return set.Bits[idx]&(1<<bit) != 0
}
