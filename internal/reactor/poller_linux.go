//go:build linux

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

type epollPoller struct {
	epfd int
	// flags mirrors what we last told the kernel about each fd, since
	// epoll_ctl needs EPOLL_CTL_ADD vs EPOLL_CTL_MOD and we don't want to
	// probe the kernel to find out which applies.
	flags map[int]pollFlags
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmtErr("epoll_create1", err)
	}
	return &epollPoller{epfd: fd, flags: make(map[int]pollFlags)}, nil
}

func toEpollEvents(flags pollFlags) uint32 {
	var ev uint32
	if flags&pollRead != 0 {
		ev |= unix.EPOLLIN
	}
	if flags&pollWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(fd int, flags pollFlags) error {
	ev := unix.EpollEvent{Events: toEpollEvents(flags), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.flags[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmtErr("epoll_ctl", err)
	}
	p.flags[fd] = flags
	return nil
}

func (p *epollPoller) modify(fd int, flags pollFlags) error {
	return p.add(fd, flags)
}

func (p *epollPoller) remove(fd int) error {
	if _, ok := p.flags[fd]; !ok {
		return nil
	}
	delete(p.flags, fd)
	// Events arg is ignored for EPOLL_CTL_DEL on modern kernels, but older
	// kernels require a non-nil pointer.
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	if err != nil {
		return fmtErr("epoll_ctl del", err)
	}
	return nil
}

func (p *epollPoller) wait(timeoutMS int, out []ready) ([]ready, error) {
	var events [256]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, fmtErr("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		e := events[i]
		out = append(out, ready{
			fd:       int(e.Fd),
			readable: e.Events&unix.EPOLLIN != 0,
			writable: e.Events&unix.EPOLLOUT != 0,
			errored:  e.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
