//go:build windows

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/windows"

// wsaPollPoller re-scans the whole registered set on every wait call, since
// WSAPoll (unlike epoll/kqueue) takes the full descriptor list each time
// rather than maintaining kernel-side registrations.
type wsaPollPoller struct {
	flags map[int]pollFlags
}

func newPoller() (poller, error) {
	return &wsaPollPoller{flags: make(map[int]pollFlags)}, nil
}

func (p *wsaPollPoller) add(fd int, flags pollFlags) error {
	p.flags[fd] = flags
	return nil
}

func (p *wsaPollPoller) modify(fd int, flags pollFlags) error {
	p.flags[fd] = flags
	return nil
}

func (p *wsaPollPoller) remove(fd int) error {
	delete(p.flags, fd)
	return nil
}

func (p *wsaPollPoller) wait(timeoutMS int, out []ready) ([]ready, error) {
	if len(p.flags) == 0 {
		return out, nil
	}

	fds := make([]windows.WSAPollFd, 0, len(p.flags))
	order := make([]int, 0, len(p.flags))
	for fd, flags := range p.flags {
		var events int16
		if flags&pollRead != 0 {
			events |= windows.POLLRDNORM
		}
		if flags&pollWrite != 0 {
			events |= windows.POLLWRNORM
		}
		fds = append(fds, windows.WSAPollFd{Fd: windows.Handle(fd), Events: events})
		order = append(order, fd)
	}

	n, err := windows.WSAPoll(fds, timeoutMS)
	if err != nil {
		return out, fmtErr("wsapoll", err)
	}
	if n == 0 {
		return out, nil
	}

	for i, pfd := range fds {
		if pfd.REvents == 0 {
			continue
		}
		out = append(out, ready{
			fd:       order[i],
			readable: pfd.REvents&(windows.POLLRDNORM|windows.POLLIN) != 0,
			writable: pfd.REvents&windows.POLLWRNORM != 0,
			errored:  pfd.REvents&(windows.POLLERR|windows.POLLHUP|windows.POLLNVAL) != 0,
		})
	}
	return out, nil
}

func (p *wsaPollPoller) close() error {
	return nil
}
