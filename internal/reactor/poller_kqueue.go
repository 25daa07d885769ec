//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// SPDX-License-Identifier: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

type kqueuePoller struct {
	kq    int
	flags map[int]pollFlags
}

func newPoller() (poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmtErr("kqueue", err)
	}
	return &kqueuePoller{kq: kq, flags: make(map[int]pollFlags)}, nil
}

func (p *kqueuePoller) add(fd int, flags pollFlags) error {
	prev := p.flags[fd]
	changes := kqueueChangelist(fd, prev, flags)
	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return fmtErr("kevent register", err)
		}
	}
	p.flags[fd] = flags
	return nil
}

func (p *kqueuePoller) modify(fd int, flags pollFlags) error {
	return p.add(fd, flags)
}

func (p *kqueuePoller) remove(fd int) error {
	prev, ok := p.flags[fd]
	if !ok {
		return nil
	}
	delete(p.flags, fd)
	changes := kqueueChangelist(fd, prev, 0)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err != nil {
		return fmtErr("kevent unregister", err)
	}
	return nil
}

// kqueueChangelist computes the EV_ADD/EV_DELETE changes needed to move a
// descriptor's watched flags from prev to next.
func kqueueChangelist(fd int, prev, next pollFlags) []unix.Kevent_t {
	var changes []unix.Kevent_t
	wantRead, hadRead := next&pollRead != 0, prev&pollRead != 0
	wantWrite, hadWrite := next&pollWrite != 0, prev&pollWrite != 0

	if wantRead && !hadRead {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if !wantRead && hadRead {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if wantWrite && !hadWrite {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE})
	} else if !wantWrite && hadWrite {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	return changes
}

func (p *kqueuePoller) wait(timeoutMS int, out []ready) ([]ready, error) {
	var events [256]unix.Kevent_t
	ts := unix.NsecToTimespec(int64(timeoutMS) * int64(1e6))
	n, err := unix.Kevent(p.kq, nil, events[:], &ts)
	if err != nil {
		if err == unix.EINTR {
			return out, nil
		}
		return out, fmtErr("kevent wait", err)
	}

	byFD := make(map[int]int, n)
	for i := 0; i < n; i++ {
		e := events[i]
		fd := int(e.Ident)
		idx, ok := byFD[fd]
		if !ok {
			out = append(out, ready{fd: fd})
			idx = len(out) - 1
			byFD[fd] = idx
		}
		switch e.Filter {
		case unix.EVFILT_READ:
			out[idx].readable = true
		case unix.EVFILT_WRITE:
			out[idx].writable = true
		}
		if e.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			out[idx].errored = true
		}
	}
	return out, nil
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}
