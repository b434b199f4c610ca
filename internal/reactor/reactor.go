// Package reactor drives the single-threaded, non-blocking event loop that
// owns every socket: the listener and every accepted connection. It knows
// nothing about IRC; it reads bytes, feeds them to a wire.Framer, and hands
// complete lines to commands.Server.Dispatch. All I/O is readiness-driven
// over an epoll set; no handler or write ever blocks the loop.
package reactor

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/sys/unix"

	"github.com/abligh/ircserv/internal/commands"
	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

const (
	maxEvents         = 64
	pollTimeoutMs     = 200
	idleSweepInterval = 60 * time.Second
	idleTimeout       = 300 * time.Second
	readBufSize       = 4096
	listenBacklog     = 128
)

// Reactor owns the listening socket, the epoll instance, and the
// accept/read/write loop. Registry and Server are the only state it
// shares with the rest of the program.
type Reactor struct {
	Registry *registry.Registry
	Server   *commands.Server
	Logger   *log.Logger

	epfd      int
	listenFd  int
	lastSweep time.Time

	// wantWrite tracks which connections are currently registered for
	// EPOLLOUT because a previous write did not drain the OutQueue.
	wantWrite map[registry.ConnID]bool
}

// New returns a Reactor ready to Run against reg and srv.
func New(reg *registry.Registry, srv *commands.Server, logger *log.Logger) *Reactor {
	return &Reactor{
		Registry:  reg,
		Server:    srv,
		Logger:    logger,
		wantWrite: make(map[registry.ConnID]bool),
	}
}

// Run binds port, then services the event loop until stop is closed or an
// unrecoverable error occurs. It blocks for the lifetime of the server.
func (r *Reactor) Run(port int, stop <-chan struct{}) error {
	listenFd, err := bindListener(port, listenBacklog)
	if err != nil {
		return err
	}
	r.listenFd = listenFd
	defer unix.Close(listenFd)

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	r.epfd = epfd
	defer unix.Close(epfd)

	if err := r.epollAdd(listenFd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("epoll_ctl listener: %w", err)
	}

	r.Logger.Printf("[INFO] Listening on port %d", port)

	events := make([]unix.EpollEvent, maxEvents)
	r.lastSweep = time.Now()

	for {
		select {
		case <-stop:
			r.Logger.Printf("[INFO] Shutdown requested")
			return nil
		default:
		}

		n, err := unix.EpollWait(epfd, events, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == listenFd {
				r.acceptAll()
				continue
			}
			r.serviceConn(registry.ConnID(fd), events[i].Events)
		}

		r.flushPending()
		r.sweepIdle()
	}
}

// acceptAll drains every pending connection on the listening socket,
// non-blocking accept4 returning EAGAIN once the backlog is empty.
func (r *Reactor) acceptAll() {
	for {
		fd, sa, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if err == unix.EINTR {
				continue
			}
			r.Logger.Printf("[ERROR] accept4: %v", err)
			return
		}

		id := registry.ConnID(fd)
		c := r.Registry.AddConnection(id, hostnameOf(sa))
		if err := r.epollAdd(fd, unix.EPOLLIN); err != nil {
			r.Logger.Printf("[ERROR] epoll_ctl add fd=%d: %v", fd, err)
			unix.Close(fd)
			r.Registry.RemoveConnection(id)
			continue
		}
		r.Logger.Printf("[INFO] Accepted connection fd=%d from %s", fd, c.Hostname)
	}
}

// serviceConn handles one readiness notification for an established
// connection: read (new lines dispatched), write (drain OutQueue), and
// error/hangup (teardown).
func (r *Reactor) serviceConn(id registry.ConnID, mask uint32) {
	c := r.Registry.Get(id)
	if c == nil {
		// Already torn down earlier in this same batch of events.
		return
	}

	if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		r.teardown(id, c, "Connection reset by peer")
		return
	}

	if mask&unix.EPOLLIN != 0 {
		if !r.readReady(id, c) {
			return
		}
	}

	c = r.Registry.Get(id)
	if c == nil {
		return
	}

	if mask&unix.EPOLLOUT != 0 || c.Outbound.Pending() {
		r.flushOutbound(id, c)
	}

	c = r.Registry.Get(id)
	if c != nil && c.ClosePending {
		r.teardown(id, c, "")
	}
}

// readReady drains the socket into c's Framer, dispatching every complete
// line. It returns false if the connection was torn down (EOF, I/O error,
// or oversized line) during the call.
func (r *Reactor) readReady(id registry.ConnID, c *registry.Connection) bool {
	buf := make([]byte, readBufSize)
	for {
		n, err := unix.Read(int(id), buf)
		if n > 0 {
			c.Touch(time.Now())
			c.Inbound.Feed(buf[:n])
			if c.Inbound.Overflowed() {
				r.teardown(id, c, "Input line too long")
				return false
			}
			for {
				line, ok := c.Inbound.Next()
				if !ok {
					break
				}
				r.Server.Dispatch(id, wire.ParseLine(line))
				if c.ClosePending {
					r.teardown(id, c, "")
					return false
				}
			}
		}
		if err == nil {
			if n == 0 {
				r.teardown(id, c, "Connection closed")
				return false
			}
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		if err == unix.EINTR {
			continue
		}
		r.teardown(id, c, "Read error")
		return false
	}
}

// flushOutbound writes as much of c's pending output as the socket will
// currently accept, registering/unregistering EPOLLOUT interest as
// needed so the reactor is woken up again once the kernel buffer drains.
func (r *Reactor) flushOutbound(id registry.ConnID, c *registry.Connection) {
	for c.Outbound.Pending() {
		staging := c.Outbound.Staging()
		n, err := unix.Write(int(id), staging)
		if n > 0 {
			c.Outbound.Advance(n)
		}
		if err == nil {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			r.wantEpollOut(id, true)
			return
		}
		if err == unix.EINTR {
			continue
		}
		r.teardown(id, c, "Write error")
		return
	}
	r.wantEpollOut(id, false)
}

// flushPending writes out messages enqueued for connections that were not
// part of the current readiness batch: a channel broadcast lands on idle
// peers whose sockets had nothing to read, so nothing else would flush
// them or arm their write interest before the next wait.
func (r *Reactor) flushPending() {
	for _, c := range r.Registry.Conns() {
		if c.Outbound.Pending() && !r.wantWrite[c.ID] {
			r.flushOutbound(c.ID, c)
		}
	}
}

func (r *Reactor) wantEpollOut(id registry.ConnID, want bool) {
	if r.wantWrite[id] == want {
		return
	}
	events := uint32(unix.EPOLLIN)
	if want {
		events |= unix.EPOLLOUT
	}
	if err := r.epollMod(int(id), events); err == nil {
		r.wantWrite[id] = want
	}
}

// teardown runs the QUIT broadcast (unless the connection already ran it
// via the QUIT handler), then removes the connection from the Registry
// and closes its socket. reason is ignored when the connection already
// has ClosePending set, since Disconnect already ran.
func (r *Reactor) teardown(id registry.ConnID, c *registry.Connection, reason string) {
	if c.ClosePending {
		reason = "client quit"
	} else {
		r.Server.Disconnect(id, c, reason)
	}
	r.Registry.RemoveConnection(id)
	delete(r.wantWrite, id)
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(id), nil)
	unix.Close(int(id))
	r.Logger.Printf("[INFO] Closed connection fd=%d: %s", id, reason)
}

// sweepIdle closes any connection that has not produced traffic within
// idleTimeout, once per idleSweepInterval.
func (r *Reactor) sweepIdle() {
	now := time.Now()
	if now.Sub(r.lastSweep) < idleSweepInterval {
		return
	}
	r.lastSweep = now

	for _, c := range r.Registry.Conns() {
		if now.Sub(c.LastActive) > idleTimeout {
			r.teardown(c.ID, c, "Ping timeout")
		}
	}
}

func (r *Reactor) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (r *Reactor) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

// bindListener creates a non-blocking, SO_REUSEADDR TCP listening socket
// bound to 0.0.0.0:port.
func bindListener(port int, backlog int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind :%d: %w", port, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// hostnameOf renders a peer sockaddr as a dotted-quad string for use as a
// Connection's Hostname, falling back to a placeholder for address families
// unix.Accept4 should never actually return here.
func hostnameOf(sa unix.Sockaddr) string {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		ip := sa4.Addr
		return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
	}
	return "0.0.0.0"
}
