package registry

import (
	"time"

	"github.com/abligh/ircserv/internal/wire"
)

// ConnID is the stable handle by which the Registry and Channels refer to a
// connection. It is the connection's socket file descriptor: unique among
// live connections, and never reused for a new Connection while the old one
// is still registered. Channel member/operator/invite sets store this
// handle rather than a *Connection pointer, so a Channel never holds a
// reference back into a live connection object.
type ConnID int

// Connection is one accepted socket's registration state, identity, and
// I/O buffers. The reactor owns the raw socket and drives
// Inbound/Outbound; handlers mutate the identity and registration flags.
type Connection struct {
	ID ConnID

	Nickname string
	Username string
	Realname string
	Hostname string

	ReceivedPass bool
	ReceivedNick bool
	ReceivedUser bool
	Registered   bool
	WelcomeSent  bool

	LastActive time.Time

	Inbound  wire.Framer
	Outbound OutQueue

	// memberOf tracks the case-folded names of channels this connection
	// currently belongs to, maintained exclusively by the Registry so that
	// QUIT and idle-timeout cleanup can enumerate a connection's channels
	// without scanning every channel in the Registry.
	memberOf map[string]struct{}

	// ClosePending is set by a handler (QUIT) that has finished its
	// broadcast and channel cleanup but must not destroy the connection it
	// is running on. The reactor closes the socket and unregisters the
	// connection the next time it observes this flag.
	ClosePending bool
}

func newConnection(id ConnID) *Connection {
	return &Connection{
		ID:         id,
		LastActive: time.Now(),
		memberOf:   make(map[string]struct{}),
	}
}

// Touch records activity, resetting the idle timeout clock.
func (c *Connection) Touch(at time.Time) {
	c.LastActive = at
}

// MarkForClose flags the connection for teardown by the reactor once the
// current handler returns.
func (c *Connection) MarkForClose() {
	c.ClosePending = true
}

// Hostmask returns the nick!user@host prefix used on relayed messages.
func (c *Connection) Hostmask() string {
	return c.Nickname + "!" + c.Username + "@" + c.Hostname
}

// Send formats and enqueues a numeric or server-originated line addressed
// to this connection's current nickname, or "*" if it has none yet.
func (c *Connection) Send(server, verb string, args ...string) {
	recipient := c.Nickname
	if recipient == "" {
		recipient = "*"
	}
	full := append([]string{recipient}, args...)
	c.Outbound.Enqueue(wire.Format(server, verb, full...))
}

// Relay enqueues a fully-formed, already-addressed line (e.g. one produced
// by wire.Format with a peer's hostmask as the prefix).
func (c *Connection) Relay(line string) {
	c.Outbound.Enqueue(line)
}

// ChannelNames returns the case-folded names of every channel this
// connection is currently a member of. The returned slice is a snapshot;
// mutating the Registry afterward does not affect it.
func (c *Connection) ChannelNames() []string {
	names := make([]string, 0, len(c.memberOf))
	for n := range c.memberOf {
		names = append(names, n)
	}
	return names
}
