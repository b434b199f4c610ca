// Package registry holds the in-memory data model shared by every
// connection: fd→Connection, nickname→Connection, channel-name→Channel,
// and the cross-cutting operations (registration, channel membership,
// teardown) that keep the model consistent between dispatcher iterations:
// a channel exists iff it has members, operators are always members, and
// a nickname maps to at most one live connection. The reactor runs
// single-threaded, so Registry does no locking of its own.
package registry

import (
	"fmt"
	"sort"
)

// Registry is the sole owner of every Connection and Channel; all other
// references into it are non-owning ConnID/name handles.
type Registry struct {
	conns    map[ConnID]*Connection
	channels map[string]*Channel // keyed by CaseFold(name)
	nicks    map[string]ConnID   // keyed by CaseFold(nick)
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[ConnID]*Connection),
		channels: make(map[string]*Channel),
		nicks:    make(map[string]ConnID),
	}
}

// AddConnection creates and registers a new Connection for a freshly
// accepted socket.
func (r *Registry) AddConnection(id ConnID, hostname string) *Connection {
	c := newConnection(id)
	c.Hostname = hostname
	r.conns[id] = c
	return c
}

// Get returns the Connection for id, or nil if it is not (or no longer)
// registered.
func (r *Registry) Get(id ConnID) *Connection {
	return r.conns[id]
}

// FindByNickname looks up a registered connection by nickname,
// case-insensitively under RFC 1459 casemapping.
func (r *Registry) FindByNickname(nick string) *Connection {
	id, ok := r.nicks[CaseFold(nick)]
	if !ok {
		return nil
	}
	return r.conns[id]
}

// NicknameInUse reports whether nick is already claimed by a connection
// other than excluding (pass 0 to check against all connections).
func (r *Registry) NicknameInUse(nick string, excluding ConnID) bool {
	id, ok := r.nicks[CaseFold(nick)]
	return ok && id != excluding
}

// SetNickname assigns nick to id, updating the nickname index. The caller
// (the NICK handler) is responsible for first checking NicknameInUse.
func (r *Registry) SetNickname(id ConnID, nick string) {
	c := r.conns[id]
	if c == nil {
		return
	}
	if c.Nickname != "" {
		delete(r.nicks, CaseFold(c.Nickname))
	}
	c.Nickname = nick
	r.nicks[CaseFold(nick)] = id
}

// RemoveConnection removes id from the Registry entirely: the nickname
// index, every channel it belonged to, and the connection table itself.
// It returns, for each channel the connection was a member of, the
// channel's name, whether it was deleted as a result (became empty), and
// the ConnID promoted to operator if the operator set was emptied (0 if
// none). The Registry formats and enqueues no wire messages itself; the
// reactor's teardown runs commands.Server.Disconnect (which broadcasts QUIT
// and leaves every channel) before calling this, and ignores the result.
func (r *Registry) RemoveConnection(id ConnID) []LeaveResult {
	c := r.conns[id]
	if c == nil {
		return nil
	}

	results := make([]LeaveResult, 0, len(c.memberOf))
	for key := range c.memberOf {
		ch := r.channels[key]
		if ch == nil {
			continue
		}
		results = append(results, r.leave(ch, id))
	}

	if c.Nickname != "" {
		delete(r.nicks, CaseFold(c.Nickname))
	}
	delete(r.conns, id)
	return results
}

// LeaveResult describes the effect of removing one connection from one
// channel.
type LeaveResult struct {
	ChannelName string
	Deleted     bool
	Promoted    ConnID // 0 if no promotion occurred
}

// Channel returns the channel named name, or nil if none exists.
// Lookup is case-insensitive; the returned Channel's Name field preserves
// the case it was created with.
func (r *Registry) Channel(name string) *Channel {
	return r.channels[CaseFold(name)]
}

// CreateChannel creates and registers a new, empty channel named name. The
// caller must add the creating connection as a member immediately
// afterward; a registered channel's member set is never empty.
func (r *Registry) CreateChannel(name string) *Channel {
	ch := newChannel(name)
	r.channels[CaseFold(name)] = ch
	return ch
}

// Join adds id to ch's member set and records the membership on the
// Connection side. It does not check +i/+l/+k; callers must do so first.
func (r *Registry) Join(ch *Channel, id ConnID) {
	ch.addMember(id)
	if c := r.conns[id]; c != nil {
		c.memberOf[CaseFold(ch.Name)] = struct{}{}
	}
}

// Leave removes id from ch, deleting the channel if it becomes empty and
// promoting a new operator if the operator set became empty. See
// LeaveResult for the returned outcome.
func (r *Registry) Leave(ch *Channel, id ConnID) LeaveResult {
	return r.leave(ch, id)
}

func (r *Registry) leave(ch *Channel, id ConnID) LeaveResult {
	wasOperator := len(ch.Operators) > 0
	ch.removeMember(id)
	if c := r.conns[id]; c != nil {
		delete(c.memberOf, CaseFold(ch.Name))
	}

	result := LeaveResult{ChannelName: ch.Name}

	if ch.Empty() {
		delete(r.channels, CaseFold(ch.Name))
		result.Deleted = true
		return result
	}

	if wasOperator && len(ch.Operators) == 0 {
		promoted := ch.SortedMembers()[0]
		ch.Operators[promoted] = struct{}{}
		result.Promoted = promoted
	}

	return result
}

// Conns returns a snapshot of every registered connection, in no particular
// order, for the reactor's idle-timeout sweep.
func (r *Registry) Conns() []*Connection {
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Channels returns every live channel, ordered by name, for LIST.
func (r *Registry) Channels() []*Channel {
	chans := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i].Name < chans[j].Name })
	return chans
}

// String is used only by tests/debugging to get a stable snapshot of
// registry sizes.
func (r *Registry) String() string {
	return fmt.Sprintf("Registry{conns:%d channels:%d}", len(r.conns), len(r.channels))
}
