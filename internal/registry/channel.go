package registry

import "sort"

// Channel is one active named group, identified by name including its
// leading '#'. Member/operator/invite sets hold ConnIDs rather than
// *Connection, so a Channel never needs a reference back to a live
// connection object.
type Channel struct {
	Name  string // canonical display name, fixed at creation time
	Topic string

	Members   map[ConnID]struct{}
	Operators map[ConnID]struct{}
	Invited   map[ConnID]struct{}

	InviteOnly      bool
	TopicRestricted bool
	Key             string
	UserLimit       int // 0 = no limit
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:      name,
		Members:   make(map[ConnID]struct{}),
		Operators: make(map[ConnID]struct{}),
		Invited:   make(map[ConnID]struct{}),
	}
}

// IsMember reports whether id currently belongs to the channel.
func (c *Channel) IsMember(id ConnID) bool {
	_, ok := c.Members[id]
	return ok
}

// IsOperator reports whether id is a channel operator. Operators are
// always a subset of Members; callers never need to check membership
// separately.
func (c *Channel) IsOperator(id ConnID) bool {
	_, ok := c.Operators[id]
	return ok
}

// IsInvited reports whether id holds a one-shot invite.
func (c *Channel) IsInvited(id ConnID) bool {
	_, ok := c.Invited[id]
	return ok
}

// addMember records id as a member. It does not check +i/+l/+k; the JOIN
// handler is responsible for those checks before calling it.
func (c *Channel) addMember(id ConnID) {
	c.Members[id] = struct{}{}
	delete(c.Invited, id)
}

// removeMember removes id from the member, operator, and invite sets
// together, so an ex-member can never linger as an operator or invitee.
func (c *Channel) removeMember(id ConnID) {
	delete(c.Members, id)
	delete(c.Operators, id)
	delete(c.Invited, id)
}

// Empty reports whether the channel has no members left; such a channel
// must not remain in the Registry.
func (c *Channel) Empty() bool {
	return len(c.Members) == 0
}

// ModeString renders the channel's current boolean/value modes as a single
// "+xyz" string, empty when no modes are set.
func (c *Channel) ModeString() string {
	s := ""
	if c.InviteOnly {
		s += "i"
	}
	if c.TopicRestricted {
		s += "t"
	}
	if c.Key != "" {
		s += "k"
	}
	if c.UserLimit > 0 {
		s += "l"
	}
	if s == "" {
		return ""
	}
	return "+" + s
}

// SortedMembers returns the channel's members in a deterministic order
// (ascending ConnID), used for NAMES/WHO replies and operator-succession
// promotion so test output is reproducible.
func (c *Channel) SortedMembers() []ConnID {
	ids := make([]ConnID, 0, len(c.Members))
	for id := range c.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
