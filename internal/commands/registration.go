package commands

import (
	"strings"
	"time"

	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

func doPASS(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if c.Registered {
		c.Send(s.Name, errAlreadyRegistred, "You may not reregister")
		return
	}
	if len(params) < 1 {
		c.Send(s.Name, errNeedMoreParams, "PASS", "Not enough parameters")
		return
	}
	if params[0] != s.Password {
		c.Send(s.Name, errPasswdMismatch, "Password incorrect")
		return
	}
	c.ReceivedPass = true
	s.maybeCompleteRegistration(c)
}

func doNICK(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, errNoNicknameGiven, "No nickname given")
		return
	}
	nick := params[0]
	if !validateNickname(nick) {
		c.Send(s.Name, errErroneusNick, nick, "Erroneous nickname")
		return
	}
	if s.Registry.NicknameInUse(nick, id) {
		c.Send(s.Name, errNicknameInUse, nick, "Nickname is already in use")
		return
	}
	s.Registry.SetNickname(id, nick)
	c.ReceivedNick = true
	s.maybeCompleteRegistration(c)
}

func doUSER(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if c.Registered {
		c.Send(s.Name, errAlreadyRegistred, "You may not reregister")
		return
	}
	if len(params) < 4 {
		c.Send(s.Name, errNeedMoreParams, "USER", "Not enough parameters")
		return
	}
	c.Username = params[0]
	c.Realname = params[3]
	c.ReceivedUser = true
	s.maybeCompleteRegistration(c)
}

func doCAP(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 {
		return
	}
	nick := c.Nickname
	if nick == "" {
		nick = "*"
	}
	switch strings.ToUpper(params[0]) {
	case "LS":
		c.Relay(wire.Format(s.Name, "CAP", nick, "LS", ""))
	case "REQ":
		c.Relay(wire.Format(s.Name, "CAP", nick, "NAK", ""))
	case "END":
		// negotiation finished; nothing to do.
	}
}

func doQUIT(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	reason := "Client Quit"
	if len(params) > 0 && params[0] != "" {
		reason = params[0]
	}
	s.Disconnect(id, c, reason)
	c.MarkForClose()
}

// Disconnect broadcasts a QUIT to every peer sharing a channel with c (once
// per peer even when several channels are shared, never echoed to c itself)
// and removes c from every channel it belongs to. It does not touch the
// socket or the Registry's connection table: the QUIT handler still has to
// MarkForClose, and the reactor's idle-timeout and I/O-error teardown paths
// call this before they remove the connection from the Registry outright.
func (s *Server) Disconnect(id registry.ConnID, c *registry.Connection, reason string) {
	line := wire.Format(c.Hostmask(), "QUIT", ":"+reason)
	notified := map[registry.ConnID]bool{id: true}
	for _, name := range c.ChannelNames() {
		ch := s.Registry.Channel(name)
		if ch == nil {
			continue
		}
		for _, mid := range ch.SortedMembers() {
			if notified[mid] {
				continue
			}
			notified[mid] = true
			if member := s.Registry.Get(mid); member != nil {
				member.Relay(line)
			}
		}
		s.Registry.Leave(ch, id)
	}
}

func doPING(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, errNeedMoreParams, "PING", "Not enough parameters")
		return
	}
	c.Relay(wire.Format(s.Name, "PONG", s.Name, ":"+params[0]))
}

func doPONG(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	c.Touch(time.Now())
}
