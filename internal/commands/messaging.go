package commands

import (
	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

func doPRIVMSG(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, errNoRecipient, "No recipient given (PRIVMSG)")
		return
	}
	if len(params) < 2 || params[1] == "" {
		c.Send(s.Name, errNoTextToSend, "No text to send")
		return
	}
	deliver(s, id, c, "PRIVMSG", params[0], params[1])
}

func doNOTICE(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 2 || params[0] == "" || params[1] == "" {
		// NOTICE never generates an error reply (RFC 2812 §3.3.2).
		return
	}
	deliver(s, id, c, "NOTICE", params[0], params[1])
}

// deliver sends text to target, which may be a channel or a nickname, via
// verb (PRIVMSG or NOTICE). NOTICE suppresses every error reply.
func deliver(s *Server, id registry.ConnID, c *registry.Connection, verb, target, text string) {
	line := wire.Format(c.Hostmask(), verb, target, ":"+text)

	if len(target) > 0 && target[0] == '#' {
		ch := s.Registry.Channel(target)
		if ch == nil {
			if verb == "PRIVMSG" {
				c.Send(s.Name, errNoSuchChannel, target, "No such channel")
			}
			return
		}
		if !ch.IsMember(id) {
			if verb == "PRIVMSG" {
				c.Send(s.Name, errNotOnChannel, target, "You're not on that channel")
			}
			return
		}
		s.broadcastChannel(ch, line, id)
		return
	}

	peer := s.Registry.FindByNickname(target)
	if peer == nil {
		if verb == "PRIVMSG" {
			c.Send(s.Name, errNoSuchNick, target, "No such nick/channel")
		}
		return
	}
	peer.Relay(line)
}
