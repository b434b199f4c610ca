package commands

import (
	"strconv"
	"strings"

	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

func doJOIN(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, errNeedMoreParams, "JOIN", "Not enough parameters")
		return
	}
	name := params[0]
	key := ""
	if len(params) > 1 {
		key = params[1]
	}
	if !validateChannelName(name) {
		c.Send(s.Name, errNoSuchChannel, name, "No such channel")
		return
	}

	ch := s.Registry.Channel(name)
	if ch == nil {
		ch = s.Registry.CreateChannel(name)
		s.Registry.Join(ch, id)
		ch.Operators[id] = struct{}{}
	} else {
		if ch.InviteOnly && !ch.IsInvited(id) {
			c.Send(s.Name, errInviteOnlyChan, name, "Cannot join channel (+i)")
			return
		}
		if ch.UserLimit > 0 && len(ch.Members) >= ch.UserLimit {
			c.Send(s.Name, errChannelIsFull, name, "Cannot join channel (+l)")
			return
		}
		if ch.Key != "" && key != ch.Key {
			c.Send(s.Name, errBadChannelKey, name, "Cannot join channel (+k)")
			return
		}
		s.Registry.Join(ch, id)
	}

	joinLine := wire.Format(c.Hostmask(), "JOIN", ch.Name)
	s.broadcastChannel(ch, joinLine, noExclude)

	if ch.Topic == "" {
		c.Send(s.Name, rplNoTopic, ch.Name, "No topic is set")
	} else {
		c.Send(s.Name, rplTopic, ch.Name, ":"+ch.Topic)
	}
	sendNames(s, c, ch)
}

func sendNames(s *Server, c *registry.Connection, ch *registry.Channel) {
	names := make([]string, 0, len(ch.Members))
	for _, mid := range ch.SortedMembers() {
		member := s.Registry.Get(mid)
		if member == nil {
			continue
		}
		if ch.IsOperator(mid) {
			names = append(names, "@"+member.Nickname)
		} else {
			names = append(names, member.Nickname)
		}
	}
	c.Send(s.Name, rplNamReply, "=", ch.Name, ":"+strings.Join(names, " "))
	c.Send(s.Name, rplEndOfNames, ch.Name, "End of /NAMES list")
}

func doPART(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 {
		c.Send(s.Name, errNeedMoreParams, "PART", "Not enough parameters")
		return
	}
	name := params[0]
	ch := s.Registry.Channel(name)
	if ch == nil || !ch.IsMember(id) {
		c.Send(s.Name, errNotOnChannel, name, "You're not on that channel")
		return
	}
	reason := ""
	if len(params) > 1 {
		reason = params[1]
	}

	var line string
	if reason != "" {
		line = wire.Format(c.Hostmask(), "PART", ch.Name, ":"+reason)
	} else {
		line = wire.Format(c.Hostmask(), "PART", ch.Name)
	}
	s.broadcastChannel(ch, line, noExclude)

	chName := ch.Name
	result := s.Registry.Leave(ch, id)
	if !result.Deleted && result.Promoted != 0 {
		if promoted := s.Registry.Get(result.Promoted); promoted != nil {
			s.broadcastChannel(ch, wire.Format(s.Name, "MODE", chName, "+o", promoted.Nickname), noExclude)
		}
	}
}

func doKICK(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 2 {
		c.Send(s.Name, errNeedMoreParams, "KICK", "Not enough parameters")
		return
	}
	name, targetNick := params[0], params[1]
	ch := s.Registry.Channel(name)
	if ch == nil || !ch.IsMember(id) {
		c.Send(s.Name, errNotOnChannel, name, "You're not on that channel")
		return
	}
	if !ch.IsOperator(id) {
		c.Send(s.Name, errChanOPrivsNeeded, name, "You're not channel operator")
		return
	}
	target := s.Registry.FindByNickname(targetNick)
	if target == nil {
		c.Send(s.Name, errNoSuchNick, targetNick, "No such nick/channel")
		return
	}
	if !ch.IsMember(target.ID) {
		c.Send(s.Name, errUserNotInChannel, targetNick, name, "They aren't on that channel")
		return
	}

	reason := c.Nickname
	if len(params) > 2 && params[2] != "" {
		reason = params[2]
	}
	line := wire.Format(c.Hostmask(), "KICK", ch.Name, target.Nickname, ":"+reason)
	s.broadcastChannel(ch, line, noExclude)

	chName := ch.Name
	result := s.Registry.Leave(ch, target.ID)
	if !result.Deleted && result.Promoted != 0 {
		if promoted := s.Registry.Get(result.Promoted); promoted != nil {
			s.broadcastChannel(ch, wire.Format(s.Name, "MODE", chName, "+o", promoted.Nickname), noExclude)
		}
	}
}

func doINVITE(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 2 {
		c.Send(s.Name, errNeedMoreParams, "INVITE", "Not enough parameters")
		return
	}
	targetNick, name := params[0], params[1]
	ch := s.Registry.Channel(name)
	if ch == nil || !ch.IsMember(id) || !ch.IsOperator(id) {
		c.Send(s.Name, errChanOPrivsNeeded, name, "You're not channel operator")
		return
	}
	target := s.Registry.FindByNickname(targetNick)
	if target == nil {
		c.Send(s.Name, errNoSuchNick, targetNick, "No such nick/channel")
		return
	}
	if ch.IsMember(target.ID) {
		c.Send(s.Name, errUserOnChannel, targetNick, name, "is already on channel")
		return
	}

	ch.Invited[target.ID] = struct{}{}
	c.Send(s.Name, rplInviting, targetNick, name)
	target.Relay(wire.Format(c.Hostmask(), "INVITE", target.Nickname, ":"+ch.Name))
}

func doTOPIC(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 {
		c.Send(s.Name, errNeedMoreParams, "TOPIC", "Not enough parameters")
		return
	}
	name := params[0]
	ch := s.Registry.Channel(name)
	if ch == nil || !ch.IsMember(id) {
		c.Send(s.Name, errNotOnChannel, name, "You're not on that channel")
		return
	}

	if len(params) == 1 {
		if ch.Topic == "" {
			c.Send(s.Name, rplNoTopic, ch.Name, "No topic is set")
		} else {
			c.Send(s.Name, rplTopic, ch.Name, ":"+ch.Topic)
		}
		return
	}

	if ch.TopicRestricted && !ch.IsOperator(id) {
		c.Send(s.Name, errChanOPrivsNeeded, name, "You're not channel operator")
		return
	}

	ch.Topic = params[1]
	s.broadcastChannel(ch, wire.Format(c.Hostmask(), "TOPIC", ch.Name, ":"+ch.Topic), noExclude)
}

func doMODE(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 {
		c.Send(s.Name, errNeedMoreParams, "MODE", "Not enough parameters")
		return
	}
	name := params[0]
	ch := s.Registry.Channel(name)
	if ch == nil || !ch.IsMember(id) {
		c.Send(s.Name, errNotOnChannel, name, "You're not on that channel")
		return
	}

	if len(params) == 1 {
		modeStr := ch.ModeString()
		if modeStr == "" {
			modeStr = "+"
		}
		c.Send(s.Name, rplChannelModeIs, ch.Name, modeStr)
		return
	}

	if !ch.IsOperator(id) {
		c.Send(s.Name, errChanOPrivsNeeded, name, "You're not channel operator")
		return
	}

	applied, args, ok := applyModes(s, ch, params[1], params[2:])
	if !ok {
		c.Send(s.Name, errUnknownMode, name, "is unknown mode char to me")
	}
	if applied != "" {
		lineArgs := append([]string{ch.Name, applied}, args...)
		s.broadcastChannel(ch, wire.Format(c.Hostmask(), "MODE", lineArgs...), noExclude)
	}
}

// applyModes parses a single modestring (e.g. "+i-l+k") left to right
// against extraArgs (the parameters consumed in order by args-taking
// modes), mutating ch. It returns the "+/-letters" actually applied (in
// order, skipping ignored no-op settings), the consumed argument tokens in
// order, and whether parsing completed without hitting an unknown mode
// letter.
func applyModes(s *Server, ch *registry.Channel, modeString string, extraArgs []string) (applied string, usedArgs []string, ok bool) {
	sign := byte('+')
	argIdx := 0
	nextArg := func() (string, bool) {
		if argIdx >= len(extraArgs) {
			return "", false
		}
		v := extraArgs[argIdx]
		argIdx++
		return v, true
	}

	for i := 0; i < len(modeString); i++ {
		m := modeString[i]
		switch m {
		case '+', '-':
			sign = m
			continue
		case 'i':
			ch.InviteOnly = sign == '+'
			applied += string(sign) + "i"
		case 't':
			ch.TopicRestricted = sign == '+'
			applied += string(sign) + "t"
		case 'k':
			if sign == '+' {
				key, got := nextArg()
				if !got || key == "" {
					continue
				}
				ch.Key = key
				applied += "+k"
				usedArgs = append(usedArgs, key)
			} else {
				ch.Key = ""
				applied += "-k"
			}
		case 'l':
			if sign == '+' {
				raw, got := nextArg()
				if !got {
					continue
				}
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					continue
				}
				ch.UserLimit = n
				applied += "+l"
				usedArgs = append(usedArgs, raw)
			} else {
				ch.UserLimit = 0
				applied += "-l"
			}
		case 'o':
			nick, got := nextArg()
			if !got {
				continue
			}
			target := s.Registry.FindByNickname(nick)
			if target == nil || !ch.IsMember(target.ID) {
				continue
			}
			if sign == '+' {
				ch.Operators[target.ID] = struct{}{}
			} else {
				delete(ch.Operators, target.ID)
			}
			applied += string(sign) + "o"
			usedArgs = append(usedArgs, target.Nickname)
		default:
			return applied, usedArgs, false
		}
	}
	return applied, usedArgs, true
}
