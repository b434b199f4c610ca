package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/abligh/ircserv/internal/registry"
)

// doWHO implements "WHO <channel>" with a 352 reply per member followed by
// 315. A WHO for anything that is not a live channel yields only
// RPL_ENDOFWHO.
func doWHO(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	mask := "*"
	if len(params) > 0 && params[0] != "" {
		mask = params[0]
	}

	ch := s.Registry.Channel(mask)
	if ch != nil {
		for _, mid := range ch.SortedMembers() {
			member := s.Registry.Get(mid)
			if member == nil {
				continue
			}
			flags := "H"
			if ch.IsOperator(mid) {
				flags += "@"
			}
			c.Send(s.Name, rplWhoReply, ch.Name, member.Username, member.Hostname, s.Name,
				member.Nickname, flags, "0 "+member.Realname)
		}
	}
	c.Send(s.Name, rplEndOfWho, mask, "End of /WHO list")
}

// doWHOIS replies 311/312, then 319 when the target is on at least one
// channel, then 318.
func doWHOIS(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, errNoNicknameGiven, "No nickname given")
		return
	}
	nick := params[0]
	target := s.Registry.FindByNickname(nick)
	if target == nil {
		c.Send(s.Name, errNoSuchNick, nick, "No such nick/channel")
		return
	}

	c.Send(s.Name, rplWhoIsUser, target.Nickname, target.Username, target.Hostname, "*", target.Realname)
	c.Send(s.Name, rplWhoIsServer, target.Nickname, s.Name, "ircserv IRC server")

	var chanList []string
	for _, n := range target.ChannelNames() {
		ch := s.Registry.Channel(n)
		if ch == nil {
			continue
		}
		if ch.IsOperator(target.ID) {
			chanList = append(chanList, "@"+ch.Name)
		} else {
			chanList = append(chanList, ch.Name)
		}
	}
	if len(chanList) > 0 {
		sort.Strings(chanList)
		c.Send(s.Name, rplWhoIsChans, target.Nickname, ":"+strings.Join(chanList, " "))
	}

	c.Send(s.Name, rplEndOfWhoIs, target.Nickname, "End of /WHOIS list")
}

// doLIST sends 321, a 322 per live channel (name, member count, topic),
// and 323 to finish.
func doLIST(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	c.Send(s.Name, rplListStart, "Channel", "Users Name")
	for _, ch := range s.Registry.Channels() {
		c.Send(s.Name, rplList, ch.Name, strconv.Itoa(len(ch.Members)), ":"+ch.Topic)
	}
	c.Send(s.Name, rplListEnd, "End of /LIST")
}

// doNAMES re-sends the NAMES/ENDOFNAMES pair for a specific existing
// channel, the same reply JOIN produces; the caller need not be a member.
func doNAMES(s *Server, id registry.ConnID, c *registry.Connection, params []string) {
	if len(params) < 1 || params[0] == "" {
		c.Send(s.Name, rplEndOfNames, "*", "End of /NAMES list")
		return
	}
	ch := s.Registry.Channel(params[0])
	if ch == nil {
		c.Send(s.Name, rplEndOfNames, params[0], "End of /NAMES list")
		return
	}
	sendNames(s, c, ch)
}
