// Package commands implements the command dispatcher and the protocol
// semantics of every handled IRC verb. It holds all protocol knowledge;
// the reactor and registry packages know nothing about what a JOIN or a
// PRIVMSG means.
package commands

import (
	"log"
	"strings"
	"time"

	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

// noExclude is passed to broadcastChannel when no member should be
// skipped; -1 can never collide with a real ConnID (a socket fd).
const noExclude registry.ConnID = -1

// Server holds everything a command handler needs: the shared Registry,
// the listen-time password, and the server name advertised on every reply.
type Server struct {
	Registry *registry.Registry
	Password string
	Name     string
	Created  time.Time
	Logger   *log.Logger
}

// New returns a Server ready to dispatch commands against reg.
func New(reg *registry.Registry, password string, logger *log.Logger) *Server {
	return &Server{
		Registry: reg,
		Password: password,
		Name:     "ircserv",
		Created:  time.Now(),
		Logger:   logger,
	}
}

type handlerFunc func(s *Server, id registry.ConnID, c *registry.Connection, params []string)

// allowedPreRegistration is the set of verbs a not-yet-registered
// connection may use without tripping ERR_NOTREGISTERED.
var allowedPreRegistration = map[string]bool{
	"PASS": true,
	"NICK": true,
	"USER": true,
	"CAP":  true,
	"QUIT": true,
}

var handlers = map[string]handlerFunc{
	"PASS":    doPASS,
	"NICK":    doNICK,
	"USER":    doUSER,
	"CAP":     doCAP,
	"QUIT":    doQUIT,
	"PING":    doPING,
	"PONG":    doPONG,
	"JOIN":    doJOIN,
	"PART":    doPART,
	"PRIVMSG": doPRIVMSG,
	"NOTICE":  doNOTICE,
	"KICK":    doKICK,
	"INVITE":  doINVITE,
	"TOPIC":   doTOPIC,
	"MODE":    doMODE,
	"WHO":     doWHO,
	"WHOIS":   doWHOIS,
	"LIST":    doLIST,
	"NAMES":   doNAMES,
}

// Dispatch routes one parsed message to its handler, rejecting anything
// other than PASS/NICK/USER/CAP/QUIT from an unregistered connection.
func (s *Server) Dispatch(id registry.ConnID, msg wire.Message) {
	c := s.Registry.Get(id)
	if c == nil || msg.Command == "" {
		return
	}

	if !c.Registered && !allowedPreRegistration[msg.Command] {
		// NOTICE is dropped silently even here; everything else gets 451.
		if msg.Command != "NOTICE" {
			c.Send(s.Name, errNotRegistered, "You have not registered")
		}
		return
	}

	h, ok := handlers[msg.Command]
	if !ok {
		c.Send(s.Name, errUnknownCommand, msg.Command, "Unknown command")
		return
	}
	h(s, id, c, msg.Params)
}

// maybeCompleteRegistration fires the welcome burst exactly once, the
// instant PASS/NICK/USER have all landed.
func (s *Server) maybeCompleteRegistration(c *registry.Connection) {
	if c.WelcomeSent {
		return
	}
	if !(c.ReceivedPass && c.ReceivedNick && c.ReceivedUser) {
		return
	}
	if c.Nickname == "" || c.Username == "" {
		return
	}
	c.Registered = true
	c.WelcomeSent = true
	s.sendWelcome(c)
}

func (s *Server) sendWelcome(c *registry.Connection) {
	c.Send(s.Name, rplWelcome, "Welcome to the Internet Relay Network "+c.Hostmask())
	c.Send(s.Name, rplYourHost, "Your host is "+s.Name+", running version ircserv-1.0")
	c.Send(s.Name, rplCreated, "This server was created "+s.Created.Format(time.RFC1123))
	c.Send(s.Name, rplMyInfo, s.Name, "ircserv-1.0", "o", "itkl")
	c.Send(s.Name, rplISupport, "CHANTYPES=#", "CASEMAPPING=rfc1459", "PREFIX=(o)@", "are supported by this server")
}

// broadcastChannel relays line to every member of ch except exclude.
func (s *Server) broadcastChannel(ch *registry.Channel, line string, exclude registry.ConnID) {
	for _, id := range ch.SortedMembers() {
		if id == exclude {
			continue
		}
		if member := s.Registry.Get(id); member != nil {
			member.Relay(line)
		}
	}
}

// validateChannelName requires a leading '#', at most 50 characters, and
// none of space, comma, NUL, CR, LF.
func validateChannelName(name string) bool {
	if len(name) == 0 || len(name) > 50 {
		return false
	}
	if name[0] != '#' {
		return false
	}
	return !strings.ContainsAny(name, " ,\x00\r\n")
}

func isNickStart(b byte) bool {
	if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') {
		return true
	}
	switch b {
	case '[', ']', '\\', '`', '_', '^', '{', '}':
		return true
	}
	return false
}

func isNickChar(b byte) bool {
	return isNickStart(b) || (b >= '0' && b <= '9') || b == '-'
}

// validateNickname enforces RFC 1459 nickname syntax with a 9-character cap.
func validateNickname(n string) bool {
	if n == "" || len(n) > 9 {
		return false
	}
	if !isNickStart(n[0]) {
		return false
	}
	for i := 1; i < len(n); i++ {
		if !isNickChar(n[i]) {
			return false
		}
	}
	return true
}
