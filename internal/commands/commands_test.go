package commands

import (
	"io"
	"log"
	"testing"

	"github.com/abligh/ircserv/internal/registry"
	"github.com/abligh/ircserv/internal/wire"
)

func newTestServer() (*Server, *registry.Registry) {
	reg := registry.New()
	logger := log.New(io.Discard, "", 0)
	return New(reg, "pw", logger), reg
}

// drain pulls every queued message off c's outbound queue as whole strings,
// the same way the reactor's flushOutbound would after a successful write.
func drain(c *registry.Connection) []string {
	var out []string
	for c.Outbound.Pending() {
		b := c.Outbound.Staging()
		if len(b) == 0 {
			break
		}
		out = append(out, string(b))
		c.Outbound.Advance(len(b))
	}
	return out
}

func register(t *testing.T, s *Server, reg *registry.Registry, id registry.ConnID, host, nick, user string) *registry.Connection {
	t.Helper()
	c := reg.AddConnection(id, host)
	s.Dispatch(id, wire.ParseLine("PASS pw"))
	s.Dispatch(id, wire.ParseLine("NICK "+nick))
	s.Dispatch(id, wire.ParseLine("USER "+user+" 0 * :Real Name"))
	if !c.Registered {
		t.Fatalf("connection %d failed to register: %v", id, drain(c))
	}
	drain(c) // discard the welcome burst; individual tests don't assert on it here
	return c
}

// TestRegistrationBurst: a single PASS/NICK/USER sequence fires exactly
// one welcome burst, in numeric order.
func TestRegistrationBurst(t *testing.T) {
	s, reg := newTestServer()
	c := reg.AddConnection(1, "host-a")

	s.Dispatch(1, wire.ParseLine("PASS pw"))
	s.Dispatch(1, wire.ParseLine("NICK Alice"))
	s.Dispatch(1, wire.ParseLine("USER a 0 * :Real"))

	lines := drain(c)
	wantCodes := []string{"001", "002", "003", "004", "005"}
	if len(lines) != len(wantCodes) {
		t.Fatalf("got %d welcome lines, want %d: %v", len(lines), len(wantCodes), lines)
	}
	for i, code := range wantCodes {
		if !contains(lines[i], " "+code+" ") {
			t.Errorf("line %d = %q, want numeric %s", i, lines[i], code)
		}
		if !contains(lines[i], " Alice ") {
			t.Errorf("line %d = %q, want addressed to Alice", i, lines[i])
		}
	}
	if !c.Registered || !c.WelcomeSent {
		t.Fatalf("connection did not complete registration: %+v", c)
	}

	// A second pass through USER (post-registration) must not re-fire the
	// burst and must be rejected with 462.
	s.Dispatch(1, wire.ParseLine("USER a 0 * :Real"))
	lines = drain(c)
	if len(lines) != 1 || !contains(lines[0], " 462 ") {
		t.Fatalf("expected a single 462 reply to re-registration, got %v", lines)
	}
}

// A second connection claiming a taken nickname gets 433 addressed to "*".
func TestNicknameCollision(t *testing.T) {
	s, reg := newTestServer()
	register(t, s, reg, 1, "host-a", "Alice", "a")

	cb := reg.AddConnection(2, "host-b")
	s.Dispatch(2, wire.ParseLine("PASS pw"))
	s.Dispatch(2, wire.ParseLine("NICK Alice"))
	lines := drain(cb)
	found := false
	for _, l := range lines {
		if l == ":ircserv 433 * Alice :Nickname is already in use\r\n" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 433 collision reply, got %v", lines)
	}
}

// A channel PRIVMSG reaches every member except the sender.
func TestJoinAndBroadcast(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "host-a", "Alice", "a")
	b := register(t, s, reg, 2, "host-b", "Bob", "b")

	s.Dispatch(1, wire.ParseLine("JOIN #r"))
	drain(a)
	s.Dispatch(2, wire.ParseLine("JOIN #r"))
	drain(a)
	drain(b)

	s.Dispatch(1, wire.ParseLine("PRIVMSG #r :hi"))
	aLines := drain(a)
	bLines := drain(b)

	if len(aLines) != 0 {
		t.Fatalf("sender should not receive its own broadcast, got %v", aLines)
	}
	want := ":Alice!a@host-a PRIVMSG #r :hi\r\n"
	if len(bLines) != 1 || bLines[0] != want {
		t.Fatalf("Bob received %v, want [%q]", bLines, want)
	}
}

// +i blocks JOIN with 473 until an operator INVITEs the caller.
func TestInviteOnly(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "host-a", "Alice", "a")
	b := register(t, s, reg, 2, "host-b", "Bob", "b")

	s.Dispatch(1, wire.ParseLine("JOIN #r"))
	drain(a)

	s.Dispatch(1, wire.ParseLine("MODE #r +i"))
	drain(a)

	s.Dispatch(2, wire.ParseLine("JOIN #r"))
	lines := drain(b)
	want := ":ircserv 473 Bob #r :Cannot join channel (+i)\r\n"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("got %v, want [%q]", lines, want)
	}

	s.Dispatch(1, wire.ParseLine("INVITE Bob #r"))
	drain(a)
	drain(b)

	s.Dispatch(2, wire.ParseLine("JOIN #r"))
	ch := reg.Channel("#r")
	if !ch.IsMember(2) {
		t.Fatalf("Bob should have joined #r after being invited")
	}
}

// A self-kick that empties the operator set promotes the first remaining
// member and broadcasts the MODE +o.
func TestKickAndOperatorSuccession(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "host-a", "Alice", "a")
	b := register(t, s, reg, 2, "host-b", "Bob", "b")
	cc := register(t, s, reg, 3, "host-c", "Carol", "c")

	s.Dispatch(1, wire.ParseLine("JOIN #r"))
	s.Dispatch(2, wire.ParseLine("JOIN #r"))
	s.Dispatch(3, wire.ParseLine("JOIN #r"))
	drain(a)
	drain(b)
	drain(cc)

	s.Dispatch(1, wire.ParseLine("KICK #r Alice :bye"))
	aLines := drain(a)
	bLines := drain(b)
	cLines := drain(cc)

	kickLine := ":Alice!a@host-a KICK #r Alice :bye\r\n"
	promoteLine := ":ircserv MODE #r +o Bob\r\n"

	// Alice is already removed from the member set by the time the
	// promotion broadcast goes out, so she sees only the KICK line; Bob
	// and Carol, still members, see both.
	if len(aLines) != 1 || aLines[0] != kickLine {
		t.Fatalf("Alice saw %v, want [%q]", aLines, kickLine)
	}
	for name, lines := range map[string][]string{"Bob": bLines, "Carol": cLines} {
		if len(lines) != 2 || lines[0] != kickLine || lines[1] != promoteLine {
			t.Fatalf("%s saw %v, want [%q %q]", name, lines, kickLine, promoteLine)
		}
	}

	ch := reg.Channel("#r")
	if ch.IsMember(1) {
		t.Fatalf("Alice should have been removed from #r")
	}
	if !ch.IsOperator(2) {
		t.Fatalf("Bob should have been promoted to operator")
	}
}

// QUIT reaches each peer exactly once, including a peer sharing more than
// one channel with the quitter, and never echoes to the quitter itself.
func TestQuitBroadcast(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "host-a", "Alice", "a")
	b := register(t, s, reg, 2, "host-b", "Bob", "b")
	cc := register(t, s, reg, 3, "host-c", "Carol", "c")

	// Bob shares only #r with Alice; Carol shares both #r and #s.
	s.Dispatch(1, wire.ParseLine("JOIN #r"))
	s.Dispatch(2, wire.ParseLine("JOIN #r"))
	s.Dispatch(3, wire.ParseLine("JOIN #r"))
	s.Dispatch(1, wire.ParseLine("JOIN #s"))
	s.Dispatch(3, wire.ParseLine("JOIN #s"))
	drain(a)
	drain(b)
	drain(cc)

	s.Dispatch(1, wire.ParseLine("QUIT :Goodbye"))
	if !a.ClosePending {
		t.Fatalf("QUIT must mark the connection for close, not close it inline")
	}
	if aLines := drain(a); len(aLines) != 0 {
		t.Fatalf("QUIT must not echo to the quitter, got %v", aLines)
	}

	bLines := drain(b)
	cLines := drain(cc)
	want := ":Alice!a@host-a QUIT :Goodbye\r\n"
	if len(bLines) != 1 || bLines[0] != want {
		t.Fatalf("Bob saw %v, want [%q]", bLines, want)
	}
	if len(cLines) != 1 || cLines[0] != want {
		t.Fatalf("Carol saw %v, want exactly one %q", cLines, want)
	}

	if ch := reg.Channel("#s"); ch == nil || !ch.IsMember(3) {
		t.Fatalf("#s should survive with Carol still a member")
	}
	if ch := reg.Channel("#r"); ch == nil || !ch.IsMember(2) {
		t.Fatalf("#r should survive with Bob still a member")
	}
}

func TestNicknameLengthBoundary(t *testing.T) {
	s, reg := newTestServer()
	c := reg.AddConnection(1, "h")
	s.Dispatch(1, wire.ParseLine("PASS pw"))
	drain(c)

	s.Dispatch(1, wire.ParseLine("NICK Abcdefghi")) // 9 chars
	if lines := drain(c); len(lines) != 0 {
		t.Fatalf("9-character nickname rejected: %v", lines)
	}
	if c.Nickname != "Abcdefghi" {
		t.Fatalf("Nickname = %q, want Abcdefghi", c.Nickname)
	}

	s.Dispatch(1, wire.ParseLine("NICK Abcdefghij")) // 10 chars
	lines := drain(c)
	if len(lines) != 1 || !contains(lines[0], " 432 ") {
		t.Fatalf("expected 432 for 10-character nickname, got %v", lines)
	}
	if c.Nickname != "Abcdefghi" {
		t.Fatalf("rejected NICK must not change the nickname, got %q", c.Nickname)
	}
}

// Setting and clearing +i returns the channel's mode set to its prior state.
func TestModeToggleIdentity(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "h", "Alice", "a")

	s.Dispatch(1, wire.ParseLine("JOIN #x"))
	drain(a)

	before := reg.Channel("#x").ModeString()
	s.Dispatch(1, wire.ParseLine("MODE #x +i"))
	s.Dispatch(1, wire.ParseLine("MODE #x -i"))
	drain(a)
	if after := reg.Channel("#x").ModeString(); after != before {
		t.Fatalf("mode string = %q after +i/-i, want %q", after, before)
	}
}

func TestPrivmsgErrors(t *testing.T) {
	s, reg := newTestServer()
	a := register(t, s, reg, 1, "h", "Alice", "a")

	cases := []struct {
		line string
		code string
	}{
		{"PRIVMSG", "411"},
		{"PRIVMSG Bob", "412"},
		{"PRIVMSG #nowhere :hi", "403"},
		{"PRIVMSG Nobody :hi", "401"},
	}
	for _, tc := range cases {
		s.Dispatch(1, wire.ParseLine(tc.line))
		lines := drain(a)
		if len(lines) != 1 || !contains(lines[0], " "+tc.code+" ") {
			t.Errorf("%q: got %v, want numeric %s", tc.line, lines, tc.code)
		}
	}

	// NOTICE takes the same routing but never complains.
	for _, line := range []string{"NOTICE", "NOTICE Bob", "NOTICE #nowhere :hi", "NOTICE Nobody :hi"} {
		s.Dispatch(1, wire.ParseLine(line))
		if lines := drain(a); len(lines) != 0 {
			t.Errorf("%q: NOTICE produced replies %v", line, lines)
		}
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
