package config

import "testing"

func TestParseValid(t *testing.T) {
	c, err := Parse([]string{"6667", "hunter2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != 6667 {
		t.Errorf("Port = %d, want 6667", c.Port)
	}
	if c.Password != "hunter2" {
		t.Errorf("Password = %q, want %q", c.Password, "hunter2")
	}
}

func TestParseBadPort(t *testing.T) {
	cases := []string{"0", "65536", "-1", "notanumber", ""}
	for _, port := range cases {
		if _, err := Parse([]string{port, "pw"}); err == nil {
			t.Errorf("Parse(%q, pw) succeeded, want error", port)
		}
	}
}

func TestParseEmptyPassword(t *testing.T) {
	if _, err := Parse([]string{"6667", ""}); err == nil {
		t.Errorf("Parse with empty password succeeded, want error")
	}
}

func TestParseWrongArgCount(t *testing.T) {
	for _, args := range [][]string{nil, {"6667"}, {"6667", "pw", "extra"}} {
		if _, err := Parse(args); err == nil {
			t.Errorf("Parse(%v) succeeded, want error", args)
		}
	}
}
