package wire

import "bytes"

// maxLineBacklog bounds how much unterminated input a Framer will retain
// before the reactor should treat the connection as misbehaving. It is not
// a hard protocol limit; it exists so a client that never sends a newline
// cannot grow the inbound buffer without bound.
const maxLineBacklog = 64 * 1024

// Framer splits an inbound byte stream into wire lines on CRLF boundaries,
// tolerating a bare LF for lenient clients. It owns no socket; the reactor
// feeds it bytes as they're read and drains lines from it after each feed.
type Framer struct {
	buf bytes.Buffer
}

// Feed appends newly read bytes to the inbound buffer.
func (f *Framer) Feed(p []byte) {
	f.buf.Write(p)
}

// Overflowed reports whether the inbound buffer has grown past the
// no-newline backlog bound; the reactor should close such a connection.
func (f *Framer) Overflowed() bool {
	return f.buf.Len() > maxLineBacklog
}

// Next extracts and removes the next complete line from the inbound
// buffer, if one is present. The returned line has its terminator (CRLF or
// bare LF, with any trailing CR stripped) removed. Empty lines are skipped
// silently; Next only returns ok=false once no terminator remains in the
// buffer at all.
func (f *Framer) Next() (line string, ok bool) {
	for {
		b := f.buf.Bytes()
		idx := bytes.IndexByte(b, '\n')
		if idx == -1 {
			return "", false
		}
		raw := b[:idx]
		raw = bytes.TrimSuffix(raw, []byte("\r"))
		f.buf.Next(idx + 1)
		if len(raw) == 0 {
			continue
		}
		return string(raw), true
	}
}
