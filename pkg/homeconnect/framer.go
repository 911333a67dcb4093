package homeconnect

import (
	"bytes"
	"strings"
)

// Framer accumulates raw stream fragments and cuts them into complete SSE
// messages. Messages are delimited by a blank line; partial messages stay in
// the buffer until the rest arrives, so the yielded sequence is independent of
// how the transport chunks the stream.
type Framer struct {
	buf          []byte
	sawDelimiter bool
}

func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends a fragment and returns every message completed by it, in order.
func (f *Framer) Feed(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var msgs []string
	for {
		f.buf = bytes.TrimLeft(f.buf, "\n")
		idx := bytes.Index(f.buf, []byte("\n\n"))
		if idx < 0 {
			break
		}
		f.sawDelimiter = true
		msg := string(f.buf[:idx])
		rest := f.buf[idx+2:]
		f.buf = append(f.buf[:0], rest...)
		if strings.TrimSpace(msg) != "" {
			msgs = append(msgs, msg)
		}
	}

	// Some upstreams push each message as a bare "data: {...}" line without
	// blank-line framing. A lone complete data line that closes its JSON
	// object is taken as a full message. Disabled once the upstream has shown
	// it does frame with blank lines.
	if len(msgs) == 0 && !f.sawDelimiter {
		if msg, ok := f.takeBareDataLine(); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Reset discards any buffered partial message. Called on (re)connect.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
	f.sawDelimiter = false
}

// Buffered returns the number of not-yet-framed bytes.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

func (f *Framer) takeBareDataLine() (string, bool) {
	if len(f.buf) == 0 || f.buf[len(f.buf)-1] != '\n' {
		return "", false
	}
	line := strings.TrimRight(string(f.buf), "\r\n")
	if strings.Contains(line, "\n") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") || !strings.HasSuffix(strings.TrimSpace(line), "}") {
		return "", false
	}
	f.buf = f.buf[:0]
	return line, true
}
