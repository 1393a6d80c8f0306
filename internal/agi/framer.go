// ABOUTME: Framer splits an inbound byte stream into header records and response lines.
// ABOUTME: Purely data-driven: it accumulates and emits, it never times out.

package agi

import (
	"bytes"
	"strings"
)

// framerState tracks which record shape the Framer is currently splitting
// on.
type framerState int

const (
	// stateInit is active until the header block has been fully received.
	stateInit framerState = iota
	// stateWaiting is active for the remainder of the connection's life;
	// inbound bytes are split into newline-terminated command responses.
	stateWaiting
)

// framer accumulates inbound bytes and yields complete records: one
// header record while in stateInit, then individual lines thereafter.
// It holds no timers and performs no I/O; Channel feeds it bytes and
// drains records.
type framer struct {
	state framerState
	buf   []byte
}

func newFramer() *framer {
	return &framer{state: stateInit}
}

// feed appends data to the internal buffer and returns every record that
// became complete as a result, in arrival order.
func (f *framer) feed(data []byte) []string {
	f.buf = append(f.buf, data...)

	var records []string
	for {
		rec, ok := f.next()
		if !ok {
			break
		}
		records = append(records, rec)
	}
	return records
}

// next extracts one complete record from the buffer, if present.
func (f *framer) next() (string, bool) {
	switch f.state {
	case stateInit:
		idx := strings.Index(string(f.buf), "\n\n")
		if idx < 0 {
			return "", false
		}
		record := string(f.buf[:idx])
		f.buf = f.buf[idx+2:]
		f.state = stateWaiting
		return record, true

	default: // stateWaiting
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			return "", false
		}
		line := string(f.buf[:idx])
		f.buf = f.buf[idx+1:]
		line = strings.TrimRight(line, "\r")
		if line == "" {
			// Empty lines are discarded; recurse to pull the next
			// line from the buffer.
			return f.next()
		}
		return line, true
	}
}
