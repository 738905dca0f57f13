package stream

import "bytes"

// LineBuffer splits a chunked byte stream into complete lines. A line split
// across chunks is held back until its newline arrives.
type LineBuffer struct {
	pending []byte
}

// Feed appends chunk and returns every line it completed, without the
// trailing newline.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.pending = append(b.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(b.pending[:i]))
		b.pending = b.pending[i+1:]
	}

	if len(b.pending) == 0 {
		b.pending = nil
	}
	return lines
}

// Pending returns the incomplete fragment currently held back.
func (b *LineBuffer) Pending() string {
	return string(b.pending)
}
