package wire

import "bytes"

// LineBuffer splits an append-only byte stream into newline-delimited
// messages. Feed appends raw socket reads; Next pops complete lines.
// Bytes after the last newline are retained for the next read, so a
// message may arrive across any number of reads.
//
// LineBuffer is not safe for concurrent use; each connection owns one.
type LineBuffer struct {
	buf []byte
}

// Feed appends raw bytes to the buffer.
func (b *LineBuffer) Feed(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next returns the next complete message, trimmed of surrounding
// whitespace. Blank lines are skipped. It returns ok=false when no
// complete line remains in the buffer.
func (b *LineBuffer) Next() (line []byte, ok bool) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return nil, false
		}

		line = bytes.TrimSpace(b.buf[:i])
		b.buf = b.buf[i+1:]

		if len(line) > 0 {
			return line, true
		}
	}
}

// Pending reports how many bytes are buffered awaiting a newline.
func (b *LineBuffer) Pending() int {
	return len(b.buf)
}
