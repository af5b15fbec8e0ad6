package sandbox

import "bytes"

// DefaultMaxOutputBytes bounds each captured stream when no limit is configured
const DefaultMaxOutputBytes = 8 * BytesPerMB

// limitedBuffer keeps the first limit bytes written to it and drops the rest.
// Writes never fail, so the producer is drained instead of blocked.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newLimitedBuffer(limit int64) *limitedBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	room := b.limit - int64(b.buf.Len())
	if room < int64(n) {
		b.truncated = true
		p = p[:max(room, 0)]
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

// Truncated reports whether any write was cut short
func (b *limitedBuffer) Truncated() bool {
	return b.truncated
}
