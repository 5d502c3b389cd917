package executor

import (
	"bytes"
	"sync"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

const truncatedMarker = "\n[output truncated]"

// limitedBuffer keeps at most limit bytes and remembers whether it dropped any.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) write(p []byte) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return
	}
	if len(p) > room {
		p = p[:room]
		b.truncated = true
	}
	b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncatedMarker
	}
	return b.buf.String()
}

// capture collects a step's stdout and stderr, separately and interleaved.
// Both pipes copy concurrently, so every write goes through mu.
type capture struct {
	mu       sync.Mutex
	stdout   limitedBuffer
	stderr   limitedBuffer
	combined limitedBuffer
	onChunk  func(domain.OutputStream, string)
}

func newCapture(limit int, onChunk func(domain.OutputStream, string)) *capture {
	return &capture{
		stdout:   limitedBuffer{limit: limit},
		stderr:   limitedBuffer{limit: limit},
		combined: limitedBuffer{limit: limit},
		onChunk:  onChunk,
	}
}

func (c *capture) writer(stream domain.OutputStream) *streamWriter {
	return &streamWriter{capture: c, stream: stream}
}

func (c *capture) fill(result *domain.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result.Stdout = c.stdout.String()
	result.Stderr = c.stderr.String()
	result.Output = c.combined.String()
	result.Truncated = c.stdout.truncated || c.stderr.truncated || c.combined.truncated
}

type streamWriter struct {
	capture *capture
	stream  domain.OutputStream
}

// Write never fails; the chunk is streamed in full even when the captured
// copy is already at its cap.
func (w *streamWriter) Write(p []byte) (int, error) {
	c := w.capture
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.stream == domain.StreamStderr {
		c.stderr.write(p)
	} else {
		c.stdout.write(p)
	}
	c.combined.write(p)
	if c.onChunk != nil && len(p) > 0 {
		c.onChunk(w.stream, string(p))
	}
	return len(p), nil
}
