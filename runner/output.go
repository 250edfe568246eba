package runner

import (
	"fmt"
	"sync"
)

const defaultOutputTailBytes = 5 * 1024 * 1024 // kept in memory per stream per execution

// tailBuffer keeps only the last maxBytes written to it, so a runaway test
// cannot exhaust memory while its stdout or stderr is captured.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// String returns the captured text, prefixed with a marker when the head was dropped
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dropped := b.total - int64(len(b.contents)); dropped > 0 {
		return fmt.Sprintf("... (%d bytes truncated)\n%s", dropped, b.contents)
	}
	return string(b.contents)
}
