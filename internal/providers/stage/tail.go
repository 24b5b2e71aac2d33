package stage

import "sync"

// diagnosticTail is the number of trailing output bytes kept from tar.
const diagnosticTail = 4096

// tailBuffer is a thread-safe circular buffer keeping the last size bytes
// written to it.
type tailBuffer struct {
	data []byte
	size int
	head int
	tail int
	full bool
	mu   sync.Mutex
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write never fails; older bytes are overwritten once the buffer is full.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		b.data[b.tail] = c
		b.tail = (b.tail + 1) % b.size
		if b.full {
			b.head = b.tail
		} else if b.tail == b.head {
			b.full = true
		}
	}
	return len(p), nil
}

// String returns the retained bytes in write order.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full && b.head == b.tail {
		return ""
	}
	if !b.full {
		return string(b.data[b.head:b.tail])
	}
	out := make([]byte, 0, b.size)
	out = append(out, b.data[b.head:]...)
	out = append(out, b.data[:b.tail]...)
	return string(out)
}
