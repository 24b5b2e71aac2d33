package lifecycle

import (
	"bytes"
	"strings"
	"sync"

	"github.com/GriffinCanCode/MixOS/backend/internal/domain/events"
)

// maxLine bounds a buffered partial line.
const maxLine = 64 * 1024

// lineWriter splits process output into lines and publishes each one as a
// log event.
type lineWriter struct {
	mu     sync.Mutex
	buf    []byte
	envID  string
	origin events.Origin
	pub    events.Publisher
}

func newLineWriter(envID string, origin events.Origin, pub events.Publisher) *lineWriter {
	return &lineWriter{envID: envID, origin: origin, pub: pub}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Flush publishes a trailing unterminated line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(raw []byte) {
	line := strings.TrimRight(string(raw), "\r")
	if line == "" {
		return
	}
	w.pub.Publish(events.Log(w.envID, w.origin, line))
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
