package fetch

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// stallReader cancels the attempt when no bytes arrive within the idle
// window. Each successful read re-arms the timer.
type stallReader struct {
	r       io.Reader
	idle    time.Duration
	timer   *time.Timer
	tripped atomic.Bool
}

func newStallReader(r io.Reader, idle time.Duration, cancel context.CancelFunc) *stallReader {
	s := &stallReader{r: r, idle: idle}
	if idle > 0 {
		s.timer = time.AfterFunc(idle, func() {
			s.tripped.Store(true)
			cancel()
		})
	}
	return s
}

func (s *stallReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 && s.timer != nil && !s.tripped.Load() {
		s.timer.Reset(s.idle)
	}
	return n, err
}

func (s *stallReader) stalled() bool {
	return s.tripped.Load()
}

func (s *stallReader) stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
