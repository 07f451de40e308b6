package executor

import (
	"io"
	"sync"
)

// TruncatingWriter caps how much output reaches the wrapped writer.
// Both executors write stdout and stderr through it concurrently.
type TruncatingWriter struct {
	mu        sync.Mutex
	w         io.Writer
	maxBytes  int
	written   int
	truncated bool
}

// NewTruncatingWriter creates a writer that limits output size.
func NewTruncatingWriter(w io.Writer, maxBytes int) *TruncatingWriter {
	return &TruncatingWriter{
		w:        w,
		maxBytes: maxBytes,
	}
}

// Write forwards p up to the limit and always reports a full write.
func (tw *TruncatingWriter) Write(p []byte) (n int, err error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.truncated {
		return len(p), nil
	}

	remaining := tw.maxBytes - tw.written
	if remaining <= 0 {
		tw.truncated = true
		return len(p), nil
	}

	chunk := p
	if len(p) > remaining {
		chunk = p[:remaining]
		tw.truncated = true
	}

	written, err := tw.w.Write(chunk)
	tw.written += written

	return len(p), err
}

// Truncated reports whether output was cut.
func (tw *TruncatingWriter) Truncated() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.truncated
}

// Written returns the number of bytes forwarded.
func (tw *TruncatingWriter) Written() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written
}
