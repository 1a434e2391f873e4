// Package teestream duplicates everything written to it across a
// dynamic set of writers, coalescing small writes in an internal
// buffer so that each destination sees few large writes instead of
// many tiny ones.
package teestream

import (
	"io"
	"sync"
)

const (
	// DefaultBufferSize is the size of the coalescing buffer.
	DefaultBufferSize = 8192
	// DefaultFlushThreshold is the fill level at which the buffer is
	// flushed to the attached writers.
	DefaultFlushThreshold = 6144
)

// TeeStream is an io.Writer that copies each write to every attached
// writer. Writes smaller than the buffer are coalesced and flushed
// once the threshold is reached; writes at least as large as the
// buffer go directly to the writers after draining any pending bytes,
// so output always leaves in write order. Safe for concurrent use;
// a single Write call is never interleaved with another.
type TeeStream struct {
	mu        sync.Mutex
	writers   []io.Writer
	buf       []byte
	used      int
	threshold int
}

// New returns a TeeStream with the default buffer size and flush
// threshold, attached to the given writers.
func New(writers ...io.Writer) *TeeStream {
	return NewSize(DefaultBufferSize, DefaultFlushThreshold, writers...)
}

// NewSize returns a TeeStream with an explicit buffer size and flush
// threshold. A non-positive buffer size falls back to the default; a
// threshold outside (0, bufferSize) falls back to 75% of the buffer.
func NewSize(bufferSize, flushThreshold int, writers ...io.Writer) *TeeStream {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if flushThreshold <= 0 || flushThreshold >= bufferSize {
		flushThreshold = bufferSize * 3 / 4
	}
	return &TeeStream{
		writers:   append([]io.Writer(nil), writers...),
		buf:       make([]byte, bufferSize),
		threshold: flushThreshold,
	}
}

// Add attaches a writer. Adding the same writer twice makes it
// receive every write twice.
func (t *TeeStream) Add(w io.Writer) {
	t.mu.Lock()
	t.writers = append(t.writers, w)
	t.mu.Unlock()
}

// Remove detaches every occurrence of w. Bytes still sitting in the
// buffer are flushed to w first so it does not miss writes it was
// attached for.
func (t *TeeStream) Remove(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	kept := t.writers[:0]
	for _, existing := range t.writers {
		if existing != w {
			kept = append(kept, existing)
		}
	}
	t.writers = kept
}

// Write copies p to every attached writer, buffering as described on
// TeeStream. It always reports len(p) consumed; a destination error
// does not stop delivery to the remaining writers, and the first
// error encountered is returned.
func (t *TeeStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if len(p) >= len(t.buf) {
		err = t.flushLocked()
		if werr := t.writeAllLocked(p); err == nil {
			err = werr
		}
		return len(p), err
	}

	if t.used+len(p) > len(t.buf) {
		err = t.flushLocked()
	}
	copy(t.buf[t.used:], p)
	t.used += len(p)

	if t.used >= t.threshold {
		if ferr := t.flushLocked(); err == nil {
			err = ferr
		}
	}
	return len(p), err
}

// Flush drains the buffer and forwards Flush or Sync to any attached
// writer that supports it.
func (t *TeeStream) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.flushLocked()
	for _, w := range t.writers {
		switch f := w.(type) {
		case interface{ Flush() error }:
			if ferr := f.Flush(); err == nil {
				err = ferr
			}
		case interface{ Sync() error }:
			if serr := f.Sync(); err == nil {
				err = serr
			}
		}
	}
	return err
}

func (t *TeeStream) flushLocked() error {
	if t.used == 0 {
		return nil
	}
	pending := t.buf[:t.used]
	t.used = 0
	return t.writeAllLocked(pending)
}

func (t *TeeStream) writeAllLocked(p []byte) error {
	var first error
	for _, w := range t.writers {
		if _, err := w.Write(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
