package audio

import "sync"

// Device is a poll-based mono PCM16 capture handle.
//
// Available reports how many samples can be read right now without blocking.
// Read fills dst completely; callers never ask for more than Available
// reported. Backends return *DeviceError values carrying native codes.
type Device interface {
	Start() error
	Available() (int, error)
	Read(dst []int16) error
	Close() error
}

// Backlog is a bounded FIFO of samples that sits between a callback driven
// backend (audio thread) and the polling Source. When full, the oldest
// samples are dropped and counted.
type Backlog struct {
	mu      sync.Mutex
	buf     []int16
	limit   int
	dropped uint64
}

// NewBacklog creates a backlog holding at most limit samples.
func NewBacklog(limit int) *Backlog {
	if limit < 1 {
		limit = 1
	}
	return &Backlog{
		buf:   make([]int16, 0, limit),
		limit: limit,
	}
}

// Push appends samples, dropping the oldest ones beyond the limit.
// Safe to call from the audio thread.
func (b *Backlog) Push(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(samples) >= b.limit {
		b.dropped += uint64(len(b.buf) + len(samples) - b.limit)
		b.buf = append(b.buf[:0], samples[len(samples)-b.limit:]...)
		return
	}

	if over := len(b.buf) + len(samples) - b.limit; over > 0 {
		n := copy(b.buf, b.buf[over:])
		b.buf = b.buf[:n]
		b.dropped += uint64(over)
	}
	b.buf = append(b.buf, samples...)
}

// Len returns the number of queued samples.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Pop moves up to len(dst) of the oldest samples into dst and returns the
// count moved.
func (b *Backlog) Pop(dst []int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(dst, b.buf)
	rest := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:rest]
	return n
}

// Dropped returns the number of samples discarded because the backlog was full.
func (b *Backlog) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset discards all queued samples.
func (b *Backlog) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}
