package transcript

import (
	"sync"
	"time"
)

// Buffer is the append-only fragment log of one utterance. Views are
// recomputed from the log on demand; the buffer keeps no derived counters.
type Buffer struct {
	mu        sync.Mutex
	startedAt time.Time
	fragments []Fragment
	frozen    bool
}

// NewBuffer creates an empty buffer for an utterance starting at startedAt.
func NewBuffer(startedAt time.Time) *Buffer {
	return &Buffer{startedAt: startedAt}
}

// Reset clears the buffer for a new utterance.
func (b *Buffer) Reset(startedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startedAt = startedAt
	b.fragments = nil
	b.frozen = false
}

// Add appends a fragment. It reports false once the buffer is frozen.
func (b *Buffer) Add(f Fragment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return false
	}
	b.fragments = append(b.fragments, f)
	return true
}

// Freeze stops the buffer from accepting further fragments.
func (b *Buffer) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// View computes the utterance view at now.
func (b *Buffer) View(now time.Time) View {
	b.mu.Lock()
	startedAt := b.startedAt
	fragments := b.fragments
	b.mu.Unlock()
	return Compute(startedAt, fragments, now)
}
