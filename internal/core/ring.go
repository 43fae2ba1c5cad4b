package core

import (
	"sync"
	"time"
)

// LogLine is one container log line as kept by a log sink.
type LogLine struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Container string    `json:"container"`
	Text      string    `json:"text"`
	Level     Severity  `json:"level,omitempty"`
}

// Ring is a thread-safe circular buffer of log lines with constant-time append.
// When full, new lines overwrite the oldest ones.
type Ring struct {
	mu   sync.RWMutex
	cap  int
	buf  []LogLine
	head int    // next write position
	size int    // 0 <= size <= cap
	seq  uint64 // last assigned sequence number
}

// DefaultRingCapacity is used when NewRing is given a non-positive capacity.
const DefaultRingCapacity = 5000

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{
		cap: capacity,
		buf: make([]LogLine, capacity),
	}
}

// Append stores l, assigning it the next sequence number, and returns the
// stored copy.
func (r *Ring) Append(l LogLine) LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	l.Seq = r.seq
	r.buf[r.head] = l
	r.head = (r.head + 1) % r.cap
	if r.size < r.cap {
		r.size++
	}
	return l
}

// Snapshot returns a copy of all lines, oldest first.
func (r *Ring) Snapshot() []LogLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.since(0)
}

// Since returns the lines whose sequence number is greater than seq, oldest
// first. Lines already overwritten are not returned.
func (r *Ring) Since(seq uint64) []LogLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.since(seq)
}

func (r *Ring) since(seq uint64) []LogLine {
	if r.size == 0 || seq >= r.seq {
		return nil
	}
	oldest := r.seq - uint64(r.size) + 1
	if seq < oldest {
		seq = oldest - 1
	}
	n := int(r.seq - seq)
	out := make([]LogLine, 0, n)
	start := (r.head - n + r.cap) % r.cap
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%r.cap])
	}
	return out
}

// Last returns the newest line, if any.
func (r *Ring) Last() (LogLine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return LogLine{}, false
	}
	return r.buf[(r.head-1+r.cap)%r.cap], true
}

// Capacity returns the maximum number of lines the ring holds.
func (r *Ring) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cap
}

// Size returns the number of lines currently held.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// CurrentSeq returns the last assigned sequence number.
func (r *Ring) CurrentSeq() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
