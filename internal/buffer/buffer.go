package buffer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	PolicyFIFO      = "fifo"
	PolicyFreshness = "freshness"
)

var (
	ErrBufferFull      = errors.New("replay buffer full")
	ErrBufferEmpty     = errors.New("replay buffer empty")
	ErrInvalidPolicy   = fmt.Errorf("policy must be %q or %q", PolicyFIFO, PolicyFreshness)
	ErrInvalidCapacity = errors.New("replay buffer capacity must be positive")
)

type Item struct {
	Trajectory Trajectory
	EnqueuedAt time.Time
}

// ring is a fixed-size circular queue. Items are stored oldest first
// starting at head.
type ring struct {
	slots []Item
	head  int
	n     int
}

func (r *ring) full() bool { return r.n == len(r.slots) }

func (r *ring) push(item Item) {
	r.slots[(r.head+r.n)%len(r.slots)] = item
	r.n++
}

func (r *ring) popOldest() Item {
	item := r.slots[r.head]
	r.slots[r.head] = Item{}
	r.head = (r.head + 1) % len(r.slots)
	r.n--
	return item
}

func (r *ring) popNewest() Item {
	i := (r.head + r.n - 1) % len(r.slots)
	item := r.slots[i]
	r.slots[i] = Item{}
	r.n--
	return item
}

// takers maps a policy name to the end of the ring it serves from.
var takers = map[string]func(*ring) Item{
	PolicyFIFO:      (*ring).popOldest,
	PolicyFreshness: (*ring).popNewest,
}

// ReplayBuffer holds up to a fixed number of trajectories until a learner
// takes them. It is safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.Mutex
	ring    ring
	policy  string
	take    func(*ring) Item
	dropped int
}

func NewReplayBuffer(capacity int, policy string) (*ReplayBuffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	take, ok := takers[policy]
	if !ok {
		return nil, ErrInvalidPolicy
	}
	return &ReplayBuffer{
		ring:   ring{slots: make([]Item, capacity)},
		policy: policy,
		take:   take,
	}, nil
}

// Enqueue rejects the item with ErrBufferFull when there is no room; the
// rejection is counted in Dropped.
func (b *ReplayBuffer) Enqueue(item Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring.full() {
		b.dropped++
		return ErrBufferFull
	}
	b.ring.push(item)
	return nil
}

func (b *ReplayBuffer) Dequeue() (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ring.n == 0 {
		return Item{}, ErrBufferEmpty
	}
	return b.take(&b.ring), nil
}

// DequeueBatch takes up to n items in policy order. The batch is taken
// under one lock so concurrent batches never interleave.
func (b *ReplayBuffer) DequeueBatch(n int) []Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, b.ring.n)
	if n <= 0 {
		return nil
	}
	out := make([]Item, n)
	for i := range out {
		out[i] = b.take(&b.ring)
	}
	return out
}

// Capacity is fixed at construction.
func (b *ReplayBuffer) Capacity() int { return len(b.ring.slots) }

func (b *ReplayBuffer) Policy() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policy
}

func (b *ReplayBuffer) SetPolicy(policy string) error {
	take, ok := takers[policy]
	if !ok {
		return ErrInvalidPolicy
	}
	b.mu.Lock()
	b.policy, b.take = policy, take
	b.mu.Unlock()
	return nil
}

func (b *ReplayBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ring.n
}

// Dropped counts enqueues rejected because the buffer was full.
func (b *ReplayBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
