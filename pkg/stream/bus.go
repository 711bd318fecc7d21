package stream

import (
	"context"
	"sync"
	"time"
)

const (
	// maxChunksPerStream bounds replay memory per key. Older chunks are
	// evicted from the front once the cap is reached.
	maxChunksPerStream = 512

	// idleEviction is how long a stream with no pushes or reads survives
	// before the janitor removes it.
	idleEviction = 15 * time.Minute

	janitorInterval = time.Minute
)

// Chunk is one ordered item on a stream. Cursors are assigned per key,
// start at 1, and increase by exactly one per push.
type Chunk struct {
	Cursor    int64     `json:"cursor"`
	Kind      string    `json:"kind"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

type streamState struct {
	chunks   []Chunk
	next     int64
	closed   bool
	lastSeen time.Time
	waiters  []chan struct{}
}

// Bus is an in-process append-only stream broker keyed by stream id.
// Producers push chunks, consumers either poll with a cursor or block for
// new data. Reads never mutate stream contents, so any number of consumers
// can replay the same key independently.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*streamState
	done    chan struct{}
	once    sync.Once
}

func NewBus() *Bus {
	b := &Bus{
		streams: map[string]*streamState{},
		done:    make(chan struct{}),
	}
	go b.janitor()
	return b
}

// Shutdown stops the eviction janitor and wakes all blocked consumers.
func (b *Bus) Shutdown() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, s := range b.streams {
			s.closed = true
			s.wake()
		}
	})
}

func (s *streamState) wake() {
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (b *Bus) stream(key string) *streamState {
	s, ok := b.streams[key]
	if !ok {
		s = &streamState{next: 1}
		b.streams[key] = s
	}
	s.lastSeen = time.Now()
	return s
}

// Push appends a chunk to key's stream and returns its cursor.
func (b *Bus) Push(key, kind, data string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(key)
	if s.closed {
		return s.next - 1
	}

	c := Chunk{
		Cursor:    s.next,
		Kind:      kind,
		Data:      data,
		CreatedAt: time.Now(),
	}
	s.next++
	s.chunks = append(s.chunks, c)
	if len(s.chunks) > maxChunksPerStream {
		s.chunks = s.chunks[len(s.chunks)-maxChunksPerStream:]
	}
	s.wake()
	return c.Cursor
}

// CloseStream marks key complete. Blocked consumers are woken and further
// pushes are ignored.
func (b *Bus) CloseStream(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(key)
	s.closed = true
	s.wake()
}

// GetSince returns all chunks with cursor greater than after, plus whether
// the stream is closed. Chunks evicted by the replay cap are simply absent;
// callers detect the gap from non-contiguous cursors.
func (b *Bus) GetSince(key string, after int64) ([]Chunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[key]
	if !ok {
		return nil, false
	}
	s.lastSeen = time.Now()

	var out []Chunk
	for _, c := range s.chunks {
		if c.Cursor > after {
			out = append(out, c)
		}
	}
	return out, s.closed
}

// WaitFor blocks until key has chunks past after, the stream closes, or
// ctx is done. When the deadline expires it returns whatever is available,
// possibly nothing; a timed-out wait is not an error.
func (b *Bus) WaitFor(ctx context.Context, key string, after int64) ([]Chunk, bool) {
	for {
		b.mu.Lock()
		s := b.stream(key)
		var out []Chunk
		for _, c := range s.chunks {
			if c.Cursor > after {
				out = append(out, c)
			}
		}
		if len(out) > 0 || s.closed {
			closed := s.closed
			b.mu.Unlock()
			return out, closed
		}
		w := make(chan struct{})
		s.waiters = append(s.waiters, w)
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return b.GetSince(key, after)
		case <-b.done:
			return nil, true
		case <-w:
		}
	}
}

// Subscribe replays chunks after the given cursor and then follows the
// stream until it closes or ctx is done. The returned channel is closed
// when the subscription ends.
func (b *Bus) Subscribe(ctx context.Context, key string, after int64) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		cursor := after
		for {
			if ctx.Err() != nil {
				return
			}
			chunks, closed := b.WaitFor(ctx, key, cursor)
			for _, c := range chunks {
				select {
				case out <- c:
					cursor = c.Cursor
				case <-ctx.Done():
					return
				}
			}
			if closed && len(chunks) == 0 {
				return
			}
			if closed {
				// Drain whatever arrived before the close on the next pass.
				continue
			}
		}
	}()
	return out
}

func (b *Bus) janitor() {
	t := time.NewTicker(janitorInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			b.evictIdle(time.Now())
		}
	}
}

func (b *Bus) evictIdle(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, s := range b.streams {
		if now.Sub(s.lastSeen) > idleEviction && len(s.waiters) == 0 {
			delete(b.streams, key)
		}
	}
}
