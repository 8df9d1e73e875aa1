// Package playback implements the client-side playback queue: synthesized
// speech frames arrive over the transport faster than real time, are buffered
// in order, and play back gaplessly — while remaining interruptible at any
// instant for barge-in.
//
// The queue distinguishes the single in-flight playback unit from the pending
// backlog so that Clear can target exactly the frame that is audible right
// now. Stopping the in-flight unit races against its natural completion; both
// paths are tolerated and leave the queue consistent.
package playback

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/causerie-ai/causerie/pkg/audio"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("playback: queue is closed")

// Handle represents one in-flight playback unit started by a [Player].
//
// Done is closed exactly once, when playback ends — whether it ran to
// completion or was stopped. Stop forcibly ends playback; it is idempotent
// and safe to call after playback has already finished naturally.
type Handle interface {
	Done() <-chan struct{}
	Stop()
}

// Player starts playback of a single frame and returns a [Handle] for it.
// Implementations are the boundary to the actual audio output device.
type Player interface {
	Play(frame audio.Frame) (Handle, error)
}

// Queue buffers frames and plays them strictly in enqueue order with no gap:
// completion of one frame immediately starts the next via the handle's Done
// signal, never by polling.
//
// All methods are safe for concurrent use.
type Queue struct {
	player Player

	mu      sync.Mutex
	pending []audio.Frame
	current Handle
	gen     uint64 // bumped by Clear; stale completions are discarded
	closed  bool
}

// NewQueue creates an empty queue that plays frames through player.
func NewQueue(player Player) *Queue {
	return &Queue{player: player}
}

// Enqueue appends frame and starts playback immediately if nothing is
// currently playing. Returns [ErrClosed] after Close.
func (q *Queue) Enqueue(frame audio.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.current != nil {
		q.pending = append(q.pending, frame)
		return nil
	}
	q.startLocked(frame)
	return nil
}

// Clear drops all pending frames and forcibly stops the in-flight frame, if
// any. If the in-flight frame finished naturally just before the stop, the
// stop is a no-op; either way the queue ends up empty and idle. A subsequent
// Enqueue starts fresh.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.pending = nil
	cur := q.current
	q.current = nil
	q.gen++
	q.mu.Unlock()

	// Stop outside the lock: the handle's Done watcher re-enters the queue.
	if cur != nil {
		cur.Stop()
	}
}

// Close clears the queue and rejects further Enqueue calls. Safe to call
// multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Clear()
}

// Playing reports whether a frame is currently in flight.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// PendingLen returns the number of frames queued behind the in-flight one.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// startLocked begins playback of frame and chains the next frame onto its
// completion. Caller must hold q.mu. A frame the player rejects is dropped
// and the next pending frame is tried, so one bad frame cannot stall the
// stream.
func (q *Queue) startLocked(frame audio.Frame) {
	for {
		handle, err := q.player.Play(frame)
		if err == nil {
			q.current = handle
			gen := q.gen
			go q.watch(handle, gen)
			return
		}
		slog.Warn("playback: failed to start frame, skipping", "error", err)
		if len(q.pending) == 0 {
			q.current = nil
			return
		}
		frame = q.pending[0]
		q.pending = q.pending[1:]
	}
}

// watch waits for handle to finish and advances the queue. Completions from
// a generation that Clear has since invalidated are ignored: the handle was
// already detached and a fresh playback chain may be running.
func (q *Queue) watch(handle Handle, gen uint64) {
	<-handle.Done()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		return
	}
	q.current = nil
	if q.closed || len(q.pending) == 0 {
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.startLocked(next)
}
