package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/causerie-ai/causerie/pkg/audio"
	"github.com/causerie-ai/causerie/pkg/audio/playback"
)

// lockedBuffer is a goroutine-safe byte sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func TestPacedPlayerWritesWholeFrame(t *testing.T) {
	sink := &lockedBuffer{}
	p := playback.NewPacedPlayer(sink, audio.PlaybackRate)

	// 40 ms of audio: two ticks' worth.
	frame := make(audio.Frame, audio.PlaybackRate*2*40/1000)
	h, err := p.Play(frame)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not complete")
	}
	if got := sink.len(); got != len(frame) {
		t.Errorf("wrote %d bytes, want %d", got, len(frame))
	}
}

func TestPacedPlayerStopCutsFrameShort(t *testing.T) {
	sink := &lockedBuffer{}
	p := playback.NewPacedPlayer(sink, audio.PlaybackRate)

	// One full second of audio; stopping immediately must not write it all.
	frame := make(audio.Frame, audio.PlaybackRate*2)
	h, err := p.Play(frame)
	if err != nil {
		t.Fatal(err)
	}
	h.Stop()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not end playback")
	}
	if got := sink.len(); got >= len(frame) {
		t.Errorf("wrote %d bytes after Stop, want fewer than %d", got, len(frame))
	}

	// Stop is idempotent, including after completion.
	h.Stop()
	h.Stop()
}
