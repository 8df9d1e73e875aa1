package playback

import (
	"io"
	"sync"
	"time"

	"github.com/causerie-ai/causerie/pkg/audio"
)

// defaultTick is the write granularity of the paced player. 20 ms matches
// the push cadence of the synthesis stream.
const defaultTick = 20 * time.Millisecond

// PacedPlayer implements [Player] over any byte sink (a speaker subprocess
// stdin, an ALSA pipe, a file) by writing PCM at wall-clock pace. Pacing is
// what makes Stop meaningful for a plain io.Writer: a frame is "in flight"
// for its real playback duration, and Stop withholds its unwritten tail.
type PacedPlayer struct {
	w    io.Writer
	rate int
	tick time.Duration

	// writeMu serialises writes: a stopped frame can race the start of the
	// next one, and interleaved PCM is audible garbage.
	writeMu sync.Mutex
}

// NewPacedPlayer creates a player writing PCM16 mono at rate Hz to w.
func NewPacedPlayer(w io.Writer, rate int) *PacedPlayer {
	return &PacedPlayer{w: w, rate: rate, tick: defaultTick}
}

// Play starts pacing frame into the sink and returns its handle immediately.
func (p *PacedPlayer) Play(frame audio.Frame) (Handle, error) {
	h := &pacedHandle{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go p.pace(frame, h)
	return h, nil
}

// pace writes frame in tick-sized chunks, honouring h.stop between chunks.
func (p *PacedPlayer) pace(frame audio.Frame, h *pacedHandle) {
	defer close(h.done)

	bytesPerTick := p.rate * 2 * int(p.tick) / int(time.Second)
	if bytesPerTick < 2 {
		bytesPerTick = 2
	}
	// Keep whole samples per chunk.
	bytesPerTick -= bytesPerTick % 2

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for off := 0; off < len(frame); off += bytesPerTick {
		end := off + bytesPerTick
		if end > len(frame) {
			end = len(frame)
		}

		p.writeMu.Lock()
		_, err := p.w.Write(frame[off:end])
		p.writeMu.Unlock()
		if err != nil {
			return
		}

		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
	}
}

// pacedHandle is the in-flight unit of a [PacedPlayer].
type pacedHandle struct {
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (h *pacedHandle) Done() <-chan struct{} { return h.done }

// Stop aborts pacing at the next chunk boundary. Idempotent; a no-op if the
// frame already finished.
func (h *pacedHandle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}
