// Package client implements the Go session client: it streams captured
// audio to the server, plays synthesised audio as it arrives, and surfaces
// control records through callbacks.
//
// The client owns the full duplex pipeline. Capture frames are resampled to
// the 16 kHz wire rate and PCM16-encoded before they are sent; inbound
// binary frames are 48 kHz PCM16 and go straight onto the playback queue.
// A tts_state stop carrying a barge-in or client-stop reason empties the
// queue so stale speech never plays out.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/causerie-ai/causerie/pkg/audio"
	"github.com/causerie-ai/causerie/pkg/audio/playback"
	"github.com/causerie-ai/causerie/pkg/protocol"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second

	sendTimeout = 5 * time.Second
)

// CaptureSource supplies microphone frames at its native sample rate.
// ReadFrame blocks until a frame is available and returns io.EOF when the
// source is exhausted.
type CaptureSource interface {
	ReadFrame() ([]float32, error)
	SampleRate() int
	Close() error
}

// Handlers receives server control records. Nil fields are skipped.
type Handlers struct {
	OnPartial       func(text string)
	OnFinal         func(text string)
	OnTutorResponse func(speech string)
	OnTutorNotes    func(notes protocol.Notes)
	OnTTSState      func(speaking bool, reason protocol.StopReason)
	OnLessonPlan    func(plan protocol.LessonPlan)
	OnVocabUpdate   func(items []protocol.VocabItem)
	OnStatus        func(ok bool, message, errText string)
	OnVAD           func(event protocol.VADEvent)
}

// Client is one duplex tutoring session. Construct with New, then call Run;
// command methods are safe to call from any goroutine while Run is active.
type Client struct {
	url        string
	source     CaptureSource
	queue      *playback.Queue
	handlers   Handlers
	log        *slog.Logger
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// Option is a functional option for configuring a Client during construction.
type Option func(*Client)

// WithHandlers sets the control-record callbacks.
func WithHandlers(h Handlers) Option {
	return func(c *Client) { c.handlers = h }
}

// WithLogger sets the structured logger. Default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithReconnect overrides the reconnection policy. Zero values keep the
// defaults (10 attempts, 1s initial backoff doubling up to 30s).
func WithReconnect(maxRetries int, backoff, maxBackoff time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
		if maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

// New constructs a Client for the given session URL. source provides capture
// audio and queue receives synthesised audio.
func New(url string, source CaptureSource, queue *playback.Queue, opts ...Option) *Client {
	c := &Client{
		url:        url,
		source:     source,
		queue:      queue,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// errCapture marks a capture source failure. The source is gone, so the
// session ends instead of retrying the connection.
var errCapture = errors.New("client: capture failed")

// Run connects and pumps audio both ways until ctx is cancelled, the capture
// source is exhausted, or the connection is lost beyond recovery. A dropped
// connection is retried with exponential backoff; session state lives on the
// server, so a successful reconnect resumes the session transparently.
func (c *Client) Run(ctx context.Context) error {
	defer c.source.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		return err
	}

	// One capture goroutine for the whole client lifetime. It survives
	// reconnects, so the source only ever has a single reader; pump picks
	// the frames up from wherever the last connection left off.
	frames := make(chan audio.Frame)
	capErr := make(chan error, 1)
	go c.captureFrames(ctx, frames, capErr)

	for {
		err := c.pump(ctx, frames, capErr)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errCapture):
			return err
		}

		c.log.Warn("connection lost", "error", err)
		// Anything queued belongs to the dead connection.
		c.queue.Clear()

		if err := c.reconnect(ctx); err != nil {
			return err
		}
	}
}

// captureFrames reads source frames and converts them to the 16 kHz PCM16
// wire format. The frames channel is closed when the source is exhausted;
// any other read failure lands on capErr. The source sets the pace; a
// consumer that cannot keep up loses frames at the source, never here.
func (c *Client) captureFrames(ctx context.Context, frames chan<- audio.Frame, capErr chan<- error) {
	srcRate := c.source.SampleRate()
	for {
		samples, err := c.source.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				close(frames)
				return
			}
			capErr <- fmt.Errorf("%w: %v", errCapture, err)
			return
		}
		if len(samples) == 0 {
			continue
		}

		frame := audio.EncodePCM16(audio.Resample(samples, srcRate, audio.CaptureRate))
		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// pump sends captured frames over the current connection and runs the
// dispatch loop until either side stops. A nil return means the capture
// source is exhausted and the session is complete.
func (c *Client) pump(ctx context.Context, frames <-chan audio.Frame, capErr <-chan error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := c.current()

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.dispatchLoop(ctx, conn)
	}()

	for {
		select {
		case err := <-readErr:
			return err
		case err := <-capErr:
			return err
		case frame, ok := <-frames:
			if !ok {
				// Source drained; end the session cleanly.
				conn.Close(websocket.StatusNormalClosure, "capture finished")
				return nil
			}
			wctx, wcancel := context.WithTimeout(ctx, sendTimeout)
			err := conn.Write(wctx, websocket.MessageBinary, frame)
			wcancel()
			if err != nil {
				return fmt.Errorf("client: send audio: %w", err)
			}
		}
	}
}

// dispatchLoop reads server frames and routes them: binary to the playback
// queue, text to the handler callbacks.
func (c *Client) dispatchLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return fmt.Errorf("client: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			if err := c.queue.Enqueue(audio.Frame(data)); err != nil {
				return fmt.Errorf("client: playback: %w", err)
			}

		case websocket.MessageText:
			msg, err := protocol.Decode(data)
			if err != nil {
				c.log.Debug("dropping malformed record", "error", err)
				continue
			}
			c.dispatch(msg)
		}
	}
}

// dispatch routes one control record to its callback. Barge-in and client
// stop also flush the playback queue: audio already buffered locally belongs
// to the interrupted utterance.
func (c *Client) dispatch(msg protocol.Message) {
	h := c.handlers
	switch msg.Type {
	case protocol.TypePartial:
		if h.OnPartial != nil {
			h.OnPartial(msg.Text)
		}
	case protocol.TypeFinal:
		if h.OnFinal != nil {
			h.OnFinal(msg.Text)
		}
	case protocol.TypeTutorResponse:
		if h.OnTutorResponse != nil {
			h.OnTutorResponse(msg.Speech)
		}
	case protocol.TypeTutorNotes:
		if h.OnTutorNotes != nil && msg.Notes != nil {
			h.OnTutorNotes(*msg.Notes)
		}
	case protocol.TypeTTSState:
		speaking := msg.Speaking != nil && *msg.Speaking
		if !speaking && (msg.Reason == protocol.ReasonBargeIn || msg.Reason == protocol.ReasonClientStop) {
			c.queue.Clear()
		}
		if h.OnTTSState != nil {
			h.OnTTSState(speaking, msg.Reason)
		}
	case protocol.TypeLessonPlan:
		if h.OnLessonPlan != nil && msg.Lesson != nil {
			h.OnLessonPlan(*msg.Lesson)
		}
	case protocol.TypeVocabUpdate:
		if h.OnVocabUpdate != nil {
			h.OnVocabUpdate(msg.Vocab)
		}
	case protocol.TypeStatus:
		if h.OnStatus != nil {
			h.OnStatus(msg.OK != nil && *msg.OK, msg.Status, msg.Error)
		}
	case protocol.TypeVAD:
		if h.OnVAD != nil {
			h.OnVAD(msg.Event)
		}
	}
}

// ─── Commands ────────────────────────────────────────────────────────────────

// RequestLessonPlan asks the server for a lesson plan snapshot.
func (c *Client) RequestLessonPlan() error {
	return c.send(protocol.Message{Type: protocol.TypeGetLessonPlan})
}

// Reset clears the server-side session state.
func (c *Client) Reset() error {
	return c.send(protocol.Message{Type: protocol.TypeReset})
}

// StopTTS cancels the active synthesis and flushes local playback.
func (c *Client) StopTTS() error {
	c.queue.Clear()
	return c.send(protocol.Message{Type: protocol.TypeStopTTS})
}

// SpeakWord requests one-shot pronunciation of a vocabulary word.
func (c *Client) SpeakWord(word string) error {
	return c.send(protocol.Message{Type: protocol.TypeSpeakWord, Word: word})
}

func (c *Client) send(msg protocol.Message) error {
	conn := c.current()
	if conn == nil {
		return errors.New("client: not connected")
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ─── Connection management ───────────────────────────────────────────────────

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("client: connect %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// reconnect retries the connection with exponential backoff until it
// succeeds, ctx is cancelled, or the attempt budget runs out.
func (c *Client) reconnect(ctx context.Context) error {
	backoff := c.backoff
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		c.log.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"backoff", backoff,
		)

		err := c.connect(ctx)
		if err == nil {
			c.log.Info("reconnection successful", "attempt", attempt)
			return nil
		}
		c.log.Warn("reconnection attempt failed", "attempt", attempt, "error", err)

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return fmt.Errorf("client: reconnection failed after %d attempts", c.maxRetries)
}
