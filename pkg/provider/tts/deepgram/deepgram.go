// Package deepgram provides a Deepgram-backed TTS provider using the Deepgram
// speak WebSocket API. It implements the tts.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/causerie-ai/causerie/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	speakEndpoint     = "wss://api.deepgram.com/v1/speak"
	defaultModel      = "aura-2-thalia-en"
	defaultSampleRate = 48000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the default Deepgram voice model (e.g. "aura-2-pandora-en").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSampleRate sets the provider-level default output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements tts.Provider backed by the Deepgram speak API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Speak opens a speak socket, submits the full text, and flushes it. Audio
// chunks arrive on the returned Stream as Deepgram synthesises them.
func (p *Provider) Speak(ctx context.Context, text string, cfg tts.SpeakConfig) (tts.Stream, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &stream{
		conn:  conn,
		audio: make(chan []byte, 64),
		done:  make(chan tts.Result, 1),
		stop:  make(chan struct{}),
	}

	if err := s.submit(ctx, text); err != nil {
		conn.Close(websocket.StatusInternalError, "submit failed")
		return nil, fmt.Errorf("deepgram: submit text: %w", err)
	}

	go s.readLoop(ctx)

	return s, nil
}

// buildURL constructs the Deepgram speak endpoint URL for the given config.
func (p *Provider) buildURL(cfg tts.SpeakConfig) (string, error) {
	u, err := url.Parse(speakEndpoint)
	if err != nil {
		return "", err
	}

	model := cfg.Voice
	if model == "" {
		model = p.model
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- stream ----

// speakMessage is the JSON envelope for client commands and server events on
// the speak socket.
type speakMessage struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Description string `json:"description,omitempty"`
}

// stream is one in-flight Deepgram synthesis. It implements tts.Stream.
type stream struct {
	conn  *websocket.Conn
	audio chan []byte
	done  chan tts.Result
	stop  chan struct{}

	stopOnce sync.Once
	finOnce  sync.Once
}

// submit sends the utterance text followed by a Flush so Deepgram synthesises
// immediately.
func (s *stream) submit(ctx context.Context, text string) error {
	speak, err := json.Marshal(speakMessage{Type: "Speak", Text: text})
	if err != nil {
		return err
	}
	if err := s.conn.Write(ctx, websocket.MessageText, speak); err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Flush"}`))
}

// Audio returns the channel of raw PCM chunks.
func (s *stream) Audio() <-chan []byte { return s.audio }

// Done returns the terminal result channel.
func (s *stream) Done() <-chan tts.Result { return s.done }

// Stop abandons the synthesis. Deepgram drops any buffered audio on Clear.
func (s *stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		ctx := context.Background()
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Clear"}`))
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Close"}`))
		s.conn.Close(websocket.StatusNormalClosure, "stopped")
	})
}

// finish closes the audio channel, delivers the result, and releases the
// socket. Runs at most once.
func (s *stream) finish(res tts.Result, code websocket.StatusCode, reason string) {
	s.finOnce.Do(func() {
		close(s.audio)
		s.done <- res
		close(s.done)
		s.conn.Close(code, reason)
	})
}

// readLoop receives messages from Deepgram: binary frames are audio, text
// frames are control events. A Flushed event means the utterance is complete.
func (s *stream) readLoop(ctx context.Context) {
	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.stop:
				s.finish(tts.Result{Stopped: true}, websocket.StatusNormalClosure, "stopped")
			default:
				s.finish(tts.Result{Err: fmt.Errorf("deepgram: read: %w", err)}, websocket.StatusInternalError, "read failed")
			}
			return
		}

		if typ == websocket.MessageBinary {
			select {
			case s.audio <- msg:
			case <-s.stop:
				// A stopped stream has no reader left to drain the buffer;
				// drop the chunk and let the closing socket end the loop.
			case <-ctx.Done():
				s.finish(tts.Result{Err: ctx.Err()}, websocket.StatusGoingAway, "context cancelled")
				return
			}
			continue
		}

		var ev speakMessage
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "Flushed":
			s.finish(tts.Result{}, websocket.StatusNormalClosure, "flushed")
			return
		case "Error":
			s.finish(tts.Result{Err: fmt.Errorf("deepgram: synthesis: %s", ev.Description)}, websocket.StatusInternalError, "synthesis error")
			return
		}
	}
}

var _ tts.Stream = (*stream)(nil)
var _ tts.Provider = (*Provider)(nil)
