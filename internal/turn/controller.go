// Package turn drives one tutoring session's conversation loop.
//
// A Controller owns a single session end to end: it forwards the learner's
// microphone audio to the STT stream, turns committed transcripts into tutor
// replies, and streams the synthesised reply back to the client. All state
// lives in one event-loop goroutine; the WebSocket reader hands audio and
// control records to the loop through a channel and never touches session
// state directly.
//
// # State machine
//
// The loop is always in exactly one of four states:
//
//	Idle      → no speech, no synthesis. Waiting for the learner.
//	Listening → the learner is speaking; partials stream to the client.
//	Thinking  → an utterance is committed; a reply is being generated.
//	Speaking  → reply audio is streaming to the client.
//
// At most one synthesis is active at any time. A learner speaking while the
// tutor speaks (detected through the STT VAD or an energy backstop on the
// inbound audio) stops the synthesis immediately and returns the loop to
// Listening — the learner always wins.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/causerie-ai/causerie/internal/observe"
	"github.com/causerie-ai/causerie/internal/session"
	"github.com/causerie-ai/causerie/internal/tutor"
	"github.com/causerie-ai/causerie/internal/vocab"
	"github.com/causerie-ai/causerie/pkg/audio"
	"github.com/causerie-ai/causerie/pkg/protocol"
	"github.com/causerie-ai/causerie/pkg/provider/stt"
	"github.com/causerie-ai/causerie/pkg/provider/tts"
)

// State identifies the controller's position in the conversation loop.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

// String returns the state's name, for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

const (
	// inboundBuf is the buffer depth of the channel between the WebSocket
	// reader and the event loop. Sized to absorb several hundred milliseconds
	// of 20 ms audio frames without blocking the reader.
	inboundBuf = 64

	// bargeInRMS is the minimum root-mean-square amplitude (int16 scale) an
	// inbound frame must reach to count as speech while the tutor is
	// speaking. Filters out room noise and playback echo.
	bargeInRMS = 1500.0

	// bargeInFrames is the number of consecutive loud frames required before
	// the energy backstop triggers a barge-in. The provider's VAD usually
	// fires first; the backstop covers VAD dropouts.
	bargeInFrames = 4

	// defaultLanguage is the transcription language.
	defaultLanguage = "fr"

	// utteranceEndMs is the trailing silence, in milliseconds, after which
	// the STT provider commits the utterance.
	utteranceEndMs = 900

	// endpointingMs is the STT provider's endpointing window in milliseconds.
	endpointingMs = 50
)

// Sink delivers controller output to the connected client. Implementations
// must be safe for use from the event-loop goroutine; ordering of calls is
// the playback order the client must honour.
type Sink interface {
	// SendMessage delivers one control record.
	SendMessage(msg protocol.Message) error

	// SendAudio delivers one binary PCM16 chunk at the playback rate.
	SendAudio(chunk []byte) error
}

// input is one item handed from the transport reader to the event loop.
type input struct {
	frame audio.Frame
	msg   *protocol.Message
}

// replyResult carries a finished reply generation back into the loop.
type replyResult struct {
	gen   uint64
	reply tutor.Reply
	err   error
}

// speechRun is the active synthesis, if any.
type speechRun struct {
	stream     tts.Stream
	audioCh    <-chan []byte
	doneCh     <-chan tts.Result
	started    time.Time
	gotChunk   bool
	thinkStart time.Time
}

// Controller runs the conversation loop for one session.
type Controller struct {
	sttP    stt.Provider
	ttsP    tts.Provider
	engine  *tutor.Engine
	mem     *session.Memory
	matcher *vocab.Matcher
	sink    Sink
	log     *slog.Logger
	metrics *observe.Metrics

	voice    string
	language string

	inbound chan input
	closed  chan struct{}

	// state is written only by the event loop; atomic so State() can be read
	// from other goroutines (tests, diagnostics).
	state atomic.Int32

	// Loop-owned. Never touched outside Run.
	sttStream  stt.Stream
	sttEvents  <-chan stt.Event
	speech     *speechRun
	pending    chan replyResult
	gen        uint64
	utterance  []string
	sttStart   time.Time
	thinkStart time.Time
	loudRun    int
}

// Option is a functional option for configuring a Controller during
// construction.
type Option func(*Controller)

// WithVoice sets the TTS voice identifier. Empty selects the provider default.
func WithVoice(voice string) Option {
	return func(c *Controller) { c.voice = voice }
}

// WithLanguage sets the transcription language tag. Default is "fr".
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.language = lang }
}

// WithMemory injects a pre-populated session memory, e.g. when resuming.
func WithMemory(mem *session.Memory) Option {
	return func(c *Controller) { c.mem = mem }
}

// WithLogger sets the structured logger. Default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance. Default is observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New constructs a Controller for one session. The caller starts the loop
// with [Controller.Run] and feeds it through [Controller.HandleAudio] and
// [Controller.HandleMessage].
func New(sink Sink, sttP stt.Provider, ttsP tts.Provider, engine *tutor.Engine, opts ...Option) *Controller {
	c := &Controller{
		sttP:     sttP,
		ttsP:     ttsP,
		engine:   engine,
		sink:     sink,
		language: defaultLanguage,
		inbound:  make(chan input, inboundBuf),
		closed:   make(chan struct{}),
		matcher:  vocab.New(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.mem == nil {
		c.mem = session.NewMemory()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the loop's current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// setState records a transition. Called only from the event loop.
func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// enterListening transitions into Listening and stamps the start of the
// utterance so transcription latency can be measured when it commits.
func (c *Controller) enterListening() {
	if c.sttStart.IsZero() {
		c.sttStart = time.Now()
	}
	c.setState(StateListening)
}

// HandleAudio hands one inbound PCM16 frame to the event loop. Safe to call
// from the transport reader goroutine. Frames arriving after the loop has
// exited are dropped.
func (c *Controller) HandleAudio(frame []byte) {
	cp := make(audio.Frame, len(frame))
	copy(cp, frame)
	select {
	case c.inbound <- input{frame: cp}:
	case <-c.closed:
	}
}

// HandleMessage hands one decoded control record to the event loop. Safe to
// call from the transport reader goroutine.
func (c *Controller) HandleMessage(msg protocol.Message) {
	select {
	case c.inbound <- input{msg: &msg}:
	case <-c.closed:
	}
}

// Run executes the event loop until ctx is cancelled. It owns the STT stream
// and any active synthesis; both are torn down before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.closed)

	if err := c.startSTT(ctx); err != nil {
		return fmt.Errorf("turn: start transcription: %w", err)
	}
	defer c.teardown()

	for {
		// Inactive sources stay nil so their cases never fire.
		var (
			speechAudio <-chan []byte
			speechDone  <-chan tts.Result
		)
		if c.speech != nil {
			speechAudio = c.speech.audioCh
			speechDone = c.speech.doneCh
		}

		select {
		case <-ctx.Done():
			return nil

		case in := <-c.inbound:
			if in.msg != nil {
				c.handleCommand(ctx, *in.msg)
			} else {
				c.handleFrame(ctx, in.frame)
			}

		case ev, ok := <-c.sttEvents:
			if !ok {
				c.sttEvents = nil
				continue
			}
			c.handleSTTEvent(ctx, ev)

		case res := <-c.pending:
			c.handleReply(ctx, res)

		case chunk, ok := <-speechAudio:
			if !ok {
				c.speech.audioCh = nil
				continue
			}
			if !c.speech.gotChunk {
				c.speech.gotChunk = true
				if !c.speech.thinkStart.IsZero() {
					c.metrics.TurnDuration.Record(ctx, time.Since(c.speech.thinkStart).Seconds())
				}
			}
			if err := c.sink.SendAudio(chunk); err != nil {
				c.log.Warn("audio send failed", "error", err)
			}

		case res := <-speechDone:
			c.finishSpeech(ctx, res)
		}
	}
}

// ─── Transport input ──────────────────────────────────────────────────────────

// handleFrame forwards microphone audio to the STT stream and runs the
// energy backstop for barge-in while the tutor is speaking.
func (c *Controller) handleFrame(ctx context.Context, frame audio.Frame) {
	if c.State() == StateSpeaking {
		if frameRMS(frame) >= bargeInRMS {
			c.loudRun++
			if c.loudRun >= bargeInFrames {
				c.bargeIn(ctx)
			}
		} else {
			c.loudRun = 0
		}
	}

	if c.sttStream == nil {
		return
	}
	if err := c.sttStream.SendAudio(frame); err != nil {
		c.log.Warn("stt send failed", "error", err)
	}
}

// handleCommand dispatches one client control record.
func (c *Controller) handleCommand(ctx context.Context, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeGetLessonPlan:
		c.send(protocol.LessonPlanMsg(c.mem.LessonPlan()))

	case protocol.TypeReset:
		c.reset(ctx)

	case protocol.TypeStopTTS:
		if c.State() == StateSpeaking {
			c.stopSpeech(ctx, protocol.ReasonClientStop)
			c.setState(StateIdle)
			return
		}
		// Nothing to stop, but a client tracking tts_state still expects the
		// stopped announcement.
		c.send(protocol.TTSState(false, protocol.ReasonClientStop))

	case protocol.TypeSpeakWord:
		c.speakWord(ctx, msg.Word)

	default:
		// Server-to-client types arriving from a client are dropped.
		c.log.Debug("ignoring unexpected record", "type", msg.Type)
	}
}

// reset clears session state without closing the connection: any in-flight
// reply is abandoned, synthesis stops, and memory returns to empty.
func (c *Controller) reset(ctx context.Context) {
	c.gen++ // invalidate any pending reply
	if c.speech != nil {
		c.stopSpeech(ctx, protocol.ReasonStop)
	}
	c.mem.Reset()
	c.utterance = nil
	c.sttStart = time.Time{}
	c.setState(StateIdle)
	c.log.Info("session reset")
	c.send(protocol.StatusOK("session reset"))
	c.send(protocol.LessonPlanMsg(c.mem.LessonPlan()))
}

// speakWord synthesises a single vocabulary word on request. Refused while a
// reply is already being spoken.
func (c *Controller) speakWord(ctx context.Context, word string) {
	word = strings.TrimSpace(word)
	if word == "" {
		c.send(protocol.StatusErr("speak_word requires a word", nil))
		return
	}
	if c.State() == StateSpeaking {
		c.send(protocol.StatusErr("synthesis already active", nil))
		return
	}
	if c.startSpeech(ctx, word, time.Time{}) {
		c.setState(StateSpeaking)
	}
}

// ─── STT events ───────────────────────────────────────────────────────────────

// handleSTTEvent advances the state machine on one transcription event.
func (c *Controller) handleSTTEvent(ctx context.Context, ev stt.Event) {
	switch ev.Kind {
	case stt.EventSpeechStarted:
		c.send(protocol.VAD(protocol.VADSpeechStarted))
		switch c.State() {
		case StateSpeaking:
			c.bargeIn(ctx)
		case StateIdle:
			c.enterListening()
		}

	case stt.EventSpeechEnded:
		c.send(protocol.VAD(protocol.VADSpeechEnded))

	case stt.EventPartial:
		if ev.Transcript.Text == "" {
			return
		}
		// Speech during synthesis counts as a barge-in even when the
		// provider's VAD notice was lost.
		if c.State() == StateSpeaking {
			c.bargeIn(ctx)
		}
		if c.State() == StateIdle {
			c.enterListening()
		}
		c.send(protocol.Partial(ev.Transcript.Text))

	case stt.EventFinal:
		c.handleFinal(ctx, ev.Transcript)

	case stt.EventUtteranceEnd:
		if c.State() == StateListening && len(c.utterance) > 0 {
			c.beginThinking(ctx, strings.Join(c.utterance, " "))
			c.utterance = nil
		}

	case stt.EventError:
		c.log.Error("stt stream error", "error", ev.Err)
		c.metrics.RecordProviderError(ctx, "stt", "stream")
		c.send(protocol.StatusErr("transcription error", ev.Err))

	case stt.EventClosed:
		c.sttEvents = nil
		c.sttStream = nil
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Reopen so a transient provider drop does not end the session.
		// The new stream also picks up vocabulary added since the last dial.
		c.log.Info("stt stream closed, reopening")
		if err := c.startSTT(ctx); err != nil {
			c.log.Error("stt reopen failed", "error", err)
			c.send(protocol.StatusErr("transcription unavailable", err))
		}
	}
}

// handleFinal commits one transcript segment. Consecutive finals accumulate
// until the provider signals the end of the utterance.
func (c *Controller) handleFinal(ctx context.Context, tr stt.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}

	if c.State() == StateSpeaking {
		c.bargeIn(ctx)
	}
	if c.State() == StateThinking {
		// The learner kept talking past the committed utterance. Abandon the
		// in-flight reply; this new segment starts the replacement turn.
		c.gen++
		c.enterListening()
		c.log.Debug("pending reply superseded by new speech")
	}
	if c.State() == StateIdle {
		c.enterListening()
	}

	c.send(protocol.Final(text))
	c.utterance = append(c.utterance, text)
	c.markPracticed(ctx, text)
}

// markPracticed credits vocabulary the learner used in a committed
// transcript, tolerating STT mangling through phonetic matching.
func (c *Controller) markPracticed(ctx context.Context, text string) {
	words := c.mem.VocabWords()
	if len(words) == 0 {
		return
	}
	practiced := c.matcher.DetectPracticed(text, words)
	if len(practiced) == 0 {
		return
	}
	var items []protocol.VocabItem
	for _, w := range practiced {
		if c.mem.MarkPracticed(w) {
			c.metrics.VocabPracticed.Add(ctx, 1)
			c.log.Debug("vocabulary practiced", "word", w)
		}
	}
	// Resend the full entries so the client sees updated practice counts.
	for _, item := range c.mem.Vocab() {
		for _, w := range practiced {
			if strings.EqualFold(item.Word, w) {
				items = append(items, item)
			}
		}
	}
	if len(items) > 0 {
		c.send(protocol.VocabUpdate(items))
	}
}

// ─── Reply generation ─────────────────────────────────────────────────────────

// beginThinking commits the utterance as the learner's turn and launches
// reply generation. The generation counter guards against stale results
// arriving after a supersede or reset.
func (c *Controller) beginThinking(ctx context.Context, userText string) {
	c.setState(StateThinking)
	c.thinkStart = time.Now()
	if !c.sttStart.IsZero() {
		// Transcription latency: first speech to committed utterance.
		c.metrics.STTDuration.Record(ctx, time.Since(c.sttStart).Seconds())
		c.sttStart = time.Time{}
	}
	c.mem.AddUserTurn(userText)

	c.gen++
	gen := c.gen
	if c.pending == nil {
		c.pending = make(chan replyResult, 1)
	}
	out := c.pending

	// The goroutine gets its own copy: the loop keeps mutating the live
	// memory while a superseded generation may still be reading.
	snapshot := c.mem.Clone()

	c.log.Debug("generating reply", "chars", len(userText))
	go func() {
		reply, err := c.engine.Generate(ctx, snapshot, userText)
		select {
		case out <- replyResult{gen: gen, reply: reply, err: err}:
		case <-ctx.Done():
		}
	}()
}

// handleReply consumes a finished generation: stale results are dropped, the
// reply is recorded and announced, and synthesis starts.
func (c *Controller) handleReply(ctx context.Context, res replyResult) {
	if res.gen != c.gen {
		c.log.Debug("dropping stale reply", "gen", res.gen)
		return
	}
	if res.err != nil {
		// Only possible when every brain, fallback included, failed.
		c.log.Error("reply generation failed", "error", res.err)
		c.metrics.RecordProviderError(ctx, "tutor", "generate")
		c.metrics.RecordProviderRequest(ctx, "tutor", "generate", "error")
		c.send(protocol.StatusErr("tutor unavailable", res.err))
		c.setState(StateIdle)
		return
	}

	reply := res.reply
	c.metrics.LLMDuration.Record(ctx, time.Since(c.thinkStart).Seconds())
	c.metrics.RecordProviderRequest(ctx, "tutor", "generate", "ok")
	c.metrics.RecordTutorReply(ctx, reply.Backend)

	c.mem.AddTutorTurn(reply.Speech)
	c.send(protocol.TutorResponse(reply.Speech))
	c.send(protocol.TutorNotes(reply.Notes))
	if added := c.mem.ApplyNotes(reply.Notes); len(added) > 0 {
		c.send(protocol.VocabUpdate(added))
	}

	if c.startSpeech(ctx, reply.Speech, c.thinkStart) {
		c.setState(StateSpeaking)
	} else {
		c.setState(StateIdle)
	}

	// The notes may have advanced the plan; push the fresh snapshot with
	// every reply so the client's view never goes stale.
	c.send(protocol.LessonPlanMsg(c.mem.LessonPlan()))
}

// ─── Synthesis ────────────────────────────────────────────────────────────────

// startSpeech begins synthesising text. Returns false when synthesis could
// not start; the client is informed either way.
func (c *Controller) startSpeech(ctx context.Context, text string, thinkStart time.Time) bool {
	if c.speech != nil {
		// Invariant: one synthesis at a time.
		c.stopSpeech(ctx, protocol.ReasonStop)
	}

	stream, err := c.ttsP.Speak(ctx, text, tts.SpeakConfig{
		Voice:      c.voice,
		SampleRate: audio.PlaybackRate,
	})
	if err != nil {
		c.log.Error("synthesis start failed", "error", err)
		c.metrics.RecordProviderError(ctx, "tts", "speak")
		c.metrics.RecordProviderRequest(ctx, "tts", "speak", "error")
		c.send(protocol.StatusErr("synthesis unavailable", err))
		return false
	}
	c.metrics.RecordProviderRequest(ctx, "tts", "speak", "ok")

	c.speech = &speechRun{
		stream:     stream,
		audioCh:    stream.Audio(),
		doneCh:     stream.Done(),
		started:    time.Now(),
		thinkStart: thinkStart,
	}
	c.loudRun = 0
	c.send(protocol.TTSState(true, ""))
	return true
}

// stopSpeech abandons the active synthesis and announces it with the given
// reason. No-op when nothing is playing.
func (c *Controller) stopSpeech(ctx context.Context, reason protocol.StopReason) {
	if c.speech == nil {
		return
	}
	c.speech.stream.Stop()
	c.metrics.TTSDuration.Record(ctx, time.Since(c.speech.started).Seconds())
	c.speech = nil
	c.loudRun = 0
	c.send(protocol.TTSState(false, reason))
}

// finishSpeech handles the synthesis terminal result.
func (c *Controller) finishSpeech(ctx context.Context, res tts.Result) {
	if c.speech == nil {
		return
	}
	c.metrics.TTSDuration.Record(ctx, time.Since(c.speech.started).Seconds())
	c.speech = nil
	c.loudRun = 0

	switch {
	case res.Err != nil:
		c.log.Error("synthesis failed", "error", res.Err)
		c.metrics.RecordProviderError(ctx, "tts", "stream")
		c.send(protocol.TTSState(false, protocol.ReasonError))
		c.send(protocol.StatusErr("synthesis error", res.Err))
	case res.Stopped:
		// Stop initiated outside the loop; the stop path has already
		// announced a reason, so nothing more to say.
	default:
		c.send(protocol.TTSState(false, protocol.ReasonDone))
	}
	c.setState(StateIdle)
}

// bargeIn handles the learner interrupting the tutor: synthesis stops at
// once and the loop returns to Listening.
func (c *Controller) bargeIn(ctx context.Context) {
	if c.State() != StateSpeaking {
		return
	}
	c.log.Info("barge-in")
	c.metrics.RecordBargeIn(ctx)
	c.stopSpeech(ctx, protocol.ReasonBargeIn)
	c.enterListening()
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

// startSTT dials a transcription stream, seeding keyword hints from the
// vocabulary the session has introduced so far.
func (c *Controller) startSTT(ctx context.Context) error {
	stream, err := c.sttP.StartStream(ctx, stt.StreamConfig{
		SampleRate:     audio.CaptureRate,
		Channels:       1,
		Language:       c.language,
		Keywords:       c.mem.VocabWords(),
		InterimResults: true,
		VADEvents:      true,
		EndpointingMs:  endpointingMs,
		UtteranceEndMs: utteranceEndMs,
	})
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, "stt", "stream", "error")
		return err
	}
	c.metrics.RecordProviderRequest(ctx, "stt", "stream", "ok")
	c.sttStream = stream
	c.sttEvents = stream.Events()
	return nil
}

// teardown releases loop-owned resources on exit.
func (c *Controller) teardown() {
	if c.speech != nil {
		c.speech.stream.Stop()
		c.speech = nil
	}
	if c.sttStream != nil {
		if err := c.sttStream.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug("stt close", "error", err)
		}
		c.sttStream = nil
	}
}

// send delivers one control record, logging delivery failures. A failed send
// means the transport is going away; the loop keeps running until the server
// cancels its context.
func (c *Controller) send(msg protocol.Message) {
	if err := c.sink.SendMessage(msg); err != nil {
		c.log.Warn("message send failed", "type", msg.Type, "error", err)
	}
}

// frameRMS computes the root-mean-square amplitude of a PCM16 frame on the
// int16 scale.
func frameRMS(f audio.Frame) float64 {
	n := f.SampleCount()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(f.Sample(i))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
