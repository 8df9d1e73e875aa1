package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/causerie-ai/causerie/pkg/provider/tts"
)

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(tts.SpeakConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	if got := q.Get("model"); got != defaultModel {
		t.Errorf("model = %q, want %q", got, defaultModel)
	}
	if got := q.Get("encoding"); got != "linear16" {
		t.Errorf("encoding = %q, want linear16", got)
	}
	if got := q.Get("sample_rate"); got != "48000" {
		t.Errorf("sample_rate = %q, want 48000", got)
	}
}

func TestBuildURL_VoiceOverridesModel(t *testing.T) {
	p, err := New("key", WithModel("aura-2-thalia-en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(tts.SpeakConfig{Voice: "aura-2-pandora-en", SampleRate: 24000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()
	if got := q.Get("model"); got != "aura-2-pandora-en" {
		t.Errorf("model = %q, want aura-2-pandora-en", got)
	}
	if got := q.Get("sample_rate"); got != "24000" {
		t.Errorf("sample_rate = %q, want 24000", got)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestStream_StopUnblocksFullAudioBuffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		// Flood well past the stream buffer so the read loop has to park on
		// the audio channel with nobody draining it.
		for i := 0; i < 120; i++ {
			if err := conn.Write(ctx, websocket.MessageBinary, []byte{0, 0}); err != nil {
				return
			}
		}
		<-ctx.Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	s := &stream{
		conn:  conn,
		audio: make(chan []byte, 64),
		done:  make(chan tts.Result, 1),
		stop:  make(chan struct{}),
	}
	go s.readLoop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.audio) < cap(s.audio) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.audio) < cap(s.audio) {
		t.Fatalf("audio buffer = %d/%d, never filled", len(s.audio), cap(s.audio))
	}

	s.Stop()

	select {
	case res := <-s.Done():
		if !res.Stopped {
			t.Errorf("result = %+v, want Stopped", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop still parked after Stop")
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("key", WithModel("aura-luna-en"), WithSampleRate(16000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "aura-luna-en" {
		t.Errorf("model = %q", p.model)
	}
	if p.sampleRate != 16000 {
		t.Errorf("sampleRate = %d", p.sampleRate)
	}
}
