package deepgram

import (
	"net/url"
	"testing"
	"time"

	"github.com/causerie-ai/causerie/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate:     16000,
		Channels:       1,
		Language:       "fr",
		InterimResults: true,
		VADEvents:      true,
		EndpointingMs:  50,
		UtteranceEndMs: 900,
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "fr", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "vad_events", "true", q.Get("vad_events"))
	assertEqual(t, "endpointing", "50", q.Get("endpointing"))
	assertEqual(t, "utterance_end_ms", "900", q.Get("utterance_end_ms"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate: 16000,
		Keywords:   []string{"boulangerie", "croissant"},
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	terms := u.Query()["keyterm"]
	if len(terms) != 2 {
		t.Fatalf("expected 2 keyterms, got %d: %v", len(terms), terms)
	}

	found := map[string]bool{}
	for _, kw := range terms {
		found[kw] = true
	}
	if !found["boulangerie"] || !found["croissant"] {
		t.Errorf("unexpected keyterms: %v", terms)
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	if _, ok := u.Query()["keyterm"]; ok {
		t.Error("expected no 'keyterm' param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseListenMessage_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"duration": 1.2,
		"channel": {
			"alternatives": [{
				"transcript": "Bonjour le monde",
				"confidence": 0.95,
				"words": [
					{"word": "Bonjour", "start": 0.1, "end": 0.5, "confidence": 0.97},
					{"word": "le", "start": 0.6, "end": 0.7, "confidence": 0.99},
					{"word": "monde", "start": 0.7, "end": 1.0, "confidence": 0.93}
				]
			}]
		}
	}`)

	ev, ok := parseListenMessage(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}

	if ev.Kind != stt.EventFinal {
		t.Errorf("kind = %v, want final", ev.Kind)
	}
	assertEqual(t, "text", "Bonjour le monde", ev.Transcript.Text)
	if ev.Transcript.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", ev.Transcript.Confidence)
	}
	if len(ev.Transcript.Words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(ev.Transcript.Words))
	}
	assertEqual(t, "word[0]", "Bonjour", ev.Transcript.Words[0].Word)
	if ev.Transcript.Words[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("unexpected start: %v", ev.Transcript.Words[0].Start)
	}
}

func TestParseListenMessage_Partial(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {
			"alternatives": [{
				"transcript": "Bonjour",
				"confidence": 0.7,
				"words": []
			}]
		}
	}`)

	ev, ok := parseListenMessage(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Kind != stt.EventPartial {
		t.Errorf("kind = %v, want partial", ev.Kind)
	}
	assertEqual(t, "text", "Bonjour", ev.Transcript.Text)
}

func TestParseListenMessage_SpeechStarted(t *testing.T) {
	ev, ok := parseListenMessage([]byte(`{"type":"SpeechStarted","timestamp":4.2}`))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Kind != stt.EventSpeechStarted {
		t.Errorf("kind = %v, want speech_started", ev.Kind)
	}
}

func TestParseListenMessage_UtteranceEnd(t *testing.T) {
	ev, ok := parseListenMessage([]byte(`{"type":"UtteranceEnd","last_word_end":3.1}`))
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Kind != stt.EventUtteranceEnd {
		t.Errorf("kind = %v, want utterance_end", ev.Kind)
	}
}

func TestParseListenMessage_NonResultsType(t *testing.T) {
	_, ok := parseListenMessage([]byte(`{"type":"Metadata","request_id":"abc"}`))
	if ok {
		t.Error("expected ok=false for Metadata message")
	}
}

func TestParseListenMessage_EmptyAlternatives(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`)
	_, ok := parseListenMessage(raw)
	if ok {
		t.Error("expected ok=false when alternatives is empty")
	}
}

func TestParseListenMessage_InvalidJSON(t *testing.T) {
	_, ok := parseListenMessage([]byte(`{invalid`))
	if ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
