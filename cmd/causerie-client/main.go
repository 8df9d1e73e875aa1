// Command causerie-client is a terminal client for the tutoring server. It
// streams raw PCM16 microphone audio from a file or stdin and writes the
// tutor's 48 kHz PCM16 speech to a file or stdout, so it composes with
// external recorders and players:
//
//	arecord -f S16_LE -r 48000 -c 1 | causerie-client | aplay -f S16_LE -r 48000 -c 1
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/causerie-ai/causerie/pkg/audio"
	"github.com/causerie-ai/causerie/pkg/audio/playback"
	"github.com/causerie-ai/causerie/pkg/client"
	"github.com/causerie-ai/causerie/pkg/protocol"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	url := flag.String("url", "ws://localhost:8080/ws", "session WebSocket URL")
	in := flag.String("in", "-", "raw PCM16 capture input: file path, or - for stdin")
	inRate := flag.Int("rate", 48000, "capture input sample rate in Hz")
	out := flag.String("out", "-", "raw PCM16 playback output: file path, or - for stdout")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// ── Capture source ─────────────────────────────────────────────────────────
	var source client.CaptureSource
	if *in == "-" {
		source = client.NewStdinSource(*inRate)
	} else {
		fs, err := client.NewFileSource(*in, *inRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "causerie-client: %v\n", err)
			return 1
		}
		source = fs
	}

	// ── Playback sink ──────────────────────────────────────────────────────────
	sink := os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "causerie-client: create output: %v\n", err)
			return 1
		}
		defer f.Close()
		sink = f
	}
	queue := playback.NewQueue(playback.NewPacedPlayer(sink, audio.PlaybackRate))
	defer queue.Close()

	// ── Session ────────────────────────────────────────────────────────────────
	handlers := client.Handlers{
		OnPartial: func(text string) {
			fmt.Fprintf(os.Stderr, "\r… %s", text)
		},
		OnFinal: func(text string) {
			fmt.Fprintf(os.Stderr, "\rYou: %s\n", text)
		},
		OnTutorResponse: func(speech string) {
			fmt.Fprintf(os.Stderr, "Tutor: %s\n", speech)
		},
		OnTutorNotes: func(notes protocol.Notes) {
			for _, c := range notes.Corrections {
				fmt.Fprintf(os.Stderr, "  ✎ %s\n", c)
			}
			for _, w := range notes.NewVocab {
				fmt.Fprintf(os.Stderr, "  + %s\n", w)
			}
		},
		OnStatus: func(ok bool, message, errText string) {
			if !ok {
				fmt.Fprintf(os.Stderr, "! %s: %s\n", message, errText)
			}
		},
	}

	c := client.New(*url, source, queue,
		client.WithHandlers(handlers),
		client.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting", "url", *url, "input", *in, "input_rate", *inRate)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "causerie-client: %v\n", err)
		return 1
	}
	return 0
}
