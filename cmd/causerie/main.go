// Command causerie is the voice tutoring server.
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
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/causerie-ai/causerie/internal/config"
	"github.com/causerie-ai/causerie/internal/observe"
	"github.com/causerie-ai/causerie/internal/server"
	"github.com/causerie-ai/causerie/internal/tutor"
	"github.com/causerie-ai/causerie/pkg/provider/llm"
	"github.com/causerie-ai/causerie/pkg/provider/llm/anyllm"
	openaillm "github.com/causerie-ai/causerie/pkg/provider/llm/openai"
	"github.com/causerie-ai/causerie/pkg/provider/stt"
	sttdeepgram "github.com/causerie-ai/causerie/pkg/provider/stt/deepgram"
	"github.com/causerie-ai/causerie/pkg/provider/tts"
	ttsdeepgram "github.com/causerie-ai/causerie/pkg/provider/tts/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "causerie: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "causerie: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("causerie starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "causerie"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	sttP, err := buildSTT(cfg)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	ttsP, err := buildTTS(cfg)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to build tutor engine", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := server.New(cfg, sttP, ttsP, engine, server.WithLogger(logger))

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

func buildSTT(cfg *config.Config) (stt.Provider, error) {
	entry := cfg.Providers.STT
	var opts []sttdeepgram.Option
	if entry.Model != "" {
		opts = append(opts, sttdeepgram.WithModel(entry.Model))
	}
	if cfg.Tutor.Language != "" {
		opts = append(opts, sttdeepgram.WithLanguage(cfg.Tutor.Language))
	}
	p, err := sttdeepgram.New(entry.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)
	return p, nil
}

func buildTTS(cfg *config.Config) (tts.Provider, error) {
	entry := cfg.Providers.TTS
	var opts []ttsdeepgram.Option
	if entry.Model != "" {
		opts = append(opts, ttsdeepgram.WithModel(entry.Model))
	}
	p, err := ttsdeepgram.New(entry.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name, "model", entry.Model)
	return p, nil
}

// buildEngine assembles the reply chain: configured LLM first, then the
// optional fallback LLM, then the canned drills that can never fail.
func buildEngine(cfg *config.Config) (*tutor.Engine, error) {
	var brains []tutor.Brain

	if cfg.Providers.LLM.Name != "" {
		primary, err := buildLLM(cfg.Providers.LLM, cfg.Tutor)
		if err != nil {
			return nil, err
		}
		brains = append(brains, primary)
	}
	if cfg.Providers.FallbackLLM.Name != "" {
		secondary, err := buildLLM(cfg.Providers.FallbackLLM, cfg.Tutor)
		if err != nil {
			return nil, err
		}
		brains = append(brains, secondary)
	}
	brains = append(brains, tutor.NewFallback())

	return tutor.NewEngine(brains[0], brains[1:]...), nil
}

func buildLLM(entry config.ProviderEntry, tcfg config.TutorConfig) (tutor.Brain, error) {
	provider, err := buildLLMProvider(entry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	var opts []tutor.LLMOption
	if tcfg.Temperature != 0 {
		opts = append(opts, tutor.WithTemperature(tcfg.Temperature))
	}
	if tcfg.MaxTokens != 0 {
		opts = append(opts, tutor.WithMaxTokens(tcfg.MaxTokens))
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)
	return tutor.NewLLMBrain(provider, entry.Name, opts...), nil
}

// buildLLMProvider picks the backend for one LLM entry. OpenAI uses the
// native SDK for its JSON response mode; everything else goes through the
// any-llm bridge. ollama is a local server, so its BaseURL is the address
// and no API key applies.
func buildLLMProvider(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)

	case "ollama":
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)

	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Causerie — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Fallback LLM", cfg.Providers.FallbackLLM.Name, cfg.Providers.FallbackLLM.Model)
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Tutor.Language)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
