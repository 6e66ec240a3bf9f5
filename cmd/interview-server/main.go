package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sjawhar/interview-coach/internal/config"
	"github.com/sjawhar/interview-coach/internal/feedback"
	"github.com/sjawhar/interview-coach/internal/gdrive"
	"github.com/sjawhar/interview-coach/internal/interviewer"
	"github.com/sjawhar/interview-coach/internal/llm"
	"github.com/sjawhar/interview-coach/internal/server"
	"github.com/sjawhar/interview-coach/internal/speech"
	"github.com/sjawhar/interview-coach/internal/storage"
)

// replyMaxTokens keeps spoken replies short.
const replyMaxTokens = 400

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "interview-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	for _, w := range warnings {
		slog.Warn(w, "component", "config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() { _ = store.Close() }()

	replyModel, err := llm.FromModel(cfg.LLMModel, cfg.LLMKeys(), llm.WithMaxTokens(replyMaxTokens), llm.WithTemperature(1))
	if err != nil {
		return fmt.Errorf("interviewer model: %w", err)
	}

	synth, err := newSynthesizer(&cfg)
	if err != nil {
		slog.Warn("speech synthesis disabled", "component", "main", "error", err)
		synth = nil
	}

	var evaluator server.Evaluator
	if feedbackModel, err := llm.FromModel(cfg.FeedbackModelOrDefault(), cfg.LLMKeys()); err != nil {
		slog.Warn("feedback reports disabled", "component", "main", "error", err)
	} else {
		evaluator = feedback.NewEvaluator(feedbackModel, store)
	}

	archivers := []server.Archiver{storage.NewWriter(cfg.TranscriptDir)}
	if cfg.GDriveFolderID != "" {
		exporter, err := gdrive.NewExporter(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if err != nil {
			slog.Warn("drive export disabled", "component", "main", "error", err)
		} else {
			archivers = append(archivers, exporter)
		}
	}

	replier := interviewer.New(replyModel, synth, store, interviewer.WithDefaultRole(cfg.Role))
	svc := server.NewService(replier, store, evaluator, archivers...)

	slog.Info("interview-server starting", "component", "main", "listen", cfg.ServerAddr, "model", cfg.LLMModel, "tts", cfg.TTSProvider)
	err = server.Serve(ctx, cfg.ServerAddr, server.ServiceHandler(svc))

	svc.Wait()
	slog.Info("interview-server stopped", "component", "main")
	return err
}

// newSynthesizer builds the configured speech provider, falling back to
// OpenAI speech when ElevenLabs is primary and an OpenAI key exists.
func newSynthesizer(cfg *config.Config) (speech.Synthesizer, error) {
	switch cfg.TTSProvider {
	case "elevenlabs":
		primary, err := speech.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.TTSVoice, cfg.TTSModel)
		if err != nil {
			return nil, err
		}
		if cfg.OpenAIAPIKey == "" {
			return primary, nil
		}
		fallback, err := speech.NewOpenAI(cfg.OpenAIAPIKey, "", "", "")
		if err != nil {
			return primary, nil
		}
		return speech.Chain{primary, fallback}, nil
	case "openai":
		return speech.NewOpenAI(cfg.OpenAIAPIKey, "", cfg.TTSModel, cfg.TTSVoice)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTSProvider)
	}
}
