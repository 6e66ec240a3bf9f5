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

	"github.com/sjawhar/interview-coach/internal/audio"
	"github.com/sjawhar/interview-coach/internal/capture"
	"github.com/sjawhar/interview-coach/internal/config"
	"github.com/sjawhar/interview-coach/internal/interview"
	"github.com/sjawhar/interview-coach/internal/playback"
	"github.com/sjawhar/interview-coach/internal/server"
	"github.com/sjawhar/interview-coach/internal/transcript"
	"github.com/sjawhar/interview-coach/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "interview-coach: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to YAML config file")
	role := flag.String("role", "", "position to practice for (overrides config role)")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *role != "" {
		cfg.Role = *role
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	for _, w := range warnings {
		slog.Warn(w, "component", "config")
	}

	if err := audio.Init(); err != nil {
		// Capture will report CAPTURE_UNAVAILABLE when the mic is opened.
		slog.Warn("portaudio init failed", "component", "audio", "error", err)
	} else {
		defer func() { _ = audio.Terminate() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub()
	client := transport.NewClient(cfg.ServiceURL, cfg.Role, transport.WithTimeout(cfg.ParsedRequestTimeout()))
	player := playback.NewController(audio.NewSpeaker(cfg.PlayerCommands))

	var coord *interview.Coordinator
	recognizer := capture.NewDeepgramRecognizer(capture.DeepgramOptions{
		APIKey:      cfg.DeepgramAPIKey,
		Model:       cfg.DeepgramModel,
		Language:    cfg.DeepgramLanguage,
		SampleRates: cfg.SampleRateCandidates(),
	})
	mic := capture.NewController(recognizer, capture.Hooks{
		OnFragment: func(f transcript.Fragment) { coord.OnFragment(f) },
		OnFatal:    func(err error) { coord.OnCaptureFatal(err) },
	})

	coord = interview.NewCoordinator(interview.Deps{
		Capture:   mic,
		Transport: client,
		Player:    player,
		Finisher:  client,
		Events:    hub,
	})

	slog.Info("interview-coach starting", "component", "main",
		"session", coord.SessionID(), "role", cfg.Role, "service", cfg.ServiceURL, "listen", cfg.ListenAddr)

	loopDone := make(chan error, 1)
	go func() { loopDone <- coord.Run(ctx) }()

	serveErr := server.Serve(ctx, cfg.ListenAddr, server.CoachHandler(hub, coord, warnings))
	stop()
	loopErr := <-loopDone

	slog.Info("interview-coach stopped", "component", "main")
	return errors.Join(serveErr, loopErr)
}
