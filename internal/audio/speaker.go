package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultPlayerCommands read an encoded clip from stdin and exit when it ends.
var DefaultPlayerCommands = []string{
	"ffplay -nodisp -autoexit -loglevel error -i -",
	"mpg123 -q -",
	"play -q -t mp3 -",
}

// ErrNoPlayer means none of the configured player binaries is installed.
var ErrNoPlayer = errors.New("no audio player available")

// Speaker plays encoded audio through the first installed external player.
type Speaker struct {
	commands [][]string
	run      func(ctx context.Context, argv []string, clip []byte) error
}

func NewSpeaker(commands []string) *Speaker {
	if len(commands) == 0 {
		commands = DefaultPlayerCommands
	}
	parsed := make([][]string, 0, len(commands))
	for _, c := range commands {
		if fields := strings.Fields(c); len(fields) > 0 {
			parsed = append(parsed, fields)
		}
	}
	return &Speaker{commands: parsed, run: runPlayer}
}

// Play blocks until the clip finishes, the player fails, or ctx is cancelled.
func (s *Speaker) Play(ctx context.Context, clip []byte) error {
	if len(clip) == 0 {
		return errors.New("empty audio clip")
	}
	for _, argv := range s.commands {
		err := s.run(ctx, argv, clip)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			continue
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return ErrNoPlayer
}

func runPlayer(ctx context.Context, argv []string, clip []byte) error {
	if _, err := exec.LookPath(argv[0]); err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(clip)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
