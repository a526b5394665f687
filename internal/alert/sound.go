package alert

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Player plays an alert sound. Implementations must return quickly; the
// pipeline never waits for playback to finish.
type Player interface {
	Play(path string) error
}

// ExecPlayer launches a system audio command (aplay, afplay, paplay, ...)
// with the sound file as its only argument and reaps it in the background.
type ExecPlayer struct {
	Command string
}

func (p ExecPlayer) Play(path string) error {
	if p.Command == "" {
		return errors.New("no sound command configured")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("sound file: %w", err)
	}
	cmd := exec.Command(p.Command, path)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
