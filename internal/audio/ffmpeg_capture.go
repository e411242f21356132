package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"earinterp/internal/ports"
)

const (
	startupProbe = 250 * time.Millisecond
	stopGrace    = 1200 * time.Millisecond
)

// FFMPEGCapture records the microphone through an ffmpeg subprocess.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Start launches ffmpeg and fails if it exits during the startup probe,
// which is how a missing device or denied permission shows up.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, ffmpegArgs(cfg)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrMicrophoneUnavailable, c.command, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	select {
	case err := <-exited:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", ErrMicrophoneUnavailable, err, detail)
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", ErrMicrophoneUnavailable)
	case <-ctx.Done():
		<-exited
		return nil, ctx.Err()
	case <-time.After(startupProbe):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		exited:  exited,
	}, nil
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	format := cfg.InputFormat
	if format == "" {
		format = "pulse"
	}
	device := cfg.InputDevice
	if device == "" {
		device = "default"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-vn",
		"-ac", strconv.Itoa(Channels),
		"-ar", strconv.Itoa(SampleRate),
		"-f", "s16le",
		"-",
	}
}

type ffmpegSession struct {
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	exited  <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg, escalating to kill after stopGrace.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		var waitErr error
		select {
		case waitErr = <-s.exited:
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			waitErr = <-s.exited
		}
		s.stopErr = ignoreExitStatus(waitErr)

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.stopErr
}

// ignoreExitStatus drops the non-zero exit ffmpeg reports after being interrupted.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
