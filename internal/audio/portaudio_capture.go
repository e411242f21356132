package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"earinterp/internal/ports"
)

// PortAudioCapture records the default input device through PortAudio.
type PortAudioCapture struct {
	framesPerBuffer int
}

func NewPortAudioCapture(framesPerBuffer int) *PortAudioCapture {
	if framesPerBuffer <= 0 {
		framesPerBuffer = SampleRate / 50
	}
	return &PortAudioCapture{framesPerBuffer: framesPerBuffer}
}

// Start opens a mono input-only stream. Device selection follows the host's default input.
func (c *PortAudioCapture) Start(ctx context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrMicrophoneUnavailable, err)
	}

	samples := make([]int16, c.framesPerBuffer*Channels)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), c.framesPerBuffer, samples)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input stream: %v", ErrMicrophoneUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input stream: %v", ErrMicrophoneUnavailable, err)
	}

	return &portAudioSession{
		stream:  stream,
		samples: samples,
		frame:   make([]byte, len(samples)*BytesPerSample),
	}, nil
}

type portAudioSession struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int16
	frame   []byte
	pending []byte
	stopped atomic.Bool

	stopOnce sync.Once
	stopErr  error
}

// Read blocks for the next buffer and hands it out as little-endian s16 bytes.
func (s *portAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		if s.stopped.Load() {
			return 0, io.EOF
		}
		if err := s.stream.Read(); err != nil {
			if s.stopped.Load() {
				return 0, io.EOF
			}
			return 0, err
		}
		for i, sample := range s.samples {
			binary.LittleEndian.PutUint16(s.frame[i*BytesPerSample:], uint16(sample))
		}
		s.pending = s.frame
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *portAudioSession) Close() error {
	return s.Stop()
}

// Stop aborts the stream so a blocked Read returns, then releases PortAudio.
func (s *portAudioSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if err := s.stream.Abort(); err != nil {
			s.stopErr = err
		}

		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()

		if err := s.stream.Close(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
		if err := portaudio.Terminate(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
	})
	return s.stopErr
}
