package audio

import (
	"errors"
	"fmt"
	"time"

	"earinterp/internal/ports"
)

// Outbound audio is PCMU, so capture is pinned to its format.
const (
	SampleRate     = 8000
	Channels       = 1
	BytesPerSample = 2
)

// ErrMicrophoneUnavailable marks capture failures caused by a missing or denied input device.
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// NewCapture returns the capture backend named by backend.
func NewCapture(backend string, ffmpegCommand string, frame time.Duration) (ports.AudioCapture, error) {
	switch backend {
	case "", "ffmpeg":
		return NewFFMPEGCapture(ffmpegCommand), nil
	case "portaudio":
		return NewPortAudioCapture(FrameSamples(frame)), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// FrameSamples is the number of samples in one frame of duration d.
func FrameSamples(d time.Duration) int {
	samples := int(d * SampleRate / time.Second)
	if samples <= 0 {
		return SampleRate / 50
	}
	return samples
}

// FrameBytes is the s16le byte size of one frame of duration d.
func FrameBytes(d time.Duration) int {
	return FrameSamples(d) * Channels * BytesPerSample
}

// FrameDuration is the playback duration of n s16le bytes.
func FrameDuration(n int) time.Duration {
	samples := n / (Channels * BytesPerSample)
	return time.Duration(samples) * time.Second / SampleRate
}
