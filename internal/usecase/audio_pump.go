package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"earinterp/internal/domain"
	"earinterp/internal/metrics"
	"earinterp/internal/ports"
)

// pumpAudioFrames copies fixed-size PCM frames from the microphone to the
// outbound track until capture ends or the session is cancelled. Frames read
// before live is closed are discarded. Errors after cancellation are expected
// during teardown and are not reported.
func pumpAudioFrames(
	ctx context.Context,
	audio ports.AudioSession,
	track ports.AudioTrack,
	live <-chan struct{},
	frameBytes int,
	frameDuration time.Duration,
	events ports.EventSink,
	m *metrics.Metrics,
	done chan struct{},
) {
	defer close(done)

	buf := make([]byte, frameBytes)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 && isClosed(live) {
			if ctx.Err() != nil {
				return
			}
			duration := frameDuration * time.Duration(n) / time.Duration(frameBytes)
			if sendErr := track.WriteSample(buf[:n], duration); sendErr != nil {
				if ctx.Err() == nil {
					events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to send audio: %v", sendErr))
				}
				return
			}
			m.AudioFrameSent()
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			events.SessionError(domain.ErrorCodeAudioStream, fmt.Sprintf("audio capture error: %v", err))
			return
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
