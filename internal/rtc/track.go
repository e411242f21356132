package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/zaf/g711"
)

// ErrTrackStopped is returned when writing to a stopped track.
var ErrTrackStopped = errors.New("audio track stopped")

// Track encodes s16le PCM to µ-law and writes it to a local PCMU track.
type Track struct {
	local  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender

	mu      sync.Mutex
	stopped bool
}

func newTrack(local *webrtc.TrackLocalStaticSample, sender *webrtc.RTPSender) *Track {
	return &Track{local: local, sender: sender}
}

func (t *Track) WriteSample(pcm []byte, duration time.Duration) error {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return ErrTrackStopped
	}
	if len(pcm) == 0 {
		return nil
	}
	return t.local.WriteSample(media.Sample{
		Data:     g711.EncodeUlaw(pcm),
		Duration: duration,
	})
}

// Stop detaches the sender. Safe to call more than once.
func (t *Track) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	if t.sender == nil {
		return nil
	}
	return t.sender.Stop()
}
