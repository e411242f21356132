package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"earinterp/internal/domain"
)

func runPump(t *testing.T, ctx context.Context, audio *fakeAudioSession, track *fakeTrack, events *fakeEventSink) {
	t.Helper()
	live := make(chan struct{})
	close(live)
	runGatedPump(t, ctx, audio, track, live, events)
}

func runGatedPump(t *testing.T, ctx context.Context, audio *fakeAudioSession, track *fakeTrack, live <-chan struct{}, events *fakeEventSink) {
	t.Helper()
	done := make(chan struct{})
	go pumpAudioFrames(ctx, audio, track, live, 320, 20*time.Millisecond, events, nil, done)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pump did not exit")
	}
}

func TestPumpAudioFramesShortTailEndsQuietly(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(make([]byte, 320), make([]byte, 160))
	_ = audio.Stop()
	track := &fakeTrack{}
	events := &fakeEventSink{}

	runPump(t, context.Background(), audio, track, events)

	if track.sampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", track.sampleCount())
	}
	if track.durations[1] != 10*time.Millisecond {
		t.Fatalf("short frame should carry a proportional duration, got %v", track.durations[1])
	}
	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("end of capture must not be reported: %+v", events.snapshotErrors())
	}
}

func TestPumpAudioFramesReportsReadError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession()
	audio.readErr = errors.New("device unplugged")
	events := &fakeEventSink{}

	runPump(t, context.Background(), audio, &fakeTrack{}, events)

	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected one audio_stream error, got %+v", errs)
	}
}

func TestPumpAudioFramesReportsWriteError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(make([]byte, 320))
	track := &fakeTrack{writeErr: errors.New("transport closed")}
	events := &fakeEventSink{}

	runPump(t, context.Background(), audio, track, events)

	errs := events.snapshotErrors()
	if len(errs) != 1 || errs[0].code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected one audio_stream error, got %+v", errs)
	}
}

func TestPumpAudioFramesSilentAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	audio := newFakeAudioSession()
	audio.readErr = errors.New("stream closed")
	events := &fakeEventSink{}

	runPump(t, ctx, audio, &fakeTrack{}, events)

	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("errors after cancellation must not be reported")
	}
}

func TestPumpAudioFramesDiscardsUntilLive(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession(make([]byte, 320), make([]byte, 320), make([]byte, 320))
	_ = audio.Stop()
	track := &fakeTrack{}
	events := &fakeEventSink{}

	runGatedPump(t, context.Background(), audio, track, make(chan struct{}), events)

	if track.sampleCount() != 0 {
		t.Fatalf("frames captured before the session went live were sent: %d", track.sampleCount())
	}
	if len(events.snapshotErrors()) != 0 {
		t.Fatalf("discarding must not report errors")
	}
}
