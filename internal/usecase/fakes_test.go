package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"earinterp/internal/domain"
	"earinterp/internal/metrics"
	"earinterp/internal/ports"
)

func newTestController(audio ports.AudioCapture, peers ports.PeerFactory, signaler ports.Signaler, events ports.EventSink) (*SessionController, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	controller := NewSessionController(audio, peers, signaler, events, Config{
		FrameBytes:    320,
		FrameDuration: 20 * time.Millisecond,
		Logger:        zerolog.Nop(),
		Metrics:       m,
	})
	return controller, m
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

func (f *fakeAudioCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	readErr   error
	gate      chan struct{}
	reads     int
	stopCalls int
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

// Read serves the queued chunks, then blocks until Stop like a live microphone.
// A non-nil gate holds every read until it is closed.
func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-f.stopped:
			return 0, io.EOF
		}
	}

	f.mu.Lock()
	if len(f.chunks) > 0 {
		n := copy(p, f.chunks[0])
		f.chunks[0] = f.chunks[0][n:]
		if len(f.chunks[0]) == 0 {
			f.chunks = f.chunks[1:]
		}
		f.mu.Unlock()
		return n, nil
	}
	readErr := f.readErr
	f.mu.Unlock()

	if readErr != nil {
		return 0, readErr
	}
	<-f.stopped
	return 0, io.EOF
}

func (f *fakeAudioSession) Close() error { return f.Stop() }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopped) })
	return nil
}

func (f *fakeAudioSession) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeAudioSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakePeerFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
	calls int
}

func (f *fakePeerFactory) NewPeerConnection(_ context.Context) (ports.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.peers) == 0 {
		return nil, errors.New("no peer configured")
	}
	peer := f.peers[0]
	f.peers = f.peers[1:]
	return peer, nil
}

func (f *fakePeerFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePeer struct {
	mu             sync.Mutex
	track          *fakeTrack
	addTrackErr    error
	offerErr       error
	answerErr      error
	stateHandler   func(domain.ConnectionState)
	channelHandler func(ports.DataChannel)
	answer         string
	closeCalls     int
}

func newFakePeer() *fakePeer {
	return &fakePeer{track: &fakeTrack{}}
}

func (f *fakePeer) AddAudioTrack() (ports.AudioTrack, error) {
	if f.addTrackErr != nil {
		return nil, f.addTrackErr
	}
	return f.track, nil
}

func (f *fakePeer) OnConnectionStateChange(handler func(domain.ConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandler = handler
}

func (f *fakePeer) OnDataChannel(handler func(ports.DataChannel)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelHandler = handler
}

func (f *fakePeer) CreateOffer(_ context.Context) (string, error) {
	if f.offerErr != nil {
		return "", f.offerErr
	}
	return "offer-sdp", nil
}

func (f *fakePeer) SetRemoteAnswer(sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = sdp
	return f.answerErr
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func (f *fakePeer) fireState(state domain.ConnectionState) {
	f.mu.Lock()
	handler := f.stateHandler
	f.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// openChannel announces channel and then delivers frames straight away, the
// way pion starts a channel's read loop once the announcement returns.
func (f *fakePeer) openChannel(channel *fakeDataChannel, frames ...string) {
	f.mu.Lock()
	handler := f.channelHandler
	f.mu.Unlock()
	if handler != nil {
		handler(channel)
	}
	channel.receive(frames...)
}

func (f *fakePeer) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakePeer) remoteAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answer
}

type fakeTrack struct {
	mu        sync.Mutex
	writeErr  error
	samples   [][]byte
	durations []time.Duration
	stopCalls int
}

func (f *fakeTrack) WriteSample(pcm []byte, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.samples = append(f.samples, append([]byte(nil), pcm...))
	f.durations = append(f.durations, duration)
	return nil
}

func (f *fakeTrack) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeTrack) sampleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeTrack) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeDataChannel struct {
	mu      sync.Mutex
	label   string
	handler func([]byte)
	lost    int
}

func newFakeDataChannel(label string) *fakeDataChannel {
	return &fakeDataChannel{label: label}
}

func (f *fakeDataChannel) Label() string { return f.label }

func (f *fakeDataChannel) OnMessage(handler func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeDataChannel) Close() error { return nil }

// receive passes frames to the bound handler. Frames arriving with no handler
// are lost, as they are on a real transport.
func (f *fakeDataChannel) receive(frames ...string) {
	for _, frame := range frames {
		f.mu.Lock()
		handler := f.handler
		if handler == nil {
			f.lost++
		}
		f.mu.Unlock()
		if handler != nil {
			handler([]byte(frame))
		}
	}
}

func (f *fakeDataChannel) lostCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lost
}

type fakeSignaler struct {
	mu      sync.Mutex
	answer  string
	err     error
	block   bool
	release chan struct{}
	called  chan struct{}
	offers  []domain.Offer
	urls    []string
}

func newFakeSignaler(answer string) *fakeSignaler {
	return &fakeSignaler{answer: answer, called: make(chan struct{}, 8)}
}

func (f *fakeSignaler) Exchange(ctx context.Context, endpointURL string, offer domain.Offer) (string, error) {
	f.mu.Lock()
	f.offers = append(f.offers, offer)
	f.urls = append(f.urls, endpointURL)
	block, release := f.block, f.release
	f.mu.Unlock()
	f.called <- struct{}{}

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func (f *fakeSignaler) snapshotOffers() []domain.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Offer, len(f.offers))
	copy(out, f.offers)
	return out
}

type fakeEventSink struct {
	mu           sync.Mutex
	connectivity []bool
	metadata     []domain.SessionMetadata
	captions     [][]domain.Caption
	errors       []errEvent
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) ConnectivityChanged(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectivity = append(f.connectivity, connected)
}

func (f *fakeEventSink) SessionMetadataChanged(meta domain.SessionMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata = append(f.metadata, meta)
}

func (f *fakeEventSink) CaptionsChanged(captions []domain.Caption) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, captions)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotConnectivity() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.connectivity))
	copy(out, f.connectivity)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) captionEvents() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captions)
}
