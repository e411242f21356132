package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"earinterp/internal/domain"
	"earinterp/internal/ports"
)

type eventKind int

const (
	eventStateChanged eventKind = iota
	eventChannelOpened
	eventMessage
)

// sessionEvent carries one peer callback into the session's dispatcher.
type sessionEvent struct {
	kind    eventKind
	state   domain.ConnectionState
	channel ports.DataChannel
	payload []byte
}

type activeSession struct {
	id     string
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	inbox        chan sessionEvent
	done         chan struct{}
	dispatchDone chan struct{}

	mu       sync.Mutex
	closed   bool
	audio    ports.AudioSession
	peer     ports.PeerConnection
	track    ports.AudioTrack
	channel  ports.DataChannel
	pumpDone chan struct{}
}

// sessionResources is what teardown has to release.
type sessionResources struct {
	audio ports.AudioSession
	peer  ports.PeerConnection
	track ports.AudioTrack
}

func newActiveSession(ctx context.Context, id string, epoch uint64, logger zerolog.Logger) *activeSession {
	sessionCtx, cancel := context.WithCancel(ctx)
	return &activeSession{
		id:           id,
		epoch:        epoch,
		ctx:          sessionCtx,
		cancel:       cancel,
		logger:       logger,
		inbox:        make(chan sessionEvent, 64),
		done:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
}

// post queues ev unless the session has been torn down.
func (s *activeSession) post(ev sessionEvent) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// attach runs fn under the session lock unless teardown already happened.
func (s *activeSession) attach(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *activeSession) channelBound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel != nil
}

// close marks the session torn down and hands back its resources exactly once.
func (s *activeSession) close() (sessionResources, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sessionResources{}, false
	}
	s.closed = true
	res := sessionResources{audio: s.audio, peer: s.peer, track: s.track}
	s.audio, s.peer, s.track, s.channel = nil, nil, nil, nil
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	return res, true
}

// wait blocks until the dispatcher and the audio pump have exited.
func (s *activeSession) wait() {
	<-s.dispatchDone

	s.mu.Lock()
	pumpDone := s.pumpDone
	s.mu.Unlock()
	if pumpDone != nil {
		<-pumpDone
	}
}
