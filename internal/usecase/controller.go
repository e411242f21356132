package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"earinterp/internal/captions"
	"earinterp/internal/domain"
	"earinterp/internal/metrics"
	"earinterp/internal/ports"
)

// ErrSessionSuperseded is returned by Connect when a Disconnect or a newer
// Connect took ownership while it was still negotiating.
var ErrSessionSuperseded = errors.New("session superseded before it was established")

// ConnectError classifies a failed Connect for the UI.
type ConnectError struct {
	Code domain.ErrorCode
	Err  error
}

func (e *ConnectError) Error() string { return e.Err.Error() }

func (e *ConnectError) Unwrap() error { return e.Err }

// Config controls session behavior.
type Config struct {
	Audio         ports.AudioConfig
	FrameBytes    int
	FrameDuration time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

// SessionController owns the single translation session and its caption log.
//
// Peer callbacks are posted to a per-session inbox and applied by one
// dispatcher goroutine, and only while that session still holds the
// controller's current epoch.
type SessionController struct {
	audio    ports.AudioCapture
	peers    ports.PeerFactory
	signaler ports.Signaler
	events   ports.EventSink
	captions *captions.Stream
	cfg      Config
	logger   zerolog.Logger

	// emitMu orders connectivity updates with their emission.
	emitMu sync.Mutex

	mu        sync.Mutex
	current   *activeSession
	epoch     uint64
	connected bool
	metadata  domain.SessionMetadata

	dropped  atomic.Uint64
	ignored  atomic.Uint64
	received atomic.Uint64
}

// NewSessionController wires the controller. events must not call back into
// the controller synchronously.
func NewSessionController(
	audio ports.AudioCapture,
	peers ports.PeerFactory,
	signaler ports.Signaler,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.FrameBytes <= 0 {
		cfg.FrameBytes = 320
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	return &SessionController{
		audio:    audio,
		peers:    peers,
		signaler: signaler,
		events:   events,
		captions: captions.NewStream(),
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// Connect tears down any existing session, then acquires the microphone,
// negotiates with endpointURL and starts streaming. Failures leave no session
// behind and are returned as *ConnectError.
func (c *SessionController) Connect(ctx context.Context, endpointURL string, target domain.TargetLanguage) error {
	lang, err := domain.ParseTargetLanguage(string(target))
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeLanguage, Err: err}
	}

	c.cfg.Metrics.ConnectAttempt()
	active, previous := c.begin(ctx)
	if previous != nil {
		previous.logger.Info().Msg("replacing session")
		c.stopSession(previous)
		c.transition(nil, func(bool) bool { return false })
		previous.wait()
	}

	go c.dispatch(active)

	active.logger.Info().Str("endpoint", endpointURL).Str("target_lang", string(lang)).Msg("connecting")
	if err := c.establish(active, endpointURL, lang); err != nil {
		if owned := c.release(active); !owned {
			active.logger.Info().Msg("connect superseded")
			return ErrSessionSuperseded
		}
		code := domain.ErrorCodeNegotiation
		var connectErr *ConnectError
		if errors.As(err, &connectErr) {
			code = connectErr.Code
		} else {
			err = &ConnectError{Code: code, Err: err}
		}
		c.cfg.Metrics.ConnectFailed(code)
		active.logger.Warn().Err(err).Str("code", string(code)).Msg("connect failed")
		return err
	}

	active.logger.Info().Msg("session negotiated")
	return nil
}

// Disconnect stops outbound media, closes the peer connection and drops the
// side channel. Safe to call with no session.
func (c *SessionController) Disconnect() {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.epoch++
	c.mu.Unlock()

	if active != nil {
		c.stopSession(active)
	}
	c.transition(nil, func(bool) bool { return false })

	if active != nil {
		active.wait()
		active.logger.Info().Msg("disconnected")
	}
}

// Toggle disconnects when connected and connects otherwise.
func (c *SessionController) Toggle(ctx context.Context, endpointURL string, target domain.TargetLanguage) error {
	if c.Status().Connected {
		c.Disconnect()
		return nil
	}
	return c.Connect(ctx, endpointURL, target)
}

// Status returns the connectivity signal and session metadata.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{Connected: c.connected, LogPath: c.metadata.LogPath}
}

// Captions returns the caption log, newest first.
func (c *SessionController) Captions() []domain.Caption {
	return c.captions.Snapshot()
}

func (c *SessionController) Metadata() domain.SessionMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

func (c *SessionController) Diagnostics() domain.Diagnostics {
	return domain.Diagnostics{
		DroppedMessages:  c.dropped.Load(),
		IgnoredMessages:  c.ignored.Load(),
		CaptionsReceived: c.received.Load(),
	}
}

// begin installs a fresh session under a new epoch and returns the one it replaced.
func (c *SessionController) begin(ctx context.Context) (*activeSession, *activeSession) {
	id := uuid.NewString()

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.current
	c.epoch++
	active := newActiveSession(ctx, id, c.epoch, c.logger.With().Str("session_id", id).Logger())
	c.current = active
	return active, previous
}

func (c *SessionController) establish(active *activeSession, endpointURL string, lang domain.TargetLanguage) error {
	audioSession, err := c.audio.Start(active.ctx, c.cfg.Audio)
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeMedia, Err: err}
	}
	if !active.attach(func() { active.audio = audioSession }) {
		_ = audioSession.Stop()
		return ErrSessionSuperseded
	}

	peer, err := c.peers.NewPeerConnection(active.ctx)
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeNegotiation, Err: err}
	}
	if !active.attach(func() { active.peer = peer }) {
		_ = peer.Close()
		return ErrSessionSuperseded
	}

	track, err := peer.AddAudioTrack()
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeNegotiation, Err: err}
	}
	// The pump starts now so the capture pipe never backs up during
	// negotiation. Frames read before live closes are discarded.
	live := make(chan struct{})
	if !active.attach(func() {
		active.track = track
		active.pumpDone = make(chan struct{})
		go pumpAudioFrames(active.ctx, audioSession, track, live, c.cfg.FrameBytes, c.cfg.FrameDuration, c.events, c.cfg.Metrics, active.pumpDone)
	}) {
		_ = track.Stop()
		return ErrSessionSuperseded
	}

	peer.OnConnectionStateChange(func(state domain.ConnectionState) {
		active.post(sessionEvent{kind: eventStateChanged, state: state})
	})
	// The transport starts reading as soon as this callback returns, so the
	// message handler has to be bound before it does.
	peer.OnDataChannel(func(channel ports.DataChannel) {
		channel.OnMessage(func(payload []byte) {
			active.post(sessionEvent{kind: eventMessage, payload: append([]byte(nil), payload...)})
		})
		active.post(sessionEvent{kind: eventChannelOpened, channel: channel})
	})

	offer, err := peer.CreateOffer(active.ctx)
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeNegotiation, Err: err}
	}
	if !c.isCurrent(active) {
		return ErrSessionSuperseded
	}

	answer, err := c.signaler.Exchange(active.ctx, endpointURL, domain.Offer{SDP: offer, TargetLang: lang})
	if err != nil {
		return &ConnectError{Code: domain.ErrorCodeSignaling, Err: err}
	}
	if !c.isCurrent(active) {
		return ErrSessionSuperseded
	}

	if err := peer.SetRemoteAnswer(answer); err != nil {
		return &ConnectError{Code: domain.ErrorCodeNegotiation, Err: err}
	}

	if !c.isCurrent(active) {
		return ErrSessionSuperseded
	}
	close(live)
	return nil
}

// dispatch applies queued peer events in arrival order until teardown.
func (c *SessionController) dispatch(active *activeSession) {
	defer close(active.dispatchDone)

	for {
		select {
		case <-active.done:
			return
		case ev := <-active.inbox:
			c.apply(active, ev)
		}
	}
}

func (c *SessionController) apply(active *activeSession, ev sessionEvent) {
	switch ev.kind {
	case eventStateChanged:
		active.logger.Debug().Str("state", string(ev.state)).Msg("connection state changed")
		c.transition(active, func(current bool) bool {
			return nextConnectivity(current, ev.state)
		})
		if ev.state.Terminal() {
			c.release(active)
		}
	case eventChannelOpened:
		if !c.isCurrent(active) {
			return
		}
		channel := ev.channel
		if !active.attach(func() { active.channel = channel }) {
			return
		}
		active.logger.Debug().Str("label", channel.Label()).Msg("side channel opened")
	case eventMessage:
		if !c.isCurrent(active) {
			return
		}
		c.handleMessage(ev.payload)
	}
}

// transition updates the connectivity signal and emits it when it changes.
// A non-nil active restricts the update to the current session.
func (c *SessionController) transition(active *activeSession, next func(current bool) bool) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if active != nil && !c.isCurrentLocked(active) {
		c.mu.Unlock()
		return
	}
	previous := c.connected
	c.connected = next(previous)
	updated := c.connected
	c.mu.Unlock()

	if updated == previous {
		return
	}
	c.cfg.Metrics.SetConnected(updated)
	c.events.ConnectivityChanged(updated)
}

// release tears active down and, if it was still current, clears ownership
// and drops the connectivity signal. It reports whether active was current.
func (c *SessionController) release(active *activeSession) bool {
	c.mu.Lock()
	owned := c.isCurrentLocked(active)
	if owned {
		c.current = nil
		c.epoch++
	}
	c.mu.Unlock()

	c.stopSession(active)
	if owned {
		c.transition(nil, func(bool) bool { return false })
	}
	return owned
}

// stopSession releases every resource the session acquired. Each step is
// best-effort and never blocks the next one.
func (c *SessionController) stopSession(active *activeSession) {
	res, ok := active.close()
	if !ok {
		return
	}
	if res.track != nil {
		if err := res.track.Stop(); err != nil {
			active.logger.Debug().Err(err).Msg("track stop failed")
		}
	}
	if res.audio != nil {
		if err := res.audio.Stop(); err != nil {
			active.logger.Debug().Err(err).Msg("audio stop failed")
		}
	}
	if res.peer != nil {
		if err := res.peer.Close(); err != nil {
			active.logger.Debug().Err(err).Msg("peer close failed")
		}
	}
}

func (c *SessionController) isCurrent(active *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isCurrentLocked(active)
}

func (c *SessionController) isCurrentLocked(active *activeSession) bool {
	return c.current == active && active.epoch == c.epoch
}

// nextConnectivity maps a peer connection state onto the UI's boolean.
// States other than connected, disconnected, failed and closed keep the current value.
func nextConnectivity(current bool, state domain.ConnectionState) bool {
	switch state {
	case domain.ConnectionStateConnected:
		return true
	case domain.ConnectionStateDisconnected, domain.ConnectionStateFailed, domain.ConnectionStateClosed:
		return false
	default:
		return current
	}
}
