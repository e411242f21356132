// Package rtc adapts pion/webrtc to the session ports.
//
// Outbound audio is sent as PCMU so the answerer never has to transcode,
// and only PCMU is registered with the media engine so the offer cannot
// negotiate anything the microphone track cannot produce. Signaling is
// vanilla ICE: CreateOffer blocks until candidate gathering completes and
// returns an SDP that already carries every local candidate.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"earinterp/internal/audio"
	"earinterp/internal/domain"
	"earinterp/internal/ports"
)

// LocalChannelLabel names the data channel created by the client. It only
// exists so the offer carries an SCTP section the server can open its own
// channel on.
const LocalChannelLabel = "client"

// Config controls peer connection construction.
type Config struct {
	ICEServers []string
	Logger     zerolog.Logger
}

// Factory builds pion peer connections sharing one API instance.
type Factory struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	logger     zerolog.Logger
}

func NewFactory(cfg Config) (*Factory, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: pcmuCapability,
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMU codec: %w", err)
	}

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	return &Factory{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(media)),
		iceServers: servers,
		logger:     cfg.Logger.With().Str("component", "rtc").Logger(),
	}, nil
}

func (f *Factory) NewPeerConnection(ctx context.Context) (ports.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	if _, err := pc.CreateDataChannel(LocalChannelLabel, nil); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	peer := &Peer{pc: pc, logger: f.logger}
	pc.OnTrack(peer.drainRemoteTrack)
	return peer, nil
}

// Peer wraps a pion peer connection.
type Peer struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mu     sync.Mutex
	tracks []*Track
}

// AddAudioTrack attaches a sendrecv PCMU track so the answer can return audio on the same transceiver.
func (p *Peer) AddAudioTrack() (ports.AudioTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(pcmuCapability, "audio", "earinterp-mic")
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	sender, err := p.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("failed to add audio track: %w", err)
	}
	go drainRTCP(sender)

	track := newTrack(local, sender)
	p.mu.Lock()
	p.tracks = append(p.tracks, track)
	p.mu.Unlock()
	return track, nil
}

func (p *Peer) OnConnectionStateChange(handler func(state domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		mapped, ok := mapConnectionState(state)
		if !ok {
			return
		}
		handler(mapped)
	})
}

// OnDataChannel reports channels opened by the remote endpoint.
func (p *Peer) OnDataChannel(handler func(channel ports.DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		handler(&dataChannel{dc: dc})
	})
}

func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return local.SDP, nil
}

func (p *Peer) SetRemoteAnswer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// Close stops every outbound track before closing the connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	tracks := p.tracks
	p.tracks = nil
	p.mu.Unlock()

	for _, track := range tracks {
		_ = track.Stop()
	}
	return p.pc.Close()
}

// drainRemoteTrack reads the server's audio so its jitter buffers never back up.
// Playback routing is left to the platform.
func (p *Peer) drainRemoteTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	p.logger.Debug().
		Str("kind", remote.Kind().String()).
		Str("codec", remote.Codec().MimeType).
		Msg("remote track started")

	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func mapConnectionState(state webrtc.PeerConnectionState) (domain.ConnectionState, bool) {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnectionStateNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectionStateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectionStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectionStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectionStateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectionStateClosed, true
	default:
		return "", false
	}
}

var pcmuCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypePCMU,
	ClockRate: audio.SampleRate,
	Channels:  audio.Channels,
}

type dataChannel struct {
	dc *webrtc.DataChannel
}

func (c *dataChannel) Label() string { return c.dc.Label() }

func (c *dataChannel) OnMessage(handler func(payload []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		handler(msg.Data)
	})
}

func (c *dataChannel) Close() error { return c.dc.Close() }
