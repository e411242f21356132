package ports

import (
	"context"
	"io"
	"time"

	"earinterp/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
// Sample rate and channel count are fixed by the outbound codec.
type AudioConfig struct {
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioTrack is the outbound media track attached to a peer connection.
type AudioTrack interface {
	WriteSample(pcm []byte, duration time.Duration) error
	Stop() error
}

// DataChannel is a side channel opened by the remote endpoint.
type DataChannel interface {
	Label() string
	OnMessage(handler func(payload []byte))
	Close() error
}

// PeerConnection is a single WebRTC peer connection.
type PeerConnection interface {
	AddAudioTrack() (AudioTrack, error)
	OnConnectionStateChange(handler func(state domain.ConnectionState))
	OnDataChannel(handler func(channel DataChannel))
	// CreateOffer creates an offer that receives audio, applies it as the
	// local description and returns the SDP once candidate gathering is done.
	CreateOffer(ctx context.Context) (string, error)
	SetRemoteAnswer(sdp string) error
	Close() error
}

// PeerFactory creates peer connections.
type PeerFactory interface {
	NewPeerConnection(ctx context.Context) (PeerConnection, error)
}

// Signaler performs the offer/answer exchange with the translation server.
type Signaler interface {
	Exchange(ctx context.Context, endpointURL string, offer domain.Offer) (answerSDP string, err error)
}

// EventSink emits session state to the UI.
type EventSink interface {
	ConnectivityChanged(connected bool)
	SessionMetadataChanged(meta domain.SessionMetadata)
	CaptionsChanged(captions []domain.Caption)
	SessionError(code domain.ErrorCode, detail string)
}
