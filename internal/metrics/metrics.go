package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"earinterp/internal/domain"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	ConnectAttempts prometheus.Counter
	ConnectFailures *prometheus.CounterVec
	Connected       prometheus.Gauge

	CaptionsReceived prometheus.Counter
	MessagesDropped  prometheus.Counter
	MessagesIgnored  prometheus.Counter

	AudioFramesSent prometheus.Counter
}

// New registers all collectors on registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ear_connect_attempts_total",
			Help: "Total number of session connect attempts",
		}),
		ConnectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ear_connect_failures_total",
			Help: "Total number of failed session connects by error code",
		}, []string{"code"}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ear_connected",
			Help: "1 while the peer connection reports connected",
		}),
		CaptionsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ear_captions_received_total",
			Help: "Total number of caption messages appended to the log",
		}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ear_channel_messages_dropped_total",
			Help: "Total number of side-channel messages that failed to parse",
		}),
		MessagesIgnored: factory.NewCounter(prometheus.CounterOpts{
			Name: "ear_channel_messages_ignored_total",
			Help: "Total number of side-channel messages with an unknown type",
		}),
		AudioFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ear_audio_frames_sent_total",
			Help: "Total number of microphone frames written to the outbound track",
		}),
	}
}

func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.ConnectAttempts.Inc()
}

func (m *Metrics) ConnectFailed(code domain.ErrorCode) {
	if m == nil {
		return
	}
	m.ConnectFailures.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
		return
	}
	m.Connected.Set(0)
}

func (m *Metrics) CaptionReceived() {
	if m == nil {
		return
	}
	m.CaptionsReceived.Inc()
}

func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.MessagesDropped.Inc()
}

func (m *Metrics) MessageIgnored() {
	if m == nil {
		return
	}
	m.MessagesIgnored.Inc()
}

func (m *Metrics) AudioFrameSent() {
	if m == nil {
		return
	}
	m.AudioFramesSent.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
