package bootstrap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"earinterp/internal/audio"
	"earinterp/internal/config"
	"earinterp/internal/logging"
	"earinterp/internal/metrics"
	"earinterp/internal/ports"
	"earinterp/internal/rtc"
	"earinterp/internal/signaling"
	"earinterp/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	m := metrics.New(prometheus.NewRegistry())

	frame := time.Duration(cfg.Audio.FrameMillis) * time.Millisecond
	capture, err := audio.NewCapture(cfg.Audio.Backend, cfg.Audio.RecorderCommand, frame)
	if err != nil {
		return Services{}, err
	}

	peers, err := rtc.NewFactory(rtc.Config{ICEServers: cfg.RTC.ICEServers, Logger: logger})
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewSessionController(
		capture,
		peers,
		signaling.NewHTTPSignaler(nil),
		eventSink,
		usecase.Config{
			Audio: ports.AudioConfig{
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			FrameBytes:    audio.FrameBytes(frame),
			FrameDuration: frame,
			Logger:        logger,
			Metrics:       m,
		},
	)

	logger.Info().
		Str("offer_url", cfg.Server.OfferURL).
		Str("audio_backend", cfg.Audio.Backend).
		Int("frame_ms", cfg.Audio.FrameMillis).
		Msg("services ready")

	return Services{Controller: controller, Config: cfg, Logger: logger, Metrics: m}, nil
}
