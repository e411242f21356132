package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"earinterp/internal/domain"
)

const (
	AudioBackendFFMPEG    = "ffmpeg"
	AudioBackendPortAudio = "portaudio"
)

// Config stores runtime configuration for the interpreter client.
type Config struct {
	Server  ServerConfig
	Audio   AudioConfig
	RTC     RTCConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	OfferURL       string
	TargetLanguage domain.TargetLanguage
}

type AudioConfig struct {
	Backend         string
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	FrameMillis     int
}

type RTCConfig struct {
	ICEServers []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Addr string
}

// Load resolves configuration from an optional .env file, environment variables and defaults.
func Load() (Config, error) {
	if err := loadEnvFile(strings.TrimSpace(os.Getenv("EAR_ENV_FILE"))); err != nil {
		return Config{}, err
	}

	target, err := domain.ParseTargetLanguage(os.Getenv("EAR_TARGET_LANG"))
	if err != nil {
		return Config{}, fmt.Errorf("EAR_TARGET_LANG: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{
			OfferURL:       envOrDefault("EAR_SERVER_URL", "http://localhost:8765/offer"),
			TargetLanguage: target,
		},
		Audio: AudioConfig{
			Backend:         strings.ToLower(envOrDefault("EAR_AUDIO_BACKEND", AudioBackendFFMPEG)),
			RecorderCommand: envOrDefault("EAR_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("EAR_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("EAR_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			FrameMillis: envOrDefaultInt("EAR_AUDIO_FRAME_MS", 20),
		},
		RTC: RTCConfig{
			ICEServers: splitList(os.Getenv("EAR_ICE_SERVERS")),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(envOrDefault("EAR_LOG_LEVEL", "info")),
			Format: strings.ToLower(envOrDefault("EAR_LOG_FORMAT", "console")),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(os.Getenv("EAR_METRICS_ADDR")),
		},
	}

	switch cfg.Audio.Backend {
	case AudioBackendFFMPEG, AudioBackendPortAudio:
	default:
		return Config{}, fmt.Errorf("EAR_AUDIO_BACKEND: unknown backend %q", cfg.Audio.Backend)
	}
	if cfg.Audio.FrameMillis < 10 || cfg.Audio.FrameMillis > 60 {
		cfg.Audio.FrameMillis = 20
	}

	return cfg, nil
}

// loadEnvFile applies path, or ./.env when path is empty. Existing variables win.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
