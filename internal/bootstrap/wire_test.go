package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"earinterp/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	t.Setenv("EAR_ENV_FILE", "")
	t.Setenv("EAR_AUDIO_BACKEND", "ffmpeg")
	t.Setenv("EAR_TARGET_LANG", "pl")
	t.Setenv("EAR_LOG_LEVEL", "error")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Metrics == nil {
		t.Fatalf("expected controller and metrics")
	}
	if services.Config.Server.TargetLanguage != domain.TargetLanguagePolish {
		t.Fatalf("unexpected target language: %q", services.Config.Server.TargetLanguage)
	}
	if services.Controller.Status().Connected {
		t.Fatalf("new controller must start disconnected")
	}
}

func TestBuildFailsOnUnknownBackend(t *testing.T) {
	t.Setenv("EAR_ENV_FILE", "")
	t.Setenv("EAR_AUDIO_BACKEND", "alsa-direct")

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected build error for unknown backend")
	}
}

func TestBuildFailsOnMissingEnvFile(t *testing.T) {
	t.Setenv("EAR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected build error for missing env file")
	}
}

func TestBuildReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ear.env")
	if err := os.WriteFile(path, []byte("EAR_TARGET_LANG=nb\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("EAR_ENV_FILE", path)
	t.Setenv("EAR_AUDIO_BACKEND", "")
	t.Setenv("EAR_TARGET_LANG", "")
	os.Unsetenv("EAR_TARGET_LANG")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Config.Server.TargetLanguage != domain.TargetLanguageNorwegian {
		t.Fatalf("env file was not applied: %q", services.Config.Server.TargetLanguage)
	}
}

type noopEventSink struct{}

func (noopEventSink) ConnectivityChanged(_ bool)                      {}
func (noopEventSink) SessionMetadataChanged(_ domain.SessionMetadata) {}
func (noopEventSink) CaptionsChanged(_ []domain.Caption)              {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)       {}
