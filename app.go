package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"earinterp/internal/bootstrap"
	"earinterp/internal/config"
	"earinterp/internal/domain"
	"earinterp/internal/metrics"
	"earinterp/internal/usecase"
)

const (
	eventConnectivity = "ear:connectivity"
	eventLogPath      = "ear:logpath"
	eventCaptions     = "ear:captions"
	eventError        = "ear:error"

	connectFailedMessage = "Failed to connect"
)

type emitFunc func(ctx context.Context, name string, data ...interface{})

type alertFunc func(ctx context.Context, message string)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	bootErr    error

	stopMetrics context.CancelFunc

	emit  emitFunc
	alert alertFunc
}

func NewApp() *App {
	return &App{
		logger: zerolog.Nop(),
		emit:   runtime.EventsEmit,
		alert:  showErrorDialog,
	}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.logger = services.Logger
	a.metrics = services.Metrics

	if addr := a.cfg.Metrics.Addr; addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		a.stopMetrics = cancel
		go func() {
			if err := a.metrics.Serve(metricsCtx, addr); err != nil {
				a.logger.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
			}
		}()
		a.logger.Info().Str("addr", addr).Msg("serving metrics")
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Disconnect()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
}

// Connect starts a translation session. Empty arguments fall back to the
// configured endpoint and target language.
func (a *App) Connect(endpointURL string, targetLang string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if endpointURL == "" {
		endpointURL = a.cfg.Server.OfferURL
	}
	target := domain.TargetLanguage(targetLang)
	if target == "" {
		target = a.cfg.Server.TargetLanguage
	}

	if err := a.controller.Connect(a.ctx, endpointURL, target); err != nil {
		if errors.Is(err, usecase.ErrSessionSuperseded) {
			return a.controller.Status(), nil
		}
		a.connectFailed(err)
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// Disconnect ends the current session, if any.
func (a *App) Disconnect() domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	a.controller.Disconnect()
	return a.controller.Status()
}

// Toggle connects when disconnected and disconnects otherwise.
func (a *App) Toggle(endpointURL string, targetLang string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if a.controller.Status().Connected {
		return a.Disconnect(), nil
	}
	return a.Connect(endpointURL, targetLang)
}

// GetStatus returns the connectivity signal and log path.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{Message: a.bootErr.Error()}
		}
		return domain.Status{}
	}
	return a.controller.Status()
}

// GetCaptions returns the caption log, newest first.
func (a *App) GetCaptions() []domain.Caption {
	if a.controller == nil {
		return []domain.Caption{}
	}
	return a.controller.Captions()
}

func (a *App) GetDiagnostics() domain.Diagnostics {
	if a.controller == nil {
		return domain.Diagnostics{}
	}
	return a.controller.Diagnostics()
}

// GetLanguages lists the selectable target languages.
func (a *App) GetLanguages() []string {
	out := make([]string, 0, len(domain.TargetLanguages))
	for _, lang := range domain.TargetLanguages {
		out = append(out, string(lang))
	}
	return out
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"offerUrl":         a.cfg.Server.OfferURL,
		"targetLanguage":   string(a.cfg.Server.TargetLanguage),
		"audioBackend":     a.cfg.Audio.Backend,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"metricsAddr":      a.cfg.Metrics.Addr,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// connectFailed raises the single alert for a failed Connect.
func (a *App) connectFailed(err error) {
	message := connectFailedMessage
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	if a.ctx == nil || a.alert == nil {
		return
	}
	a.alert(a.ctx, message)
}

// ConnectivityChanged emits the connectivity signal to the frontend.
func (a *App) ConnectivityChanged(connected bool) {
	a.publish(eventConnectivity, map[string]bool{"connected": connected})
}

// SessionMetadataChanged emits the server log path.
func (a *App) SessionMetadataChanged(meta domain.SessionMetadata) {
	a.publish(eventLogPath, map[string]string{"logPath": meta.LogPath})
}

// CaptionsChanged emits the full caption log, newest first.
func (a *App) CaptionsChanged(captions []domain.Caption) {
	a.publish(eventCaptions, captions)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.publish(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) publish(name string, payload interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, payload)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeLanguage:
		return "Unsupported target language"
	case domain.ErrorCodeMedia:
		return "Microphone unavailable"
	case domain.ErrorCodeSignaling:
		return "Signaling failed"
	case domain.ErrorCodeNegotiation:
		return "Connection negotiation failed"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func showErrorDialog(ctx context.Context, message string) {
	_, _ = runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
		Type:    runtime.ErrorDialog,
		Title:   "Error",
		Message: message,
	})
}
