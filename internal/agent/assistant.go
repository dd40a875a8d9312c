package agent

import (
	"context"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/events"
	"github.com/BGMLAI/exoskull/internal/mouse"
	"github.com/BGMLAI/exoskull/internal/speech"
	"github.com/BGMLAI/exoskull/internal/store"
)

func (a *Agent) dictationState() mouse.Recorder {
	if a.dictation == nil {
		return nil
	}
	return a.dictation
}

func (a *Agent) StartDictation() error {
	if a.dictation == nil {
		return apperr.Device("no audio input available", nil)
	}
	return a.dictation.Start()
}

// StopDictation ends the recording and returns its transcription.
func (a *Agent) StopDictation(ctx context.Context) (string, error) {
	if a.dictation == nil {
		return "", apperr.Device("no audio input available", nil)
	}
	wav, err := a.dictation.Stop()
	if err != nil {
		return "", err
	}
	return a.remote.Transcribe(ctx, wav)
}

func (a *Agent) DictationRecording() bool {
	return a.dictation != nil && a.dictation.IsRecording()
}

// Speak reads text with the provider from settings.
func (a *Agent) Speak(ctx context.Context, text string) error {
	if a.speech == nil {
		return apperr.Device("speech is not available", nil)
	}
	provider := a.store.SettingString(ctx, store.KeyTTSProvider, speech.ProviderSystem)
	return a.speech.Speak(ctx, provider, text)
}

func (a *Agent) StopSpeaking() {
	if a.speech != nil {
		a.speech.Stop()
	}
}

func (a *Agent) Speaking() bool {
	return a.speech != nil && a.speech.IsSpeaking()
}

// handleMouseAction drives dictation from the mouse button. TTS and chat
// are handled by the UI on the emitted event.
func (a *Agent) handleMouseAction(ctx context.Context, action string) {
	switch action {
	case events.ActionDictationStart:
		if err := a.StartDictation(); err != nil {
			a.logger.Warn("dictation start failed: %v", err)
			a.emitter.Emit(events.Transcript, events.TranscriptPayload{Error: err.Error()})
		}
	case events.ActionDictationStop:
		go func() {
			defer a.crash.Guard("dictation")
			text, err := a.StopDictation(context.WithoutCancel(ctx))
			if err != nil {
				a.logger.Warn("dictation failed: %v", err)
				a.emitter.Emit(events.Transcript, events.TranscriptPayload{Error: err.Error()})
				return
			}
			a.emitter.Emit(events.Transcript, events.TranscriptPayload{Text: text})
		}()
	}
}
