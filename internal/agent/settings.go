package agent

import (
	"context"
	"strconv"

	"github.com/BGMLAI/exoskull/internal/apperr"
	"github.com/BGMLAI/exoskull/internal/mouse"
	"github.com/BGMLAI/exoskull/internal/speech"
	"github.com/BGMLAI/exoskull/internal/store"
)

// AppSettings is the full settings view shown by the UI.
type AppSettings struct {
	AutoStart   bool           `json:"auto_start"`
	Theme       string         `json:"theme"`
	TTSProvider string         `json:"tts_provider"`
	Recall      RecallSettings `json:"recall"`
	Mouse       mouse.Buttons  `json:"mouse"`
}

// SettingsUpdate carries the optional fields of update_settings.
type SettingsUpdate struct {
	AutoStart   *bool   `json:"auto_start,omitempty"`
	Theme       *string `json:"theme,omitempty"`
	TTSProvider *string `json:"tts_provider,omitempty"`
}

func (a *Agent) Settings(ctx context.Context) (AppSettings, error) {
	rs, err := a.RecallSettings(ctx)
	if err != nil {
		return AppSettings{}, err
	}
	return AppSettings{
		AutoStart:   a.store.SettingBool(ctx, store.KeyAutoStart, false),
		Theme:       a.store.SettingString(ctx, store.KeyTheme, "dark"),
		TTSProvider: a.store.SettingString(ctx, store.KeyTTSProvider, speech.ProviderSystem),
		Recall:      rs,
		Mouse:       a.loadButtons(ctx),
	}, nil
}

func (a *Agent) UpdateSettings(ctx context.Context, u SettingsUpdate) error {
	values := map[string]string{}
	if u.AutoStart != nil {
		values[store.KeyAutoStart] = strconv.FormatBool(*u.AutoStart)
	}
	if u.Theme != nil {
		values[store.KeyTheme] = *u.Theme
	}
	if u.TTSProvider != nil {
		switch *u.TTSProvider {
		case speech.ProviderSystem, speech.ProviderCloud:
			values[store.KeyTTSProvider] = *u.TTSProvider
		default:
			return apperr.Config("unknown tts provider %q", *u.TTSProvider)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return a.store.SetSettings(ctx, values)
}

// loadButtons reads the mouse mapping, falling back to the defaults for
// missing or malformed values.
func (a *Agent) loadButtons(ctx context.Context) mouse.Buttons {
	d := mouse.DefaultButtons
	return mouse.Buttons{
		Dictation: a.store.SettingInt(ctx, store.KeyMouseDictation, d.Dictation),
		TTS:       a.store.SettingInt(ctx, store.KeyMouseTTS, d.TTS),
		Chat:      a.store.SettingInt(ctx, store.KeyMouseChat, d.Chat),
	}
}

func (a *Agent) MouseConfig(ctx context.Context) mouse.Buttons {
	return a.loadButtons(ctx)
}

// UpdateMouseConfig persists the mapping and applies it to the live hook.
func (a *Agent) UpdateMouseConfig(ctx context.Context, b mouse.Buttons) error {
	if b.Dictation <= 0 || b.TTS <= 0 || b.Chat <= 0 {
		return apperr.Config("button codes must be positive")
	}
	if b.Dictation == b.TTS || b.Dictation == b.Chat || b.TTS == b.Chat {
		return apperr.Config("each action needs its own button")
	}
	err := a.store.SetSettings(ctx, map[string]string{
		store.KeyMouseDictation: strconv.Itoa(b.Dictation),
		store.KeyMouseTTS:       strconv.Itoa(b.TTS),
		store.KeyMouseChat:      strconv.Itoa(b.Chat),
	})
	if err != nil {
		return err
	}
	a.mouse.Configure(b)
	return nil
}
