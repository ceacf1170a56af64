// Package tts wraps the platform text-to-speech capability. The engine
// itself is an external collaborator; this package owns voice selection and
// the speak/stop contract the reader consumes.
package tts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"riverreader/pkg/domain"
)

// ErrEmptyText is reported when Speak is called with nothing to read.
var ErrEmptyText = errors.New("tts: empty text")

// Speed presets matching the reader settings.
var SpeedPresets = map[string]float64{
	"slow":     0.75,
	"normal":   1.0,
	"fast":     1.25,
	"veryFast": 1.5,
}

// Pitch presets.
var PitchPresets = map[string]float64{
	"low":    0.8,
	"normal": 1.0,
	"high":   1.2,
}

// Options configures one utterance. Completion is reported through the
// callbacks, not the Speak return value.
type Options struct {
	Language string
	Pitch    float64
	Rate     float64
	Voice    string

	OnStart   func()
	OnDone    func()
	OnStopped func()
	OnError   func(error)
}

// Engine is the platform speech backend.
type Engine interface {
	Voices(ctx context.Context) ([]domain.Voice, error)
	Speak(ctx context.Context, text string, opts Options) error
	Stop()
	IsSpeaking() bool
}

// Speaker selects voices and forwards utterances to the engine.
type Speaker struct {
	engine Engine
}

// NewSpeaker wraps an engine.
func NewSpeaker(engine Engine) *Speaker {
	return &Speaker{engine: engine}
}

// VoicesForLanguage returns engine voices whose language matches the code
// (prefix match, so "en" covers "en-US" and "en-GB").
func (s *Speaker) VoicesForLanguage(ctx context.Context, languageCode string) ([]domain.Voice, error) {
	voices, err := s.engine.Voices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	matched := make([]domain.Voice, 0, len(voices))
	for _, voice := range voices {
		if strings.HasPrefix(voice.Language, languageCode) {
			matched = append(matched, voice)
		}
	}
	return matched, nil
}

// BestVoiceForLanguage picks the highest-quality voice for the language:
// Enhanced over Default over anything else. ok=false when no voice matches.
func (s *Speaker) BestVoiceForLanguage(ctx context.Context, languageCode string) (domain.Voice, bool, error) {
	voices, err := s.VoicesForLanguage(ctx, languageCode)
	if err != nil {
		return domain.Voice{}, false, err
	}
	if len(voices) == 0 {
		return domain.Voice{}, false, nil
	}
	sort.SliceStable(voices, func(i, j int) bool {
		return qualityRank(voices[i].Quality) < qualityRank(voices[j].Quality)
	})
	return voices[0], true, nil
}

func qualityRank(quality string) int {
	switch quality {
	case "Enhanced":
		return 0
	case "Default", "":
		return 1
	default:
		return 2
	}
}

// IsLanguageSupported reports whether any voice exists for the language.
func (s *Speaker) IsLanguageSupported(ctx context.Context, languageCode string) (bool, error) {
	voices, err := s.VoicesForLanguage(ctx, languageCode)
	if err != nil {
		return false, err
	}
	return len(voices) > 0, nil
}

// Speak reads the text aloud. When no voice is set, the best voice for the
// language is selected; if none matches, the engine's default voice is used
// silently. Empty text is rejected through OnError without reaching the
// engine.
func (s *Speaker) Speak(ctx context.Context, text string, opts Options) error {
	if strings.TrimSpace(text) == "" {
		if opts.OnError != nil {
			opts.OnError(ErrEmptyText)
		}
		return ErrEmptyText
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Pitch == 0 {
		opts.Pitch = PitchPresets["normal"]
	}
	if opts.Rate == 0 {
		opts.Rate = SpeedPresets["normal"]
	}
	if opts.Voice == "" {
		// Selection failures fall through to the engine default voice.
		if voice, ok, err := s.BestVoiceForLanguage(ctx, opts.Language); err == nil && ok {
			opts.Voice = voice.Identifier
		}
	}
	if err := s.engine.Speak(ctx, text, opts); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Stop interrupts the current utterance.
func (s *Speaker) Stop() {
	s.engine.Stop()
}

// IsSpeaking reports whether an utterance is in progress.
func (s *Speaker) IsSpeaking() bool {
	return s.engine.IsSpeaking()
}
