// Package settings persists reader preferences. Only preference names are
// stored; rendering (palettes, string tables) belongs to the UI layer.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"riverreader/pkg/kv"
)

const settingsKey = "settings"

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeSepia Theme = "sepia"
)

type FontSize string

const (
	FontSmall  FontSize = "small"
	FontMedium FontSize = "medium"
	FontLarge  FontSize = "large"
	FontXLarge FontSize = "xlarge"
)

type ReadingMode string

const (
	ModePage   ReadingMode = "page"
	ModeScroll ReadingMode = "scroll"
)

// FontSizePixels maps a font size name to its pixel value.
var FontSizePixels = map[FontSize]int{
	FontSmall:  14,
	FontMedium: 18,
	FontLarge:  24,
	FontXLarge: 32,
}

// State is the full persisted preference set.
type State struct {
	Theme                  Theme       `json:"theme"`
	FontSize               FontSize    `json:"fontSize"`
	ReadingMode            ReadingMode `json:"readingMode"`
	Language               string      `json:"language"`
	AutoPlayTTS            bool        `json:"autoPlayTTS"`
	TTSVoiceID             string      `json:"ttsVoiceId,omitempty"` // empty = auto select best voice
	TTSSpeed               string      `json:"ttsSpeed"`
	HasCompletedOnboarding bool        `json:"hasCompletedOnboarding"`
}

func defaults() State {
	return State{
		Theme:       ThemeLight,
		FontSize:    FontMedium,
		ReadingMode: ModePage,
		Language:    "en",
		TTSSpeed:    "normal",
	}
}

// Store holds the preferences, persisted through the key/value backend.
type Store struct {
	store kv.Store

	mu    sync.Mutex
	state State
}

// NewStore loads persisted settings, falling back to defaults.
func NewStore(ctx context.Context, store kv.Store) (*Store, error) {
	s := &Store{store: store, state: defaults()}

	raw, ok, err := store.Get(ctx, settingsKey)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &s.state); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return s, nil
}

// Get returns the current preference set.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies a mutation to the preference set and persists the result.
func (s *Store) Update(ctx context.Context, mutate func(*State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	mutate(&next)

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Set(ctx, settingsKey, raw); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	s.state = next
	return nil
}

// Reset restores defaults.
func (s *Store) Reset(ctx context.Context) error {
	return s.Update(ctx, func(state *State) {
		*state = defaults()
	})
}

// CompleteOnboarding marks first-run onboarding as finished.
func (s *Store) CompleteOnboarding(ctx context.Context) error {
	return s.Update(ctx, func(state *State) {
		state.HasCompletedOnboarding = true
	})
}
