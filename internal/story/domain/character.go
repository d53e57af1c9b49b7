package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCharacterID indicates a missing character ID.
	ErrEmptyCharacterID = errors.New("character id is required")
	// ErrEmptyCharacterName indicates a missing character name.
	ErrEmptyCharacterName = errors.New("character name is required")
	// ErrDuplicateCharacterID indicates two characters share an ID.
	ErrDuplicateCharacterID = errors.New("character ids must be unique")
)

// CharacterProfile is the persona profile handed to the generation
// collaborator and used by the quality monitor for drift scoring.
type CharacterProfile struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Role   string   `json:"role"`
	Traits []string `json:"traits"`
	Wants  string   `json:"wants"`
	// Limits are content boundaries the generator must respect.
	Limits []string `json:"limits"`
}

// NormalizeCharacters validates and canonicalizes an ensemble.
func NormalizeCharacters(characters []CharacterProfile) ([]CharacterProfile, error) {
	if len(characters) == 0 {
		return nil, fmt.Errorf("%w: empty ensemble", ErrEmptyCharacterID)
	}
	seen := make(map[string]struct{}, len(characters))
	normalized := make([]CharacterProfile, len(characters))
	for i, character := range characters {
		character.ID = strings.TrimSpace(character.ID)
		if character.ID == "" {
			return nil, ErrEmptyCharacterID
		}
		if _, dup := seen[character.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCharacterID, character.ID)
		}
		seen[character.ID] = struct{}{}
		character.Name = strings.TrimSpace(character.Name)
		if character.Name == "" {
			return nil, fmt.Errorf("character %q: %w", character.ID, ErrEmptyCharacterName)
		}
		normalized[i] = character
	}
	return normalized, nil
}

// DefaultEnsemble returns the standard three-character dynamic: a guarded
// protagonist, a warm counterpart, and a pressure engine with believable
// motives.
func DefaultEnsemble() []CharacterProfile {
	return []CharacterProfile{
		{
			ID:     "a1",
			Name:   "Ari",
			Role:   "competent, guarded protagonist",
			Traits: []string{"controlled", "reliable", "observant", "protective", "secretly soft"},
			Wants:  "to stay in control and not be vulnerable, while craving real intimacy",
			Limits: []string{"no sexual violence", "no non-consent"},
		},
		{
			ID:     "a2",
			Name:   "Blake",
			Role:   "warm, perceptive counterpart",
			Traits: []string{"gentle", "honest", "empathetic", "playful", "persistent"},
			Wants:  "to be chosen openly, not kept as a secret",
			Limits: []string{"no sexual violence", "no non-consent"},
		},
		{
			ID:     "a3",
			Name:   "Casey",
			Role:   "pressure engine with believable motives",
			Traits: []string{"savvy", "competitive", "sharp", "noticing", "well-meaning"},
			Wants:  "to protect their own place and status, even when it complicates others",
			Limits: []string{"no sexual violence", "no non-consent"},
		},
	}
}
