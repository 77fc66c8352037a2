// Package events defines the play-episode signal shared by the pages and the
// player script.
package events

import (
	"encoding/json"
	"fmt"

	"podcast-player/internal/models"
)

// Name identifies a signal topic.
type Name string

// PlayEpisode is dispatched on window when a play control is activated. Its
// payload is the full Episode record.
const PlayEpisode Name = "play-episode"

// Payload encodes the episode exactly as it travels with the signal.
func Payload(episode models.Episode) (string, error) {
	data, err := json.Marshal(episode)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", PlayEpisode, err)
	}
	return string(data), nil
}

// Decode parses a signal payload back into an episode.
func Decode(payload string) (models.Episode, error) {
	var episode models.Episode
	if err := json.Unmarshal([]byte(payload), &episode); err != nil {
		return models.Episode{}, fmt.Errorf("decode %s payload: %w", PlayEpisode, err)
	}
	return episode, nil
}
