package models

import (
	"fmt"
	"time"
)

// Episode is one podcast installment as listed in the catalog. It is also the
// payload of the play-episode signal, so its JSON shape is part of the client
// contract.
type Episode struct {
	Number            int       `json:"number"`
	Title             string    `json:"title"`
	Notes             string    `json:"notes"`
	Audio             string    `json:"audio"`
	Image             string    `json:"image"`
	DurationInSeconds int       `json:"duration_in_seconds"`
	ReleasedAt        time.Time `json:"released_at"`
}

// Path returns the detail page route for the episode.
func (e Episode) Path() string {
	return fmt.Sprintf("/episodes/%d", e.Number)
}
