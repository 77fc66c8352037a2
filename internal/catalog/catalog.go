package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"podcast-player/internal/models"
)

// ReleasedAtLayout is the timestamp format used by the catalog document.
const ReleasedAtLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned by Find when no episode carries the requested number.
var ErrNotFound = errors.New("episode not found")

//go:embed episodes.yaml
var embedded []byte

// Catalog is the fixed, ordered set of episodes served by the application.
// It is never mutated after Load returns, so it is safe for concurrent use.
type Catalog struct {
	episodes []models.Episode
	index    map[int]int
}

type catalogYAML struct {
	Episodes []episodeYAML `yaml:"episodes"`
}

type episodeYAML struct {
	Number            int    `yaml:"number"`
	Title             string `yaml:"title"`
	Notes             string `yaml:"notes"`
	Audio             string `yaml:"audio"`
	Image             string `yaml:"image"`
	DurationInSeconds int    `yaml:"duration_in_seconds"`
	ReleasedAt        string `yaml:"released_at"`
}

// Default returns the catalog compiled into the binary. The embedded document
// is build-time data, so a malformed one panics.
func Default() *Catalog {
	c, err := Load(embedded)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded episodes are invalid: %v", err))
	}
	return c
}

// Load decodes and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc catalogYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		episodes: make([]models.Episode, 0, len(doc.Episodes)),
		index:    make(map[int]int, len(doc.Episodes)),
	}

	for i, raw := range doc.Episodes {
		episode, err := raw.episode()
		if err != nil {
			return nil, fmt.Errorf("episode %d (entry %d): %w", raw.Number, i+1, err)
		}
		if _, exists := c.index[episode.Number]; exists {
			return nil, fmt.Errorf("episode %d (entry %d): duplicate number", episode.Number, i+1)
		}
		c.index[episode.Number] = len(c.episodes)
		c.episodes = append(c.episodes, episode)
	}

	return c, nil
}

func (e episodeYAML) episode() (models.Episode, error) {
	if e.Number <= 0 {
		return models.Episode{}, errors.New("number must be positive")
	}
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return models.Episode{}, errors.New("title is required")
	}
	if err := validateAbsoluteURL(e.Audio); err != nil {
		return models.Episode{}, fmt.Errorf("audio: %w", err)
	}
	if err := validateAbsoluteURL(e.Image); err != nil {
		return models.Episode{}, fmt.Errorf("image: %w", err)
	}
	if e.DurationInSeconds < 0 {
		return models.Episode{}, errors.New("duration_in_seconds must not be negative")
	}
	released, err := time.ParseInLocation(ReleasedAtLayout, strings.TrimSpace(e.ReleasedAt), time.UTC)
	if err != nil {
		return models.Episode{}, fmt.Errorf("released_at: %w", err)
	}

	return models.Episode{
		Number:            e.Number,
		Title:             title,
		Notes:             e.Notes,
		Audio:             e.Audio,
		Image:             e.Image,
		DurationInSeconds: e.DurationInSeconds,
		ReleasedAt:        released,
	}, nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// List returns every episode in declared order. The slice is a copy.
func (c *Catalog) List() []models.Episode {
	result := make([]models.Episode, len(c.episodes))
	copy(result, c.episodes)
	return result
}

// Find returns the episode with the given number or an error wrapping ErrNotFound.
func (c *Catalog) Find(number int) (models.Episode, error) {
	i, ok := c.index[number]
	if !ok {
		return models.Episode{}, fmt.Errorf("episode %d: %w", number, ErrNotFound)
	}
	return c.episodes[i], nil
}

// Len reports the number of episodes.
func (c *Catalog) Len() int {
	return len(c.episodes)
}

// Latest returns the most recent release time, or the zero time for an empty catalog.
func (c *Catalog) Latest() time.Time {
	var latest time.Time
	for _, ep := range c.episodes {
		if ep.ReleasedAt.After(latest) {
			latest = ep.ReleasedAt
		}
	}
	return latest
}
