// Package metadata inspects local audio files so new catalog entries can be
// written with an accurate title and duration.
package metadata

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/dustin/go-humanize"
	"github.com/tcolgate/mp3"
	"gopkg.in/yaml.v3"
)

// Probe is what could be read from an audio file.
type Probe struct {
	Path            string
	Title           string
	Artist          string
	Album           string
	DurationSeconds int
	DurationKnown   bool
	FilesizeBytes   int64
}

// ProbeFile reads tags and, for mp3 files, the decoded duration of path.
// Missing or unreadable tags fall back to the file stem as title.
func ProbeFile(path string) (Probe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Probe{}, err
	}
	if info.IsDir() {
		return Probe{}, fmt.Errorf("%s is a directory", path)
	}

	title, artist, album := readTags(path)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	probe := Probe{
		Path:          path,
		Title:         title,
		Artist:        artist,
		Album:         album,
		FilesizeBytes: info.Size(),
	}

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dur, err := computeMP3Duration(path)
		if err == nil && dur > 0 {
			probe.DurationSeconds = int(math.Round(dur))
			probe.DurationKnown = true
		}
	}

	return probe, nil
}

func readTags(path string) (string, string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", ""
	}

	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist()), strings.TrimSpace(meta.Album())
}

func computeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}

// Entry is a catalog document entry, in the catalog's YAML field order.
type Entry struct {
	Number            int    `yaml:"number"`
	Title             string `yaml:"title"`
	Notes             string `yaml:"notes"`
	Audio             string `yaml:"audio"`
	Image             string `yaml:"image"`
	DurationInSeconds int    `yaml:"duration_in_seconds"`
	ReleasedAt        string `yaml:"released_at"`
}

// Entry builds a catalog entry from the probe. Notes are left for the author.
func (p Probe) Entry(number int, audioURL, imageURL string, releasedAt time.Time) Entry {
	return Entry{
		Number:            number,
		Title:             p.Title,
		Audio:             audioURL,
		Image:             imageURL,
		DurationInSeconds: p.DurationSeconds,
		ReleasedAt:        releasedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// MarshalEntries renders entries as a YAML sequence ready to paste under the
// catalog's episodes key.
func MarshalEntries(entries ...Entry) ([]byte, error) {
	return yaml.Marshal(entries)
}

// Comment describes the probed file as YAML comment lines, for the author to
// check before pasting the entry.
func (p Probe) Comment() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# file: %s (%s)\n", filepath.Base(p.Path), humanize.Bytes(uint64(p.FilesizeBytes)))
	if p.Artist != "" {
		fmt.Fprintf(&b, "# artist: %s\n", p.Artist)
	}
	if p.Album != "" {
		fmt.Fprintf(&b, "# album: %s\n", p.Album)
	}
	return b.String()
}
