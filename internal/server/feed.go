package server

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	pathpkg "path"
	"strings"
	"time"

	"podcast-player/internal/format"
	"podcast-player/internal/models"
)

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	base := requestBaseURL(r)
	if base == nil {
		h.logger.Warn("unable to determine request base URL")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	data, err := h.buildRSSFeed(base, r.URL.Path, h.catalog.List(), h.catalog.Latest())
	if err != nil {
		h.logger.WithError(err).Error("failed to build RSS feed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.logger.WithError(err).Warn("failed to write RSS feed")
	}
}

func requestBaseURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	// Only the first hop counts, and only the schemes a feed link can use.
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		candidate := strings.ToLower(strings.TrimSpace(strings.Split(forwarded, ",")[0]))
		if candidate == "http" || candidate == "https" {
			scheme = candidate
		}
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return nil
	}

	return &url.URL{Scheme: scheme, Host: host}
}

// buildRSSFeed renders the catalog, in catalog order, as an RSS 2.0 document
// with the iTunes extensions podcast apps expect.
func (h *serverHandler) buildRSSFeed(base *url.URL, requestPath string, episodes []models.Episode, lastBuild time.Time) ([]byte, error) {
	feedURL := *base
	feedURL.Path = requestPath

	channelLink := *base
	channelLink.Path = "/episodes"

	lastBuild = lastBuild.UTC()
	if lastBuild.IsZero() {
		lastBuild = time.Now().UTC()
	}

	rss := rssFeed{
		Version:  "2.0",
		AtomNS:   "http://www.w3.org/2005/Atom",
		ITunesNS: "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Channel: rssChannel{
			Title:         h.site.Title,
			Link:          channelLink.String(),
			Description:   h.site.Description,
			Language:      h.site.Language,
			LastBuildDate: lastBuild.Format(time.RFC1123Z),
			Generator:     "podcast-player",
			AtomLink: rssAtomLink{
				Href: feedURL.String(),
				Rel:  "self",
				Type: "application/rss+xml",
			},
			ITunesAuthor: h.site.Author,
		},
	}

	if len(episodes) > 0 && episodes[0].Image != "" {
		rss.Channel.ITunesImage = &rssITunesImage{Href: episodes[0].Image}
	}

	for _, ep := range episodes {
		pageURL := *base
		pageURL.Path = ep.Path()

		item := rssItem{
			Title:       fmt.Sprintf("No. %d - %s", ep.Number, ep.Title),
			Link:        pageURL.String(),
			GUID:        rssGUID{IsPermaLink: "true", Value: pageURL.String()},
			PubDate:     ep.ReleasedAt.UTC().Format(time.RFC1123Z),
			Description: ep.Notes,
			Enclosure: rssEnclosure{
				URL:  ep.Audio,
				Type: mimeTypeForURL(ep.Audio),
			},
			ITunesDuration: format.Clock(ep.DurationInSeconds),
			ITunesEpisode:  ep.Number,
			ITunesAuthor:   h.site.Author,
		}
		if ep.Image != "" {
			item.ITunesImage = &rssITunesImage{Href: ep.Image}
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), output...), nil
}

func mimeTypeForURL(raw string) string {
	ext := ""
	if u, err := url.Parse(raw); err == nil {
		ext = strings.ToLower(pathpkg.Ext(u.Path))
	}
	if ext != "" {
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
		if fallback, ok := fallbackMIMETypes[ext]; ok {
			return fallback
		}
	}
	return "application/octet-stream"
}

var fallbackMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string          `xml:"title"`
	Link          string          `xml:"link"`
	Description   string          `xml:"description"`
	Language      string          `xml:"language,omitempty"`
	LastBuildDate string          `xml:"lastBuildDate"`
	Generator     string          `xml:"generator"`
	AtomLink      rssAtomLink     `xml:"atom:link"`
	ITunesAuthor  string          `xml:"itunes:author,omitempty"`
	ITunesImage   *rssITunesImage `xml:"itunes:image,omitempty"`
	Items         []rssItem       `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssITunesImage struct {
	Href string `xml:"href,attr"`
}

type rssItem struct {
	Title          string          `xml:"title"`
	Link           string          `xml:"link"`
	GUID           rssGUID         `xml:"guid"`
	PubDate        string          `xml:"pubDate,omitempty"`
	Description    string          `xml:"description"`
	Enclosure      rssEnclosure    `xml:"enclosure"`
	ITunesDuration string          `xml:"itunes:duration,omitempty"`
	ITunesEpisode  int             `xml:"itunes:episode,omitempty"`
	ITunesAuthor   string          `xml:"itunes:author,omitempty"`
	ITunesImage    *rssITunesImage `xml:"itunes:image,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Length is 0 because the audio is hosted elsewhere and its size is not part
// of the catalog.
type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
