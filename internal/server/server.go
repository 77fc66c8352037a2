package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"podcast-player/internal/catalog"
	"podcast-player/internal/logging"
	"podcast-player/internal/models"
	"podcast-player/internal/views"
)

// NavigateHeader marks in-place navigations from the player script. Such
// requests receive only the page fragment so the persisted regions of the
// current document stay mounted.
const NavigateHeader = "X-Navigate"

// EpisodeCatalog abstracts the episode source for the HTTP handlers.
type EpisodeCatalog interface {
	List() []models.Episode
	Find(number int) (models.Episode, error)
	Latest() time.Time
}

// PageRenderer renders the named page.
type PageRenderer interface {
	Render(w io.Writer, page string, data views.Page, fragment bool) error
}

type serverHandler struct {
	catalog  EpisodeCatalog
	renderer PageRenderer
	site     views.Site
	logger   logrus.FieldLogger
}

// New creates the HTTP handler that serves the pages, the JSON API, the RSS
// feed and the static assets.
func New(episodes EpisodeCatalog, renderer PageRenderer, site views.Site, logger logrus.FieldLogger) http.Handler {
	logger = logging.OrDefault(logger)

	// Apply sane defaults if configuration omitted specific values.
	if site.Title == "" {
		site.Title = "Podcast"
	}
	if site.Description == "" {
		site.Description = site.Title
	}
	if site.Language == "" {
		site.Language = "en"
	}

	h := &serverHandler{
		catalog:  episodes,
		renderer: renderer,
		site:     site,
		logger:   logger,
	}

	static := views.Static()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /episodes", h.handleEpisodes)
	mux.HandleFunc("GET /episodes/{number}", h.handleEpisode)
	mux.HandleFunc("GET /api/episodes", h.handleAPIEpisodes)
	mux.HandleFunc("GET /api/episodes/{number}", h.handleAPIEpisode)
	mux.HandleFunc("GET /feed", h.handleFeed)
	mux.HandleFunc("GET /feed.xml", h.handleFeed)
	mux.Handle("GET /images/", static)
	mux.Handle("GET /js/", static)

	return logRequests(mux, logger)
}

func (h *serverHandler) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/episodes", http.StatusSeeOther)
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *serverHandler) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.PageEpisodes, views.Page{
		Title:    h.site.Title,
		Episodes: h.catalog.List(),
	})
}

func (h *serverHandler) handleEpisode(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("number")
	episode, err := h.lookup(raw)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			h.render(w, r, http.StatusNotFound, views.PageNotFound, views.Page{
				Title:   "Episode not found - " + h.site.Title,
				Missing: raw,
			})
			return
		}
		h.logger.WithError(err).Error("episode lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.render(w, r, http.StatusOK, views.PageEpisode, views.Page{
		Title:   "No. " + strconv.Itoa(episode.Number) + " - " + episode.Title + " - " + h.site.Title,
		Episode: episode,
	})
}

func (h *serverHandler) handleAPIEpisodes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.catalog.List())
}

func (h *serverHandler) handleAPIEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := h.lookup(r.PathValue("number"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "episode not found"})
			return
		}
		h.logger.WithError(err).Error("episode lookup failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, episode)
}

// lookup resolves a route parameter. Anything that is not a positive integer
// cannot name an episode and is reported as not found.
func (h *serverHandler) lookup(raw string) (models.Episode, error) {
	number, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || number <= 0 {
		return models.Episode{}, catalog.ErrNotFound
	}
	return h.catalog.Find(number)
}

func (h *serverHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data views.Page) {
	data.Site = h.site

	fragment := r.Header.Get(NavigateHeader) != ""

	var buf strings.Builder
	if err := h.renderer.Render(&buf, page, data, fragment); err != nil {
		h.logger.WithError(err).WithField("page", page).Error("failed to render page")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Vary", NavigateHeader)
	if fragment {
		w.Header().Set("X-Page-Title", data.Title)
	}
	w.WriteHeader(status)
	if _, err := io.WriteString(w, buf.String()); err != nil {
		h.logger.WithError(err).Warn("failed to write page")
	}
}

func (h *serverHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}
