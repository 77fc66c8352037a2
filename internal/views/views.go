// Package views renders the HTML pages and serves the static assets.
//
// Templates are embedded in the binary. For development a Renderer can read
// them from a directory instead and reparse them whenever a file changes.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"podcast-player/internal/events"
	"podcast-player/internal/format"
	"podcast-player/internal/logging"
	"podcast-player/internal/models"
)

// Page names accepted by Render.
const (
	PageEpisodes = "episodes"
	PageEpisode  = "episode"
	PageNotFound = "not_found"
)

//go:embed templates static
var files embed.FS

// Site describes the show in the page chrome and the feed.
type Site struct {
	Title       string
	Description string
	Language    string
	Author      string
}

// Page is the data handed to every template.
type Page struct {
	Title    string
	Site     Site
	Episodes []models.Episode
	Episode  models.Episode
	Missing  string
}

// Templates returns the embedded template tree.
func Templates() fs.FS {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Static serves the embedded images and scripts. Directories are not listed.
func Static() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	assets := http.FileServer(http.FS(sub))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		assets.ServeHTTP(w, r)
	})
}

var funcs = template.FuncMap{
	"duration": format.Duration,
	"released": format.ReleaseDate,
	"payload":  events.Payload,
	"notes": func(html string) template.HTML {
		return template.HTML(html)
	},
}

// Renderer executes the page templates.
type Renderer struct {
	source fs.FS
	dir    string
	logger logrus.FieldLogger

	mu    sync.RWMutex
	pages map[string]*template.Template

	watcher      *fsnotify.Watcher
	refreshMu    sync.Mutex
	refreshTimer *time.Timer
	refreshDelay time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewRenderer parses the embedded templates.
func NewRenderer(logger logrus.FieldLogger) (*Renderer, error) {
	r := &Renderer{
		source: Templates(),
		logger: logging.OrDefault(logger),
		done:   make(chan struct{}),
	}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewLiveRenderer parses the templates found in dir and reparses them after
// changes, waiting debounce after the last change event.
func NewLiveRenderer(dir string, debounce time.Duration, logger logrus.FieldLogger) (*Renderer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		source:       os.DirFS(dir),
		dir:          filepath.Clean(dir),
		logger:       logging.OrDefault(logger),
		watcher:      watcher,
		refreshDelay: debounce,
		done:         make(chan struct{}),
	}

	if err := r.refresh(); err != nil {
		watcher.Close()
		return nil, err
	}

	for _, watched := range []string{r.dir, filepath.Join(r.dir, "pages")} {
		if err := watcher.Add(watched); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", watched, err)
		}
	}

	r.wg.Add(1)
	go r.run()

	r.logger.WithField("dir", r.dir).Info("serving templates from disk with live reload")
	return r, nil
}

// Close stops the watcher, if any.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)

		r.refreshMu.Lock()
		if r.refreshTimer != nil {
			r.refreshTimer.Stop()
			r.refreshTimer = nil
		}
		r.refreshMu.Unlock()

		if r.watcher != nil {
			r.closeErr = r.watcher.Close()
		}
		r.wg.Wait()
	})
	return r.closeErr
}

// Render writes the named page. A fragment render emits only the page content,
// without the layout and its persisted regions.
func (r *Renderer) Render(w io.Writer, page string, data Page, fragment bool) error {
	r.mu.RLock()
	tmpl, ok := r.pages[page]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	name := "layout"
	if fragment {
		name = "content"
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *Renderer) refresh() error {
	pages, err := parse(r.source)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.pages = pages
	r.mu.Unlock()

	r.logger.WithField("pages", len(pages)).Debug("templates parsed")
	return nil
}

func parse(source fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("").Funcs(funcs).ParseFS(source, "layout.html", "partials.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	matches, err := fs.Glob(source, "pages/*.html")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	pages := make(map[string]*template.Template, len(matches))
	for _, match := range matches {
		tmpl, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.ParseFS(source, match); err != nil {
			return nil, fmt.Errorf("parse %s: %w", match, err)
		}
		pages[strings.TrimSuffix(path.Base(match), ".html")] = tmpl
	}
	return pages, nil
}

func (r *Renderer) run() {
	defer r.wg.Done()

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("template watcher error")
		case <-r.done:
			return
		}
	}
}

func (r *Renderer) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".html") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		r.scheduleRefresh()
	}
}

func (r *Renderer) scheduleRefresh() {
	select {
	case <-r.done:
		return
	default:
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.refreshTimer != nil {
		r.refreshTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(r.refreshDelay, func() {
		if err := r.refresh(); err != nil {
			r.logger.WithError(err).Error("template reload failed; keeping previous templates")
		} else {
			r.logger.Info("templates reloaded")
		}

		r.refreshMu.Lock()
		if r.refreshTimer == timer {
			r.refreshTimer = nil
		}
		r.refreshMu.Unlock()
	})

	r.refreshTimer = timer
}
