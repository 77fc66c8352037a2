package server

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"podcast-player/internal/catalog"
	"podcast-player/internal/events"
	"podcast-player/internal/logging"
	"podcast-player/internal/models"
	"podcast-player/internal/views"
)

func testSite() views.Site {
	return views.Site{
		Title:       "Test Cast",
		Description: "Test cast description",
		Language:    "en",
		Author:      "Test Author",
	}
}

func newTestHandler(t *testing.T) (http.Handler, *catalog.Catalog) {
	t.Helper()
	renderer, err := views.NewRenderer(logging.Discard())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	c := catalog.Default()
	return New(c, renderer, testSite(), logging.Discard()), c
}

func serve(handler http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func navigateHeader() http.Header {
	return http.Header{NavigateHeader: []string{"1"}}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected status payload: %v", body)
	}
}

func TestRoutesRejectNonGET(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{"/health", "/episodes", "/episodes/195", "/api/episodes", "/feed"} {
		rec := serve(handler, http.MethodPost, target, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("POST %s: expected 405, got %d", target, rec.Code)
		}
	}
}

func TestRootRedirectsToEpisodes(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/episodes" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestEpisodesPageListsCatalogInOrder(t *testing.T) {
	handler, c := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/episodes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}

	doc := parseHTML(t, rec)
	rows := doc.Find("li[data-episode]")
	episodes := c.List()
	if rows.Length() != len(episodes) {
		t.Fatalf("expected %d rows, got %d", len(episodes), rows.Length())
	}

	rows.Each(func(i int, row *goquery.Selection) {
		ep := episodes[i]
		if href, _ := row.Find("a[data-navigate]").Attr("href"); href != "/episodes/"+strconv.Itoa(ep.Number) {
			t.Fatalf("row %d: unexpected link %q", i, href)
		}
		heading := strings.TrimSpace(row.Find("h2").Text())
		if heading != "No. "+strconv.Itoa(ep.Number)+" - "+ep.Title {
			t.Fatalf("row %d: unexpected heading %q", i, heading)
		}
		payload, _ := row.Find("button[data-play-episode]").Attr("data-play-episode")
		decoded, err := events.Decode(payload)
		if err != nil {
			t.Fatalf("row %d: decode payload: %v", i, err)
		}
		if decoded.Number != ep.Number || decoded.Audio != ep.Audio {
			t.Fatalf("row %d: payload does not match episode: %+v", i, decoded)
		}
	})

	first := rows.First()
	if got := first.Find("[data-released]").Text(); got != "Released: Jul 6, 2023" {
		t.Fatalf("unexpected release date %q", got)
	}
	if got := first.Find("[data-duration]").Text(); got != "Duration: 42m 59s" {
		t.Fatalf("unexpected duration %q", got)
	}

	if doc.Find(`[data-persist="player"]`).Length() != 1 {
		t.Fatalf("expected the full page to mount the player region")
	}
	style, _ := doc.Find("[data-player]").Attr("style")
	if !strings.Contains(style, "display: none") {
		t.Fatalf("expected the player to start hidden")
	}
}

func TestEpisodePageRendersDetail(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/episodes/195", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	doc := parseHTML(t, rec)
	if got := strings.TrimSpace(doc.Find(`[data-episode="195"] h2`).Text()); got != "No. 195 - Queries, GPT, and sinking downloads" {
		t.Fatalf("unexpected heading %q", got)
	}
	if n := doc.Find("[data-notes] li").Length(); n != 12 {
		t.Fatalf("expected notes HTML to be rendered unescaped with 12 items, got %d", n)
	}
	if href, _ := doc.Find("[data-notes] a").Attr("href"); href != "https://honeybadger.io/?ref=laravelnewspodcast" {
		t.Fatalf("unexpected sponsor link %q", href)
	}
	if href, _ := doc.Find("a[data-back]").Attr("href"); href != "/episodes" {
		t.Fatalf("expected a link back to the list, got %q", href)
	}
	if doc.Find("button[data-play-episode]").Length() != 1 {
		t.Fatalf("expected a play control")
	}
	if !strings.Contains(doc.Find("title").Text(), "No. 195") {
		t.Fatalf("unexpected title %q", doc.Find("title").Text())
	}
}

func TestEpisodePageNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{"/episodes/1", "/episodes/abc", "/episodes/-195", "/episodes/0"} {
		rec := serve(handler, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
		doc := parseHTML(t, rec)
		if doc.Find("[data-not-found]").Length() != 1 {
			t.Fatalf("%s: expected the not-found page", target)
		}
		if doc.Find(`[data-persist="player"]`).Length() != 1 {
			t.Fatalf("%s: expected the not-found page to keep the layout", target)
		}
	}
}

func TestNavigationFragmentsKeepPlayerMounted(t *testing.T) {
	handler, _ := newTestHandler(t)

	full := serve(handler, http.MethodGet, "/episodes", nil)
	if parseHTML(t, full).Find(`[data-persist="player"]`).Length() != 1 {
		t.Fatalf("expected the initial page to mount the player")
	}

	for _, target := range []string{"/episodes/195", "/episodes", "/episodes/404"} {
		rec := serve(handler, http.MethodGet, target, navigateHeader())
		if rec.Code != http.StatusOK && rec.Code != http.StatusNotFound {
			t.Fatalf("%s: unexpected status %d", target, rec.Code)
		}
		if rec.Header().Get("X-Page-Title") == "" {
			t.Fatalf("%s: expected a page title header", target)
		}
		if rec.Header().Get("Vary") != NavigateHeader {
			t.Fatalf("%s: expected Vary on the navigation header", target)
		}
		doc := parseHTML(t, rec)
		if doc.Find("[data-persist]").Length() != 0 {
			t.Fatalf("%s: fragment must not remount persisted regions", target)
		}
		if doc.Find("[data-page]").Length() != 0 || doc.Find("title").Length() != 0 {
			t.Fatalf("%s: fragment must contain only page content", target)
		}
	}

	rec := serve(handler, http.MethodGet, "/episodes/195", navigateHeader())
	if parseHTML(t, rec).Find("[data-notes]").Length() != 1 {
		t.Fatalf("expected the detail fragment to carry the episode content")
	}
}

func TestAPIEpisodes(t *testing.T) {
	handler, c := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/api/episodes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload []models.Episode
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload) != c.Len() || payload[0].Number != 195 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	rec = serve(handler, http.MethodGet, "/api/episodes/194", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var single models.Episode
	if err := json.Unmarshal(rec.Body.Bytes(), &single); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if single.Number != 194 || single.DurationInSeconds != 2219 {
		t.Fatalf("unexpected episode %+v", single)
	}

	rec = serve(handler, http.MethodGet, "/api/episodes/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFeedEndpointProducesRSS(t *testing.T) {
	handler, c := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Host = "podcast.example"
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Fatalf("unexpected content type %q", ct)
	}

	var payload struct {
		Channel struct {
			Title         string `xml:"title"`
			LastBuildDate string `xml:"lastBuildDate"`
			Items         []struct {
				Title     string `xml:"title"`
				Link      string `xml:"link"`
				Enclosure struct {
					URL  string `xml:"url,attr"`
					Type string `xml:"type,attr"`
				} `xml:"enclosure"`
				ITunesDuration string `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
			} `xml:"item"`
		} `xml:"channel"`
	}

	if err := xml.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal rss: %v", err)
	}

	if payload.Channel.Title != "Test Cast" {
		t.Fatalf("unexpected channel title: %s", payload.Channel.Title)
	}
	if payload.Channel.LastBuildDate != "Thu, 06 Jul 2023 10:00:00 +0000" {
		t.Fatalf("unexpected lastBuildDate %q", payload.Channel.LastBuildDate)
	}

	episodes := c.List()
	if len(payload.Channel.Items) != len(episodes) {
		t.Fatalf("expected %d items, got %d", len(episodes), len(payload.Channel.Items))
	}

	item := payload.Channel.Items[0]
	if item.Enclosure.URL != episodes[0].Audio {
		t.Fatalf("unexpected enclosure URL: %s", item.Enclosure.URL)
	}
	if item.Enclosure.Type != "audio/mpeg" {
		t.Fatalf("unexpected enclosure type: %s", item.Enclosure.Type)
	}
	if item.Link != "https://podcast.example/episodes/195" {
		t.Fatalf("unexpected item link: %s", item.Link)
	}
	if item.ITunesDuration != "00:42:59" {
		t.Fatalf("unexpected itunes duration %q", item.ITunesDuration)
	}
}

func TestStaticAssetsAreServed(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{"/images/logo.svg", "/images/play.svg", "/js/player.js"} {
		rec := serve(handler, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
	}
}

func TestStaticDirectoriesAreNotListed(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, target := range []string{"/images/", "/js/"} {
		rec := serve(handler, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", target, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "player.js") || strings.Contains(rec.Body.String(), "logo.svg") {
			t.Fatalf("%s: directory contents leaked: %s", target, rec.Body.String())
		}
	}
}

func TestFeedSelfLinkScheme(t *testing.T) {
	handler, _ := newTestHandler(t)

	cases := map[string]string{
		"":            "http://podcast.example/feed",
		"HTTPS":       "https://podcast.example/feed",
		"https, http": "https://podcast.example/feed",
		"javascript":  "http://podcast.example/feed",
		"gopher":      "http://podcast.example/feed",
	}
	for proto, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.Host = "podcast.example"
		if proto != "" {
			req.Header.Set("X-Forwarded-Proto", proto)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		var payload struct {
			Channel struct {
				AtomLink struct {
					Href string `xml:"href,attr"`
				} `xml:"http://www.w3.org/2005/Atom link"`
			} `xml:"channel"`
		}
		if err := xml.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("%q: unmarshal rss: %v", proto, err)
		}
		if payload.Channel.AtomLink.Href != want {
			t.Fatalf("%q: expected self link %s, got %s", proto, want, payload.Channel.AtomLink.Href)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/health", nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}

	rec = serve(handler, http.MethodGet, "/health", http.Header{RequestIDHeader: []string{"abc-123"}})
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected incoming request id to be echoed, got %q", got)
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(io.Writer, string, views.Page, bool) error {
	return errors.New("boom")
}

func TestRenderFailureIs500(t *testing.T) {
	handler := New(catalog.Default(), failingRenderer{}, testSite(), logging.Discard())

	rec := serve(handler, http.MethodGet, "/episodes", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no partial page on failure")
	}
}

func TestNewAppliesSiteDefaults(t *testing.T) {
	renderer, err := views.NewRenderer(logging.Discard())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	handler := New(catalog.Default(), renderer, views.Site{}, logging.Discard())

	doc := parseHTML(t, serve(handler, http.MethodGet, "/episodes", nil))
	if doc.Find("title").Text() != "Podcast" {
		t.Fatalf("expected default site title, got %q", doc.Find("title").Text())
	}
	if lang, _ := doc.Find("html").Attr("lang"); lang != "en" {
		t.Fatalf("expected default language, got %q", lang)
	}
}
