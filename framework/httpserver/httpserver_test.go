package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"novelshelf/framework"
	"novelshelf/framework/engine"
	"novelshelf/framework/router"
)

func textComponent(value string) framework.ComponentLoader {
	return func(context.Context) (framework.Component, error) {
		return framework.ComponentFunc(func(view framework.ViewContext) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				if _, err := io.WriteString(w, "["+value+"]"); err != nil {
					return err
				}
				if view.Outlet != nil {
					if err := view.Outlet.Render(ctx, w); err != nil {
						return err
					}
				}
				_, err := io.WriteString(w, "[/"+value+"]")
				return err
			})
		}), nil
	}
}

func newTestEngine(t *testing.T, routes []framework.Route) *engine.Engine {
	t.Helper()

	r, err := router.New(routes)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	routeEngine, err := engine.New(engine.Config{Router: r})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return routeEngine
}

func sampleRoutes() []framework.Route {
	return []framework.Route{
		{
			Path:      "/",
			Component: textComponent("layout"),
			Children: []framework.Route{
				{Path: "", Name: "home", Component: textComponent("home")},
				{Path: "/old", Name: "old", Redirect: "/"},
				{Path: "/notes", Name: "notes", Component: textComponent("notes")},
			},
		},
		{Path: "/login", Name: "login", Component: textComponent("login")},
		{Path: "/:rest(.*)*", Name: "fallback", Redirect: "/"},
	}
}

func TestHTTPServerPagesRedirectsAndCachePolicies(t *testing.T) {
	t.Parallel()

	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "file.txt"), []byte("asset"), 0o644); err != nil {
		t.Fatalf("write static asset: %v", err)
	}

	handler, err := New(Config{
		Engine: newTestEngine(t, sampleRoutes()),
		Document: func(view DocumentView) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				if _, err := io.WriteString(w, "<title>"+view.Title+"</title>"); err != nil {
					return err
				}
				return view.Body.Render(ctx, w)
			})
		},
		Static: StaticMount{
			URLPrefix: "/assets/",
			Dir:       staticDir,
		},
		CachePolicies: CachePolicies{
			HTML:   "html-cache",
			Static: "static-cache",
			Health: "health-cache",
			Error:  "error-cache",
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	recPage := httptest.NewRecorder()
	handler.ServeHTTP(recPage, httptest.NewRequest(http.MethodGet, "/notes", nil))
	if recPage.Code != http.StatusOK {
		t.Fatalf("page status: expected %d, got %d", http.StatusOK, recPage.Code)
	}
	if got := recPage.Header().Get("Cache-Control"); got != "html-cache" {
		t.Fatalf("page cache policy: expected %q, got %q", "html-cache", got)
	}
	if got := recPage.Header().Get("Vary"); !strings.Contains(got, liveRequestHeader) {
		t.Fatalf("page vary header: expected %s, got %q", liveRequestHeader, got)
	}
	if body := strings.TrimSpace(recPage.Body.String()); body != "<title>notes</title>[layout][notes][/notes][/layout]" {
		t.Fatalf("page body: expected document-wrapped response, got %q", body)
	}

	for _, target := range []string{"/old?tab=1", "/nonexistent", "//x/notes"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusFound {
			t.Fatalf("%s status: expected %d, got %d", target, http.StatusFound, rec.Code)
		}
		expected := "/"
		if target == "/old?tab=1" {
			expected = "/?tab=1"
		}
		if got := rec.Header().Get("Location"); got != expected {
			t.Fatalf("%s location: expected %q, got %q", target, expected, got)
		}
	}

	recStatic := httptest.NewRecorder()
	handler.ServeHTTP(recStatic, httptest.NewRequest(http.MethodGet, "/assets/file.txt", nil))
	if recStatic.Code != http.StatusOK {
		t.Fatalf("static status: expected %d, got %d", http.StatusOK, recStatic.Code)
	}
	if got := recStatic.Header().Get("Cache-Control"); got != "static-cache" {
		t.Fatalf("static cache policy: expected %q, got %q", "static-cache", got)
	}

	recHealth := httptest.NewRecorder()
	handler.ServeHTTP(recHealth, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := recHealth.Header().Get("Cache-Control"); got != "health-cache" {
		t.Fatalf("health cache policy: expected %q, got %q", "health-cache", got)
	}
	if body := strings.TrimSpace(recHealth.Body.String()); body != "ok" {
		t.Fatalf("health body: expected %q, got %q", "ok", body)
	}
}

func TestHTTPServerNotFoundAndLoadErrors(t *testing.T) {
	t.Parallel()

	errFetch := errors.New("fetch failed")
	var notFoundPaths []string

	handler, err := New(Config{
		Engine: newTestEngine(t, []framework.Route{
			{Path: "/notes", Name: "notes", Component: textComponent("notes")},
			{
				Path: "/broken",
				Name: "broken",
				Component: func(context.Context) (framework.Component, error) {
					return nil, errFetch
				},
			},
		}),
		NotFoundPage: func(requestPath string) templ.Component {
			notFoundPaths = append(notFoundPaths, requestPath)
			return templ.Raw("missing")
		},
		CachePolicies: CachePolicies{Error: "error-cache"},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	recMissing := httptest.NewRecorder()
	handler.ServeHTTP(recMissing, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if recMissing.Code != http.StatusNotFound {
		t.Fatalf("unmatched status: expected %d, got %d", http.StatusNotFound, recMissing.Code)
	}
	if got := recMissing.Header().Get("Cache-Control"); got != "error-cache" {
		t.Fatalf("unmatched cache policy: expected %q, got %q", "error-cache", got)
	}
	if len(notFoundPaths) != 1 || notFoundPaths[0] != "/missing" {
		t.Fatalf("expected not-found page for /missing, got %v", notFoundPaths)
	}

	recBroken := httptest.NewRecorder()
	handler.ServeHTTP(recBroken, httptest.NewRequest(http.MethodGet, "/broken", nil))
	if recBroken.Code != http.StatusInternalServerError {
		t.Fatalf("load error status: expected %d, got %d", http.StatusInternalServerError, recBroken.Code)
	}
}

func liveRequest(target string, from string) *http.Request {
	q := url.Values{}
	q.Set("datastar", `{"from":"`+from+`"}`)
	q.Set(liveNavigationMarkerKey, liveNavigationMarkerValue)

	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	req := httptest.NewRequest(http.MethodGet, target+separator+q.Encode(), nil)
	req.Header.Set(liveRequestHeader, "true")
	return req
}

func TestHTTPServerLiveNavigation(t *testing.T) {
	t.Parallel()

	handler, err := New(Config{
		Engine: newTestEngine(t, sampleRoutes()),
		CachePolicies: CachePolicies{
			Live:           "live-cache",
			LiveNavigation: "live-nav-cache",
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	recPatch := httptest.NewRecorder()
	handler.ServeHTTP(recPatch, liveRequest("/notes", "/"))
	if recPatch.Code != http.StatusOK {
		t.Fatalf("live status: expected %d, got %d", http.StatusOK, recPatch.Code)
	}
	if got := recPatch.Result().Header.Get("Cache-Control"); got != "live-nav-cache" {
		t.Fatalf("live nav cache policy: expected %q, got %q", "live-nav-cache", got)
	}
	body := recPatch.Body.String()
	if !strings.Contains(body, "[notes][/notes]") || strings.Contains(body, "[layout]") {
		t.Fatalf("expected outlet-only patch, got %q", body)
	}
	if !strings.Contains(body, "#outlet") {
		t.Fatalf("expected patch targeting the outlet, got %q", body)
	}
	if !strings.Contains(body, "pushState") {
		t.Fatalf("expected history push, got %q", body)
	}

	recShell := httptest.NewRecorder()
	handler.ServeHTTP(recShell, liveRequest("/notes", "/login"))
	shellBody := recShell.Body.String()
	if strings.Contains(shellBody, "[notes]") {
		t.Fatalf("expected full reload when layouts differ, got %q", shellBody)
	}
	if !strings.Contains(shellBody, "/notes") {
		t.Fatalf("expected redirect to /notes, got %q", shellBody)
	}
}

func TestHTTPServerLiveCachePolicyReachesClient(t *testing.T) {
	t.Parallel()

	handler, err := New(Config{
		Engine: newTestEngine(t, sampleRoutes()),
		CachePolicies: CachePolicies{
			Live:           "live-cache",
			LiveNavigation: "live-nav-cache",
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	for _, tc := range []struct {
		name     string
		marker   bool
		expected string
	}{
		{name: "navigation", marker: true, expected: "live-nav-cache"},
		{name: "other live request", marker: false, expected: "live-cache"},
	} {
		req := liveRequest("/notes", "/")
		if !tc.marker {
			q := req.URL.Query()
			q.Del(liveNavigationMarkerKey)
			req.URL.RawQuery = q.Encode()
		}

		clientReq, err := http.NewRequest(http.MethodGet, srv.URL+req.URL.RequestURI(), nil)
		if err != nil {
			t.Fatalf("%s: new request: %v", tc.name, err)
		}
		clientReq.Header.Set(liveRequestHeader, "true")

		resp, err := srv.Client().Do(clientReq)
		if err != nil {
			t.Fatalf("%s: live request: %v", tc.name, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if got := resp.Header.Get("Cache-Control"); got != tc.expected {
			t.Fatalf("%s: expected Cache-Control %q on the wire, got %q", tc.name, tc.expected, got)
		}
		if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
			t.Fatalf("%s: expected an event stream, got %q", tc.name, got)
		}
	}
}

func TestLiveTargetDropsTransportParams(t *testing.T) {
	u, _ := url.Parse("/search?q=dune&__live=navigation&datastar=%7B%7D")
	if got := liveTarget(u); got != "/search?q=dune" {
		t.Fatalf("expected /search?q=dune, got %q", got)
	}
}

func TestHTTPServerGzip(t *testing.T) {
	t.Parallel()

	large := strings.Repeat("chapter ", 512)
	handler, err := New(Config{
		Engine: newTestEngine(t, []framework.Route{{Path: "/", Name: "home", Component: textComponent(large)}}),
		Gzip:   true,
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
}

type describedPage struct{}

func (describedPage) Render(framework.ViewContext) templ.Component {
	return templ.Raw("<p>shelf</p>")
}

func (describedPage) Description() string {
	return "Every novel on the shelf."
}

func TestHTTPServerPassesDescriptionToDocument(t *testing.T) {
	t.Parallel()

	handler, err := New(Config{
		Engine: newTestEngine(t, []framework.Route{{
			Path: "/",
			Name: "home",
			Component: func(context.Context) (framework.Component, error) {
				return describedPage{}, nil
			},
		}}),
		Document: func(view DocumentView) templ.Component {
			return templ.Raw(`<meta name="description" content="` + view.Description + `">`)
		},
	})
	if err != nil {
		t.Fatalf("new http server: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Body.String(); got != `<meta name="description" content="Every novel on the shelf.">` {
		t.Fatalf("expected leaf description in the document, got %q", got)
	}
}
