package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/a-h/templ"
	"novelshelf/framework"
	"novelshelf/framework/guard"
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

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []framework.NavigationOutcome
	loads    []string
}

func (o *recordingObserver) NavigationFinished(_ string, outcome framework.NavigationOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ComponentLoaded(routeName string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loads = append(o.loads, routeName)
}

func newTestEngine(t *testing.T, routes []framework.Route, cfg Config) *Engine {
	t.Helper()

	r, err := router.New(routes)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	cfg.Router = r
	routeEngine, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return routeEngine
}

func render(t *testing.T, component templ.Component) string {
	t.Helper()

	var b bytes.Buffer
	if err := component.Render(context.Background(), &b); err != nil {
		t.Fatalf("render: %v", err)
	}
	return b.String()
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
				{
					Path:      "/private",
					Name:      "private",
					Component: textComponent("private"),
					Meta:      framework.RouteMeta{RequiresAuth: true},
				},
			},
		},
		{Path: "/login", Name: "login", Component: textComponent("login")},
		{Path: "/:rest(.*)*", Name: "fallback", Redirect: "/"},
	}
}

func TestResolveRendersLayoutChain(t *testing.T) {
	observer := &recordingObserver{}
	routeEngine := newTestEngine(t, sampleRoutes(), Config{Observer: observer})

	nav, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/notes")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if nav.Redirected() {
		t.Fatal("did not expect redirects")
	}
	if got := render(t, nav.Render(0)); got != "[layout][notes][/notes][/layout]" {
		t.Fatalf("unexpected render output: %q", got)
	}
	if got := render(t, nav.Render(1)); got != "[notes][/notes]" {
		t.Fatalf("unexpected outlet output: %q", got)
	}
	if len(observer.loads) != 2 {
		t.Fatalf("expected two cold loads, got %v", observer.loads)
	}

	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/notes"); err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if len(observer.loads) != 2 {
		t.Fatalf("expected cached components on second navigation, got %v", observer.loads)
	}
}

func TestResolveFollowsRedirects(t *testing.T) {
	routeEngine := newTestEngine(t, sampleRoutes(), Config{})

	for _, target := range []string{"/old", "/nonexistent", "/deep/missing/path"} {
		nav, err := routeEngine.Resolve(context.Background(), framework.Location{}, target)
		if err != nil {
			t.Fatalf("resolve %q: %v", target, err)
		}
		if nav.To.Name != "home" || nav.To.Path != "/" {
			t.Fatalf("expected %q to land on home, got %q (%s)", target, nav.To.Name, nav.To.Path)
		}
		if len(nav.Redirects) != 1 || nav.Redirects[0] != target {
			t.Fatalf("expected redirect trail [%s], got %v", target, nav.Redirects)
		}
	}
}

func TestResolveDetectsRedirectLoops(t *testing.T) {
	routeEngine := newTestEngine(t, []framework.Route{
		{Path: "/a", Redirect: "/b"},
		{Path: "/b", Redirect: "/a"},
	}, Config{MaxRedirects: 3})

	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/a"); !errors.Is(err, ErrRedirectLoop) {
		t.Fatalf("expected redirect loop error, got %v", err)
	}
}

func TestResolveNoMatch(t *testing.T) {
	routeEngine := newTestEngine(t, []framework.Route{
		{Path: "/notes", Component: textComponent("notes")},
	}, Config{})

	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/missing"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected no match error, got %v", err)
	}
}

func TestResolveWithoutGuardReachesMarkedRoutes(t *testing.T) {
	routeEngine := newTestEngine(t, sampleRoutes(), Config{})

	nav, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/private")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if nav.To.Name != "private" {
		t.Fatalf("expected private route without guard, got %q", nav.To.Name)
	}
}

func TestResolveGuardRedirectsToLogin(t *testing.T) {
	anonymous := guard.AuthStatusFunc(func(context.Context) bool { return false })
	routeEngine := newTestEngine(t, sampleRoutes(), Config{
		Guards: []framework.Guard{guard.RequireAuth(anonymous, "/login")},
	})

	nav, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/private?tab=1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if nav.To.Name != "login" {
		t.Fatalf("expected login, got %q", nav.To.Name)
	}
	if got := nav.To.Query.Get(guard.RedirectQueryKey); got != "/private?tab=1" {
		t.Fatalf("expected return path /private?tab=1, got %q", got)
	}
}

func TestResolveGuardError(t *testing.T) {
	errDenied := errors.New("denied")
	routeEngine := newTestEngine(t, sampleRoutes(), Config{
		Guards: []framework.Guard{framework.GuardFunc(func(context.Context, framework.Location, framework.Location) (string, error) {
			return "", errDenied
		})},
	})

	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/notes"); !errors.Is(err, errDenied) {
		t.Fatalf("expected guard error, got %v", err)
	}
}

func TestResolveLoadError(t *testing.T) {
	errFetch := errors.New("chunk fetch failed")
	var calls atomic.Int32
	observer := &recordingObserver{}
	routeEngine := newTestEngine(t, []framework.Route{
		{
			Path: "/flaky",
			Name: "flaky",
			Component: func(context.Context) (framework.Component, error) {
				if calls.Add(1) == 1 {
					return nil, errFetch
				}
				return framework.ComponentFunc(func(framework.ViewContext) templ.Component {
					return templ.NopComponent
				}), nil
			},
		},
	}, Config{Observer: observer})

	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/flaky"); !errors.Is(err, errFetch) {
		t.Fatalf("expected load error, got %v", err)
	}
	if observer.outcomes[0] != framework.OutcomeLoadError {
		t.Fatalf("expected load error outcome, got %v", observer.outcomes)
	}
	if _, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/flaky"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

type describedComponent struct {
	description string
}

func (c describedComponent) Render(view framework.ViewContext) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		href, err := view.Paths.ResolveName("chapter", map[string]string{"id": "7"})
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, href)
		return err
	})
}

func (c describedComponent) Description() string {
	return c.description
}

func TestNavigationCarriesPathsAndDescription(t *testing.T) {
	routeEngine := newTestEngine(t, []framework.Route{
		{Path: "/plain", Name: "plain", Component: textComponent("plain")},
		{
			Path: "/chapter/:id",
			Name: "chapter",
			Component: func(context.Context) (framework.Component, error) {
				return describedComponent{description: "A chapter."}, nil
			},
		},
	}, Config{})

	nav, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/chapter/3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := render(t, nav.Render(0)); got != "/chapter/7" {
		t.Fatalf("expected the view to build a named path, got %q", got)
	}
	if got := nav.Description(); got != "A chapter." {
		t.Fatalf("expected leaf description, got %q", got)
	}

	plain, err := routeEngine.Resolve(context.Background(), framework.Location{}, "/plain")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := plain.Description(); got != "" {
		t.Fatalf("expected no description, got %q", got)
	}
}
