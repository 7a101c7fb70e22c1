package framework

import (
	"context"
	"net/url"

	"github.com/a-h/templ"
)

type RouteMeta struct {
	RequiresAuth bool
}

type Props map[string]string

func (p Props) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}

	value, ok := p[name]
	return value, ok
}

// PropsMapper derives the props handed to a leaf view from the resolved location.
type PropsMapper func(location Location) Props

// Route is one entry of a declarative route table. A leaf route carries exactly one of
// Component or Redirect; a route with Children may carry a Component acting as layout.
type Route struct {
	Path      string
	Name      string
	Component ComponentLoader
	Children  []Route
	Props     PropsMapper
	Redirect  string
	Meta      RouteMeta
}

type RouteRecord struct {
	Pattern string
	Name    string
	Meta    RouteMeta
}

type Location struct {
	Name     string
	Path     string
	FullPath string
	Params   map[string]string
	Query    url.Values
	Hash     string
	Matched  []RouteRecord
}

func (l Location) Param(name string) (string, bool) {
	if l.Params == nil {
		return "", false
	}

	value, ok := l.Params[name]
	return value, ok
}

func (l Location) RequiresAuth() bool {
	for _, record := range l.Matched {
		if record.Meta.RequiresAuth {
			return true
		}
	}
	return false
}

// PathResolver builds the path of a named route from its params.
type PathResolver interface {
	ResolveName(name string, params map[string]string) (string, error)
}

// ViewContext is what a component receives when it renders. Outlet is the already
// composed child chain for layouts and nil for leaf views.
type ViewContext struct {
	Location Location
	Props    Props
	Outlet   templ.Component
	Paths    PathResolver
}

type Component interface {
	Render(view ViewContext) templ.Component
}

// Describer is implemented by components that carry a short page description.
type Describer interface {
	Description() string
}

type ComponentFunc func(view ViewContext) templ.Component

func (f ComponentFunc) Render(view ViewContext) templ.Component {
	return f(view)
}

type ComponentLoader func(ctx context.Context) (Component, error)

type Guard interface {
	BeforeEach(ctx context.Context, to Location, from Location) (string, error)
}

type GuardFunc func(ctx context.Context, to Location, from Location) (string, error)

func (f GuardFunc) BeforeEach(ctx context.Context, to Location, from Location) (string, error) {
	return f(ctx, to, from)
}

type NavigationOutcome string

const (
	OutcomeView       NavigationOutcome = "view"
	OutcomeRedirect   NavigationOutcome = "redirect"
	OutcomeNoMatch    NavigationOutcome = "no_match"
	OutcomeLoadError  NavigationOutcome = "load_error"
	OutcomeGuardError NavigationOutcome = "guard_error"
	OutcomeSuperseded NavigationOutcome = "superseded"
)

// Observer receives navigation events; implementations must be safe for concurrent use.
type Observer interface {
	NavigationFinished(routeName string, outcome NavigationOutcome)
	ComponentLoaded(routeName string, seconds float64)
}

type NopObserver struct{}

func (NopObserver) NavigationFinished(string, NavigationOutcome) {}

func (NopObserver) ComponentLoaded(string, float64) {}

// Compose wraps each component's output in the component before it, so the first
// entry is the outermost layout.
func Compose(components []Component, view ViewContext) templ.Component {
	var wrapped templ.Component
	for idx := len(components) - 1; idx >= 0; idx-- {
		current := view
		current.Outlet = wrapped
		wrapped = components[idx].Render(current)
	}
	return wrapped
}
