package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"novelshelf/framework"
	"novelshelf/framework/guard"
	"novelshelf/framework/router"
)

const defaultMaxRedirects = 10

var (
	ErrNoMatch      = errors.New("no route matches")
	ErrRedirectLoop = errors.New("too many redirects")
	ErrSuperseded   = errors.New("navigation superseded")
)

type Config struct {
	Router       *router.Router
	Guards       []framework.Guard
	MaxRedirects int
	Observer     framework.Observer
	Logger       *zerolog.Logger
}

type Navigation struct {
	ID         uuid.UUID
	From       framework.Location
	To         framework.Location
	Redirects  []string
	Props      framework.Props
	Records    []framework.RouteRecord
	Components []framework.Component

	paths framework.PathResolver
}

func (n *Navigation) Redirected() bool {
	return len(n.Redirects) > 0
}

// Render composes the loaded chain starting at depth; 0 includes every layout.
func (n *Navigation) Render(depth int) templ.Component {
	if depth < 0 {
		depth = 0
	}
	if depth >= len(n.Components) {
		return templ.NopComponent
	}

	return framework.Compose(n.Components[depth:], framework.ViewContext{
		Location: n.To,
		Props:    n.Props,
		Paths:    n.paths,
	})
}

// Description is the leaf component's page description, if it has one.
func (n *Navigation) Description() string {
	if len(n.Components) == 0 {
		return ""
	}
	if describer, ok := n.Components[len(n.Components)-1].(framework.Describer); ok {
		return describer.Description()
	}
	return ""
}

type Engine struct {
	router       *router.Router
	guard        framework.Guard
	maxRedirects int
	observer     framework.Observer
	logger       zerolog.Logger
}

func New(cfg Config) (*Engine, error) {
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects < 1 {
		maxRedirects = defaultMaxRedirects
	}

	observer := cfg.Observer
	if observer == nil {
		observer = framework.NopObserver{}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "navigation").Logger()
	}

	return &Engine{
		router:       cfg.Router,
		guard:        guard.Chain(cfg.Guards...),
		maxRedirects: maxRedirects,
		observer:     observer,
		logger:       logger,
	}, nil
}

func (engine *Engine) Router() *router.Router {
	return engine.router
}

// Resolve follows redirect routes and guard redirects from target until a view is
// reached, then loads that view's component chain.
func (engine *Engine) Resolve(
	ctx context.Context,
	from framework.Location,
	target string,
) (*Navigation, error) {
	nav := &Navigation{ID: uuid.New(), From: from, paths: engine.router}
	current := target

	for hops := 0; ; hops++ {
		if hops > engine.maxRedirects {
			return nil, fmt.Errorf("%w: %s -> %s", ErrRedirectLoop, target, strings.Join(nav.Redirects, " -> "))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		match, ok := engine.router.Match(current)
		if !ok {
			engine.observer.NavigationFinished("", framework.OutcomeNoMatch)
			return nil, fmt.Errorf("%w: %q", ErrNoMatch, current)
		}

		if match.IsRedirect() {
			nav.Redirects = append(nav.Redirects, match.Location.FullPath)
			current = match.RedirectTo
			continue
		}

		redirect, err := engine.guard.BeforeEach(ctx, match.Location, from)
		if err != nil {
			engine.observer.NavigationFinished(match.Location.Name, framework.OutcomeGuardError)
			return nil, fmt.Errorf("guard rejected %q: %w", match.Location.FullPath, err)
		}
		if redirect != "" {
			nav.Redirects = append(nav.Redirects, match.Location.FullPath)
			current = redirect
			continue
		}

		if err := engine.load(ctx, nav, match); err != nil {
			return nil, err
		}

		nav.To = match.Location
		nav.Props = match.Props

		outcome := framework.OutcomeView
		if nav.Redirected() {
			outcome = framework.OutcomeRedirect
		}
		engine.observer.NavigationFinished(nav.To.Name, outcome)
		engine.logger.Debug().
			Str("navigation_id", nav.ID.String()).
			Str("target", target).
			Str("resolved", nav.To.FullPath).
			Str("route", nav.To.Name).
			Strs("redirects", nav.Redirects).
			Msg("navigation resolved")

		return nav, nil
	}
}

func (engine *Engine) load(ctx context.Context, nav *Navigation, match router.Match) error {
	chain := match.Chain()
	nav.Records = make([]framework.RouteRecord, 0, len(chain))
	nav.Components = make([]framework.Component, 0, len(chain))

	for _, step := range chain {
		label := step.Record.Name
		if label == "" {
			label = step.Record.Pattern
		}

		cold := !step.Loaded()
		started := time.Now()
		component, err := step.Load(ctx)
		if err != nil {
			if ctx.Err() == nil {
				engine.observer.NavigationFinished(match.Location.Name, framework.OutcomeLoadError)
			}
			return fmt.Errorf("load component for route %q: %w", label, err)
		}
		if cold {
			engine.observer.ComponentLoaded(label, time.Since(started).Seconds())
		}
		if component == nil {
			return fmt.Errorf("load component for route %q: loader returned no component", label)
		}

		nav.Records = append(nav.Records, step.Record)
		nav.Components = append(nav.Components, component)
	}

	return nil
}
