package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"novelshelf/framework"
	"novelshelf/framework/lazy"
)

// Match is the resolver's decision for one target: either a redirect or a chain of
// components ordered from the outermost layout to the leaf view.
type Match struct {
	Location   framework.Location
	RedirectTo string
	Props      framework.Props
	chain      []Step
}

func (m Match) IsRedirect() bool {
	return m.RedirectTo != ""
}

func (m Match) Chain() []Step {
	return m.chain
}

type Step struct {
	Record    framework.RouteRecord
	component *lazy.Value[framework.Component]
}

func (s Step) Load(ctx context.Context) (framework.Component, error) {
	return s.component.Load(ctx)
}

func (s Step) Loaded() bool {
	return s.component.Loaded()
}

type Summary struct {
	Pattern  string
	Name     string
	Kind     string
	Redirect string
	Depth    int
}

func (router *Router) Match(target string) (Match, bool) {
	parsed := parseTarget(target)
	requestSegments := splitPathSegments(parsed.EscapedPath())

	for _, rec := range router.routes {
		params, ok := matchSegments(rec.segments, requestSegments)
		if !ok {
			continue
		}
		return router.newMatch(rec, params, requestSegments, parsed), true
	}

	return Match{}, false
}

// parseTarget reads a navigation target as a path reference. A leading "//" would make
// url.Parse treat the first segment as a host, so repeated leading slashes are collapsed.
func parseTarget(target string) *url.URL {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "//") {
		target = "/" + strings.TrimLeft(target, "/")
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return &url.URL{Path: target}
	}
	return parsed
}

func (router *Router) newMatch(rec *record, params map[string]string, requestSegments []string, target *url.URL) Match {
	lineage := make([]*record, 0, 2)
	for current := rec; current != nil; current = current.parent {
		lineage = append([]*record{current}, lineage...)
	}

	matched := make([]framework.RouteRecord, 0, len(lineage))
	chain := make([]Step, 0, len(lineage))
	for _, current := range lineage {
		routeRecord := framework.RouteRecord{
			Pattern: current.pattern,
			Name:    current.name,
			Meta:    current.meta,
		}
		matched = append(matched, routeRecord)
		if current.component != nil {
			chain = append(chain, Step{Record: routeRecord, component: current.component})
		}
	}

	location := framework.Location{
		Name:    rec.name,
		Path:    "/" + strings.Join(requestSegments, "/"),
		Query:   target.Query(),
		Hash:    target.Fragment,
		Matched: matched,
	}
	if len(params) > 0 {
		location.Params = params
	}
	location.FullPath = fullPath(location.Path, target.RawQuery, target.Fragment)

	if rec.redirect != "" {
		return Match{
			Location:   location,
			RedirectTo: redirectTarget(rec.redirect, target),
		}
	}

	match := Match{Location: location, chain: chain}
	if rec.props != nil {
		match.Props = rec.props(location)
	}
	return match
}

// redirectTarget keeps the original query and hash unless the target sets its own.
func redirectTarget(redirect string, original *url.URL) string {
	if strings.ContainsAny(redirect, "?#") {
		return redirect
	}
	return fullPath(redirect, original.RawQuery, original.Fragment)
}

func fullPath(routePath string, rawQuery string, fragment string) string {
	full := routePath
	if rawQuery != "" {
		full += "?" + rawQuery
	}
	if fragment != "" {
		full += "#" + fragment
	}
	return full
}

// ResolveName builds the path of a named route from its params.
func (router *Router) ResolveName(name string, params map[string]string) (string, error) {
	rec, ok := router.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown route name %q", name)
	}

	parts := make([]string, 0, len(rec.segments))
	for _, segment := range rec.segments {
		if segment.kind == segmentStatic {
			parts = append(parts, segment.name)
			continue
		}

		value := params[segment.name]
		switch segment.kind {
		case segmentParam:
			if !segment.accepts(value) {
				return "", fmt.Errorf("route %q: invalid value %q for param %q", name, value, segment.name)
			}
			parts = append(parts, url.PathEscape(value))
		default:
			if value == "" && segment.kind == segmentRepeatable && segment.atLeast1 {
				return "", fmt.Errorf("route %q: param %q needs at least one segment", name, segment.name)
			}
			for _, piece := range strings.Split(value, "/") {
				if piece != "" {
					parts = append(parts, url.PathEscape(piece))
				}
			}
		}
	}

	return "/" + strings.Join(parts, "/"), nil
}

// Routes lists the compiled table in declaration order.
func (router *Router) Routes() []Summary {
	summaries := make([]Summary, 0, len(router.declared))
	for _, rec := range router.declared {
		depth := 0
		for current := rec.parent; current != nil; current = current.parent {
			depth++
		}
		summaries = append(summaries, Summary{
			Pattern:  rec.pattern,
			Name:     rec.name,
			Kind:     rec.kind(),
			Redirect: rec.redirect,
			Depth:    depth,
		})
	}
	return summaries
}
