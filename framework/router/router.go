package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"novelshelf/framework"
	"novelshelf/framework/lazy"
)

var paramNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

type segmentKind int

const (
	segmentStatic segmentKind = iota
	segmentParam
	segmentOptional
	segmentRepeatable
)

type pathSegment struct {
	name     string
	kind     segmentKind
	pattern  *regexp.Regexp
	atLeast1 bool
}

type record struct {
	order       int
	pattern     string
	name        string
	segments    []pathSegment
	staticCount int
	patternKey  string
	redirect    string
	props       framework.PropsMapper
	meta        framework.RouteMeta
	component   *lazy.Value[framework.Component]
	parent      *record
	hasChildren bool
}

func (r *record) catchAll() bool {
	if len(r.segments) == 0 {
		return false
	}
	kind := r.segments[len(r.segments)-1].kind
	return kind == segmentRepeatable || kind == segmentOptional
}

func (r *record) isAncestorOf(other *record) bool {
	for current := other.parent; current != nil; current = current.parent {
		if current == r {
			return true
		}
	}
	return false
}

func (r *record) kind() string {
	switch {
	case r.redirect != "":
		return "redirect"
	case r.hasChildren:
		return "layout"
	default:
		return "view"
	}
}

type Router struct {
	declared []*record
	routes   []*record
	byName   map[string]*record
}

func New(routes []framework.Route) (*Router, error) {
	if len(routes) == 0 {
		return nil, errors.New("route table cannot be empty")
	}

	router := &Router{byName: make(map[string]*record)}
	if err := router.compile(routes, nil); err != nil {
		return nil, err
	}

	seenPattern := make(map[string]*record)
	for _, rec := range router.declared {
		if !rec.matchable() {
			continue
		}

		existing, ok := seenPattern[rec.patternKey]
		switch {
		case !ok:
			seenPattern[rec.patternKey] = rec
		case existing.isAncestorOf(rec):
			seenPattern[rec.patternKey] = rec
		case rec.isAncestorOf(existing):
		default:
			return nil, fmt.Errorf("route pattern conflict: %q and %q", existing.pattern, rec.pattern)
		}
	}

	for _, rec := range router.declared {
		if rec.matchable() && seenPattern[rec.patternKey] == rec {
			router.routes = append(router.routes, rec)
		}
	}
	if len(router.routes) == 0 {
		return nil, errors.New("route table has no matchable routes")
	}

	sort.SliceStable(router.routes, func(i int, j int) bool {
		left := router.routes[i]
		right := router.routes[j]

		if left.catchAll() != right.catchAll() {
			return right.catchAll()
		}
		if left.staticCount != right.staticCount {
			return left.staticCount > right.staticCount
		}
		if len(left.segments) != len(right.segments) {
			return len(left.segments) > len(right.segments)
		}
		return left.order < right.order
	})

	return router, nil
}

func (r *record) matchable() bool {
	return r.redirect != "" || r.component != nil
}

func (router *Router) compile(routes []framework.Route, parent *record) error {
	for _, route := range routes {
		rec, err := router.newRecord(route, parent)
		if err != nil {
			return err
		}

		router.declared = append(router.declared, rec)
		if rec.name != "" {
			if existing, ok := router.byName[rec.name]; ok {
				return fmt.Errorf("route name %q declared twice: %q and %q", rec.name, existing.pattern, rec.pattern)
			}
			router.byName[rec.name] = rec
		}

		if len(route.Children) > 0 {
			if err := router.compile(route.Children, rec); err != nil {
				return err
			}
		}
	}

	return nil
}

func (router *Router) newRecord(route framework.Route, parent *record) (*record, error) {
	pattern := joinPattern(parent, route.Path)
	label := route.Name
	if label == "" {
		label = pattern
	}

	redirect := strings.TrimSpace(route.Redirect)
	if route.Component != nil && redirect != "" {
		return nil, fmt.Errorf("route %q: component and redirect are mutually exclusive", label)
	}
	if len(route.Children) == 0 && route.Component == nil && redirect == "" {
		return nil, fmt.Errorf("route %q: leaf route needs a component or a redirect", label)
	}
	if len(route.Children) > 0 && redirect != "" {
		return nil, fmt.Errorf("route %q: redirect routes cannot have children", label)
	}
	if route.Props != nil && route.Component == nil {
		return nil, fmt.Errorf("route %q: props need a component", label)
	}

	segments, staticCount, patternKey, err := parsePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", label, err)
	}

	rec := &record{
		order:       len(router.declared),
		pattern:     pattern,
		name:        route.Name,
		segments:    segments,
		staticCount: staticCount,
		patternKey:  patternKey,
		redirect:    redirect,
		props:       route.Props,
		meta:        route.Meta,
		parent:      parent,
		hasChildren: len(route.Children) > 0,
	}
	if route.Component != nil {
		rec.component = lazy.New(func(ctx context.Context) (framework.Component, error) {
			return route.Component(ctx)
		})
	}

	return rec, nil
}

func joinPattern(parent *record, routePath string) string {
	routePath = strings.TrimSpace(routePath)
	if strings.HasPrefix(routePath, "/") || parent == nil {
		return "/" + strings.Trim(routePath, "/")
	}
	if routePath == "" {
		return parent.pattern
	}
	return strings.TrimSuffix(parent.pattern, "/") + "/" + strings.Trim(routePath, "/")
}

func parsePattern(pattern string) ([]pathSegment, int, string, error) {
	parts := splitPathSegments(pattern)
	segments := make([]pathSegment, 0, len(parts))
	keyParts := make([]string, 0, len(parts))
	staticCount := 0

	for idx, part := range parts {
		if !strings.HasPrefix(part, ":") {
			if strings.ContainsAny(part, "()*?+") {
				return nil, 0, "", fmt.Errorf("invalid static segment %q", part)
			}
			segments = append(segments, pathSegment{name: part, kind: segmentStatic})
			keyParts = append(keyParts, part)
			staticCount++
			continue
		}

		segment, err := parseParamSegment(part)
		if err != nil {
			return nil, 0, "", err
		}
		if segment.kind != segmentParam && idx != len(parts)-1 {
			return nil, 0, "", fmt.Errorf("segment %q must be the last segment", part)
		}

		segments = append(segments, segment)
		key := ":"
		if segment.pattern != nil {
			key += "(" + segment.pattern.String() + ")"
		}
		switch segment.kind {
		case segmentOptional:
			key += "?"
		case segmentRepeatable:
			if segment.atLeast1 {
				key += "+"
			} else {
				key += "*"
			}
		}
		keyParts = append(keyParts, key)
	}

	return segments, staticCount, "/" + strings.Join(keyParts, "/"), nil
}

func parseParamSegment(part string) (pathSegment, error) {
	body := strings.TrimPrefix(part, ":")
	segment := pathSegment{kind: segmentParam}

	switch {
	case strings.HasSuffix(body, "*"):
		segment.kind = segmentRepeatable
		body = strings.TrimSuffix(body, "*")
	case strings.HasSuffix(body, "+"):
		segment.kind = segmentRepeatable
		segment.atLeast1 = true
		body = strings.TrimSuffix(body, "+")
	case strings.HasSuffix(body, "?"):
		segment.kind = segmentOptional
		body = strings.TrimSuffix(body, "?")
	}

	if open := strings.Index(body, "("); open != -1 {
		if !strings.HasSuffix(body, ")") {
			return pathSegment{}, fmt.Errorf("invalid param segment %q", part)
		}
		expr := body[open+1 : len(body)-1]
		compiled, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return pathSegment{}, fmt.Errorf("param segment %q: %w", part, err)
		}
		segment.pattern = compiled
		body = body[:open]
	}

	if !paramNamePattern.MatchString(body) {
		return pathSegment{}, fmt.Errorf("invalid param name %q", body)
	}
	segment.name = body

	return segment, nil
}

func (s pathSegment) accepts(value string) bool {
	if value == "" {
		return false
	}
	return s.pattern == nil || s.pattern.MatchString(value)
}

// matchSegments compares escaped request segments against a compiled pattern. Segments are
// unescaped one at a time, so an encoded slash stays inside a single param value.
func matchSegments(segments []pathSegment, requestSegments []string) (map[string]string, bool) {
	params := make(map[string]string, 2)

	for idx, segment := range segments {
		switch segment.kind {
		case segmentRepeatable:
			rest := requestSegments[min(idx, len(requestSegments)):]
			if segment.atLeast1 && len(rest) == 0 {
				return nil, false
			}
			values := make([]string, 0, len(rest))
			for _, raw := range rest {
				value := unescapeSegment(raw)
				if !segment.accepts(value) {
					return nil, false
				}
				values = append(values, value)
			}
			params[segment.name] = strings.Join(values, "/")
			return params, true
		case segmentOptional:
			rest := requestSegments[min(idx, len(requestSegments)):]
			if len(rest) > 1 {
				return nil, false
			}
			if len(rest) == 1 {
				value := unescapeSegment(rest[0])
				if !segment.accepts(value) {
					return nil, false
				}
				params[segment.name] = value
			}
			return params, true
		}

		if idx >= len(requestSegments) {
			return nil, false
		}
		requestValue := unescapeSegment(requestSegments[idx])
		if segment.kind == segmentParam {
			if !segment.accepts(requestValue) {
				return nil, false
			}
			params[segment.name] = requestValue
			continue
		}
		if segment.name != requestValue {
			return nil, false
		}
	}

	if len(segments) != len(requestSegments) {
		return nil, false
	}
	return params, true
}

func unescapeSegment(raw string) string {
	value, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return value
}

func splitPathSegments(raw string) []string {
	cleaned := path.Clean("/" + strings.TrimSpace(raw))
	if cleaned == "/" {
		return []string{}
	}

	trimmed := strings.Trim(cleaned, "/")
	if trimmed == "" {
		return []string{}
	}

	return strings.Split(trimmed, "/")
}
