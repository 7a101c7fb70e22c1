package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/starfederation/datastar-go/datastar"
	"novelshelf/framework"
	"novelshelf/framework/engine"
)

const defaultCacheControlPolicy = "no-cache"
const defaultStaticCachePolicy = "public, max-age=3600, s-maxage=3600"
const defaultHealthPath = "/healthz"
const defaultHealthBody = "ok"
const defaultStaticPrefix = "/static/"
const defaultOutletSelectorID = "outlet"
const liveNavigationMarkerKey = "__live"
const liveNavigationMarkerValue = "navigation"
const liveRequestHeader = "Datastar-Request"

type StaticMount struct {
	URLPrefix string
	Dir       string
}

type CachePolicies struct {
	HTML           string
	Live           string
	LiveNavigation string
	Static         string
	Health         string
	Error          string
}

func DefaultCachePolicies() CachePolicies {
	return CachePolicies{
		HTML:   defaultCacheControlPolicy,
		Live:   defaultCacheControlPolicy,
		Static: defaultStaticCachePolicy,
		Health: defaultCacheControlPolicy,
		Error:  defaultCacheControlPolicy,
	}
}

type DocumentView struct {
	Title       string
	Description string
	Location    framework.Location
	Body        templ.Component
}

type Config struct {
	Engine *engine.Engine

	Document     func(view DocumentView) templ.Component
	NotFoundPage func(requestPath string) templ.Component

	Static StaticMount

	CachePolicies CachePolicies

	Logger     *zerolog.Logger
	Middleware []func(http.Handler) http.Handler

	Metrics     http.Handler
	MetricsPath string

	Gzip bool

	OutletSelectorID string
	HealthPath       string
	HealthBody       string
}

type liveSignals struct {
	From    string `json:"from"`
	Replace bool   `json:"replace"`
}

type server struct {
	engine        *engine.Engine
	document      func(view DocumentView) templ.Component
	notFoundPage  func(requestPath string) templ.Component
	cachePolicies CachePolicies
	outletID      string
	healthBody    string
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("navigation engine is required")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	healthBody := strings.TrimSpace(cfg.HealthBody)
	if healthBody == "" {
		healthBody = defaultHealthBody
	}
	outletID := strings.TrimSpace(cfg.OutletSelectorID)
	if outletID == "" {
		outletID = defaultOutletSelectorID
	}

	document := cfg.Document
	if document == nil {
		document = func(view DocumentView) templ.Component { return view.Body }
	}

	srv := &server{
		engine:        cfg.Engine,
		document:      document,
		notFoundPage:  cfg.NotFoundPage,
		cachePolicies: withDefaultPolicies(cfg.CachePolicies),
		outletID:      outletID,
		healthBody:    healthBody,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(hlog.NewHandler(logger))
	mux.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	mux.Use(middleware.Recoverer)
	for _, mw := range cfg.Middleware {
		mux.Use(mw)
	}

	mux.Get(normalizePath(cfg.HealthPath, defaultHealthPath), srv.handleHealth)
	if cfg.Metrics != nil {
		mux.Handle(normalizePath(cfg.MetricsPath, "/metrics"), cfg.Metrics)
	}
	if strings.TrimSpace(cfg.Static.Dir) != "" {
		prefix := normalizeStaticPrefix(cfg.Static.URLPrefix)
		fs := http.FileServer(http.Dir(cfg.Static.Dir))
		mux.Handle(prefix+"*", withCachePolicy(srv.cachePolicies.Static, http.StripPrefix(prefix, fs)))
	}
	mux.Get("/*", srv.handleRoute)

	if !cfg.Gzip {
		return mux, nil
	}

	wrap, err := gzhttp.NewWrapper(gzhttp.ExceptContentTypes([]string{"text/event-stream"}))
	if err != nil {
		return nil, fmt.Errorf("create gzip wrapper: %w", err)
	}
	return wrap(mux), nil
}

func (s *server) handleRoute(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", liveRequestHeader)
	if isLiveRequest(r) {
		s.handleLive(w, r)
		return
	}

	requested := r.URL.RequestURI()
	nav, err := s.engine.Resolve(r.Context(), framework.Location{}, requested)
	if err != nil {
		s.handleNavigationError(w, r, err)
		return
	}

	if nav.Redirected() && nav.To.FullPath != requested {
		setCachePolicy(w, s.cachePolicies.HTML)
		http.Redirect(w, r, nav.To.FullPath, http.StatusFound)
		return
	}

	page := s.document(DocumentView{
		Title:       nav.To.Name,
		Description: nav.Description(),
		Location:    nav.To,
		Body:        nav.Render(0),
	})
	if err := s.renderPageWithStatus(r, w, page, 0, s.cachePolicies.HTML); err != nil {
		s.handleServerError(w, r, fmt.Errorf("render route %q: %w", nav.To.Name, err))
	}
}

// handleLive serves in-page navigations: the inner chain is patched into the outlet
// when the current page already shows the same outer layout.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	signals, err := readLiveSignals(r)
	if err != nil {
		s.handleBadRequest(w, "invalid navigation signals")
		return
	}

	var from framework.Location
	fromShell := ""
	if match, ok := s.engine.Router().Match(signals.From); ok && !match.IsRedirect() {
		from = match.Location
		if chain := match.Chain(); len(chain) > 1 {
			fromShell = chain[0].Record.Pattern
		}
	}

	nav, err := s.engine.Resolve(r.Context(), from, liveTarget(r.URL))
	if err != nil {
		s.handleNavigationError(w, r, err)
		return
	}

	sse := datastar.NewSSE(&cachePolicyWriter{ResponseWriter: w, policy: s.liveCachePolicyFor(r)}, r)

	sameShell := fromShell != "" && len(nav.Records) > 1 && nav.Records[0].Pattern == fromShell
	if !sameShell {
		if err := sse.Redirect(nav.To.FullPath); err != nil {
			s.logServerError(r, fmt.Errorf("redirect live navigation: %w", err))
		}
		return
	}

	if err := sse.PatchElementTempl(
		nav.Render(1),
		datastar.WithSelectorID(s.outletID),
		datastar.WithModeInner(),
	); err != nil {
		s.logServerError(r, fmt.Errorf("patch route %q: %w", nav.To.Name, err))
		return
	}

	historyMethod := "pushState"
	if signals.Replace || nav.Redirected() {
		historyMethod = "replaceState"
	}
	encodedPath, _ := json.Marshal(nav.To.FullPath)
	script := fmt.Sprintf("window.history.%s({}, '', %s)", historyMethod, encodedPath)
	if err := sse.ExecuteScript(script); err != nil {
		s.logServerError(r, fmt.Errorf("update history: %w", err))
		return
	}
	if err := sse.MarshalAndPatchSignals(liveSignals{From: nav.To.FullPath}); err != nil {
		s.logServerError(r, fmt.Errorf("patch navigation signals: %w", err))
	}
}

func (s *server) liveCachePolicyFor(r *http.Request) string {
	if r != nil &&
		strings.TrimSpace(r.URL.Query().Get(liveNavigationMarkerKey)) == liveNavigationMarkerValue &&
		strings.TrimSpace(s.cachePolicies.LiveNavigation) != "" {
		return s.cachePolicies.LiveNavigation
	}

	return s.cachePolicies.Live
}

func (s *server) handleNavigationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrNoMatch):
		s.handleNotFound(w, r)
	case errors.Is(err, context.Canceled):
		hlog.FromRequest(r).Debug().Err(err).Msg("navigation abandoned")
	default:
		s.handleServerError(w, r, err)
	}
}

func (s *server) renderPageWithStatus(
	r *http.Request,
	w http.ResponseWriter,
	component templ.Component,
	statusCode int,
	cachePolicy string,
) error {
	setCachePolicy(w, cachePolicy)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}
	return component.Render(r.Context(), w)
}

func (s *server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if s.notFoundPage == nil {
		setCachePolicy(w, s.cachePolicies.Error)
		http.NotFound(w, r)
		return
	}

	component := s.notFoundPage(r.URL.Path)
	if err := s.renderPageWithStatus(r, w, component, http.StatusNotFound, s.cachePolicies.Error); err != nil {
		s.handleServerError(w, r, fmt.Errorf("render not found page: %w", err))
	}
}

func (s *server) handleBadRequest(w http.ResponseWriter, message string) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, message, http.StatusBadRequest)
}

func (s *server) handleServerError(w http.ResponseWriter, r *http.Request, err error) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	s.logServerError(r, err)
}

func (s *server) logServerError(r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("navigation failed")
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	setCachePolicy(w, s.cachePolicies.Health)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.healthBody))
}

func readLiveSignals(r *http.Request) (liveSignals, error) {
	signals := liveSignals{}
	if r.Method == http.MethodGet && strings.TrimSpace(r.URL.Query().Get(datastar.DatastarKey)) == "" {
		return signals, nil
	}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		return liveSignals{}, err
	}
	return signals, nil
}

func isLiveRequest(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get(liveRequestHeader)), "true")
}

// liveTarget drops the transport-only query values so the route sees the page URL.
func liveTarget(u *url.URL) string {
	q := u.Query()
	q.Del(liveNavigationMarkerKey)
	q.Del(datastar.DatastarKey)

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

func normalizeStaticPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultStaticPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func normalizePath(path string, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func withDefaultPolicies(policies CachePolicies) CachePolicies {
	defaults := DefaultCachePolicies()
	if strings.TrimSpace(policies.HTML) == "" {
		policies.HTML = defaults.HTML
	}
	if strings.TrimSpace(policies.Live) == "" {
		policies.Live = defaults.Live
	}
	if strings.TrimSpace(policies.Static) == "" {
		policies.Static = defaults.Static
	}
	if strings.TrimSpace(policies.Health) == "" {
		policies.Health = defaults.Health
	}
	if strings.TrimSpace(policies.Error) == "" {
		policies.Error = defaults.Error
	}
	return policies
}

func setCachePolicy(w http.ResponseWriter, policy string) {
	policy = strings.TrimSpace(policy)
	if policy == "" {
		return
	}
	w.Header().Set("Cache-Control", policy)
}

// cachePolicyWriter sets Cache-Control when the headers are committed, after any value
// the stream writer put there.
type cachePolicyWriter struct {
	http.ResponseWriter
	policy    string
	committed bool
}

func (w *cachePolicyWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	setCachePolicy(w.ResponseWriter, w.policy)
}

func (w *cachePolicyWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *cachePolicyWriter) Write(p []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(p)
}

func (w *cachePolicyWriter) FlushError() error {
	w.commit()
	return http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *cachePolicyWriter) Flush() {
	_ = w.FlushError()
}

func (w *cachePolicyWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func withCachePolicy(policy string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCachePolicy(w, policy)
		next.ServeHTTP(w, r)
	})
}
