package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"novelshelf/framework/httpserver"
	"novelshelf/internal/markdown"
)

const (
	siteName          = "novelshelf"
	datastarScriptURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

	liveClick    = "const a = evt.target.closest('a[data-nav]'); if (a) { evt.preventDefault(); $replace = false; @get(a.pathname + a.search + (a.search ? '&' : '?') + '__live=navigation') }"
	livePopstate = "$replace = true; @get(location.pathname + location.search + (location.search ? '&' : '?') + '__live=navigation')"
)

type documentSignals struct {
	From    string `json:"from"`
	Replace bool   `json:"replace"`
}

// Document is the full-page shell. Its signals seed the live navigation with the
// page the reader is on.
func Document(view httpserver.DocumentView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		signals, err := templ.JSONString(documentSignals{From: view.Location.FullPath})
		if err != nil {
			return err
		}

		title := siteName
		if view.Title != "" {
			title = view.Title + " · " + siteName
		}

		head := `<!doctype html><html lang="en"><head><meta charset="utf-8">` +
			`<meta name="viewport" content="width=device-width, initial-scale=1">` +
			`<title>` + templ.EscapeString(title) + `</title>`
		if view.Description != "" {
			head += `<meta name="description"` + attr("content", view.Description) + `>`
		}
		head += `<style>` + string(markdown.ChromaCSS()) + `</style>` +
			`<script type="module"` + attr("src", datastarScriptURL) + `></script></head>` +
			`<body` + attr("data-signals", signals) + attr("data-on:click", liveClick) +
			attr("data-on:popstate__window", livePopstate) + `>`

		if _, err := io.WriteString(w, head); err != nil {
			return err
		}
		if view.Body != nil {
			if err := view.Body.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</body></html>`)
		return err
	})
}
