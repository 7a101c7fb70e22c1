// Package views holds the page shells behind each route. A view's markdown copy is parsed
// the first time its loader runs, which is the cost the route table defers.
package views

import (
	"context"
	"embed"
	"fmt"

	"github.com/a-h/templ"
	"novelshelf/framework"
	"novelshelf/internal/markdown"
)

//go:embed pages/*.md
var pagesFS embed.FS

type renderFunc func(page markdown.Page, view framework.ViewContext) templ.Component

// pageView is a loaded view: its parsed copy and the markup built around it.
type pageView struct {
	page   markdown.Page
	render renderFunc
}

func (v pageView) Render(view framework.ViewContext) templ.Component {
	return v.render(v.page, view)
}

func (v pageView) Description() string {
	return v.page.Summary
}

// Registry hands out one loader per view. Loaders do not cache; the router does.
type Registry struct {
	opts markdown.Options
}

func NewRegistry(opts markdown.Options) *Registry {
	return &Registry{opts: opts}
}

func (r *Registry) Home() framework.ComponentLoader {
	return r.loader("home", shell)
}

func (r *Registry) Dashboard() framework.ComponentLoader {
	return r.loader("dashboard", plainArticle("view-dashboard"))
}

func (r *Registry) Novels() framework.ComponentLoader {
	return r.loader("novels", plainArticle("view-novels"))
}

func (r *Registry) NovelDetail() framework.ComponentLoader {
	return r.loader("novel_detail", novelDetail)
}

func (r *Registry) Chapter() framework.ComponentLoader {
	return r.loader("chapter", chapter)
}

func (r *Registry) Search() framework.ComponentLoader {
	return r.loader("search", search)
}

func (r *Registry) Upload() framework.ComponentLoader {
	return r.loader("upload", plainArticle("view-upload"))
}

func (r *Registry) Tasks() framework.ComponentLoader {
	return r.loader("tasks", plainArticle("view-tasks"))
}

func (r *Registry) Auth() framework.ComponentLoader {
	return r.loader("auth", auth)
}

func (r *Registry) loader(name string, render renderFunc) framework.ComponentLoader {
	return func(ctx context.Context) (framework.Component, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		source, err := pagesFS.ReadFile("pages/" + name + ".md")
		if err != nil {
			return nil, fmt.Errorf("read page %q: %w", name, err)
		}
		return pageView{page: markdown.Parse(string(source), r.opts), render: render}, nil
	}
}
