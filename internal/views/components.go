package views

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"novelshelf/framework"
	"novelshelf/framework/guard"
	"novelshelf/internal/markdown"
	"novelshelf/internal/routes"
)

var errNoPaths = errors.New("view needs a path resolver")

type navLink struct {
	Path  string
	Label string
}

var primaryLinks = []navLink{
	{Path: "/novels", Label: "Novels"},
	{Path: "/search", Label: "Search"},
	{Path: "/upload", Label: "Upload"},
	{Path: "/tasks", Label: "Tasks"},
	{Path: "/auth", Label: "Sign in"},
}

func (l navLink) activeAt(currentPath string) bool {
	return currentPath == l.Path || (l.Path == "/novels" && strings.HasPrefix(currentPath, "/novel/"))
}

func attr(name string, value string) string {
	return " " + name + `="` + templ.EscapeString(value) + `"`
}

func href(target string) string {
	return attr("href", string(templ.URL(target)))
}

func navAnchor(target string, label string, extra string) string {
	return "<a" + href(target) + " data-nav" + extra + ">" + templ.EscapeString(label) + "</a>"
}

func shell(page markdown.Page, view framework.ViewContext) templ.Component {
	var b strings.Builder
	b.WriteString(`<div class="shelf"><header class="shelf-header">`)
	b.WriteString(`<a class="brand" href="/" data-nav>` + templ.EscapeString(page.Title) + `</a><nav>`)
	for _, link := range primaryLinks {
		current := ""
		if link.activeAt(view.Location.Path) {
			current = ` aria-current="page"`
		}
		b.WriteString(navAnchor(link.Path, link.Label, current))
	}
	b.WriteString(`</nav></header><main id="outlet">`)

	outlet := view.Outlet
	if outlet == nil {
		outlet = templ.NopComponent
	}
	return templ.Join(templ.Raw(b.String()), outlet, templ.Raw(`</main></div>`))
}

// article wraps a page body; attrs are already escaped attribute pairs.
func article(class string, attrs string, page markdown.Page, after string) templ.Component {
	return templ.Raw(`<article class="view ` + class + `"` + attrs + `>` + string(page.HTML) + after + `</article>`)
}

func plainArticle(class string) renderFunc {
	return func(page markdown.Page, _ framework.ViewContext) templ.Component {
		return article(class, "", page, "")
	}
}

func novelDetail(page markdown.Page, view framework.ViewContext) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if view.Paths == nil {
			return errNoPaths
		}
		novelID, _ := view.Props.Get("novelId")
		firstChapter, err := view.Paths.ResolveName(routes.ChapterDetail, map[string]string{
			"novelId":   novelID,
			"chapterId": "1",
		})
		if err != nil {
			return err
		}

		after := `<p class="novel-id">Novel <code>` + templ.EscapeString(novelID) + `</code></p>` +
			`<p>` + navAnchor(firstChapter, "Start reading", "") + `</p>`
		return article("view-novel", attr("data-novel-id", novelID), page, after).Render(ctx, w)
	})
}

func chapter(page markdown.Page, view framework.ViewContext) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if view.Paths == nil {
			return errNoPaths
		}
		novelID, _ := view.Location.Param("novelId")
		chapterID, _ := view.Location.Param("chapterId")

		novelPath, err := view.Paths.ResolveName(routes.NovelDetail, map[string]string{"novelId": novelID})
		if err != nil {
			return err
		}
		chapterPath := func(number int) (string, error) {
			return view.Paths.ResolveName(routes.ChapterDetail, map[string]string{
				"novelId":   novelID,
				"chapterId": strconv.Itoa(number),
			})
		}

		var b strings.Builder
		b.WriteString(`<p class="chapter-id">Chapter <code>` + templ.EscapeString(chapterID) + `</code> of `)
		b.WriteString(navAnchor(novelPath, novelID, "") + `</p><nav class="chapter-nav">`)
		if number, err := strconv.Atoi(chapterID); err == nil && number > 0 {
			if number > 1 {
				prev, err := chapterPath(number - 1)
				if err != nil {
					return err
				}
				b.WriteString(`<a rel="prev"` + href(prev) + ` data-nav>Previous</a>`)
			}
			next, err := chapterPath(number + 1)
			if err != nil {
				return err
			}
			b.WriteString(`<a rel="next"` + href(next) + ` data-nav>Next</a>`)
		}
		b.WriteString(`</nav>`)

		attrs := attr("data-novel-id", novelID) + attr("data-chapter-id", chapterID)
		return article("view-chapter", attrs, page, b.String()).Render(ctx, w)
	})
}

func search(page markdown.Page, view framework.ViewContext) templ.Component {
	query := strings.TrimSpace(view.Location.Query.Get("q"))

	var b strings.Builder
	b.WriteString(`<form action="/search" method="get">`)
	b.WriteString(`<input type="search" name="q"` + attr("value", query) + ` placeholder="Title, author or text">`)
	b.WriteString(`<button type="submit">Search</button></form>`)
	if query != "" {
		b.WriteString(`<p class="search-query">Results for <strong>` + templ.EscapeString(query) + `</strong></p>`)
	}
	return article("view-search", "", page, b.String())
}

func auth(page markdown.Page, view framework.ViewContext) templ.Component {
	returnPath := guard.SafeReturnPath(view.Location.Query.Get(guard.RedirectQueryKey), "/")
	after := `<p class="auth-return">After signing in you return to <a` + href(returnPath) + `>` +
		templ.EscapeString(returnPath) + `</a>.</p>`
	return article("view-auth", "", page, after)
}
