package markdown

import (
	stdhtml "html"
	"html/template"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	md "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// InternalLinkAttr marks links that stay inside the application; the document shell
// turns clicks on them into live navigations.
const InternalLinkAttr = "data-nav"

const lastGoodBreakRatio = 0.8
const descriptionLength = 160

type Options struct {
	// SiteURL makes absolute links to this origin internal.
	SiteURL string
}

// Page is one parsed markdown document. Summary is the plain-text opening of the body
// without the title, cut to descriptionLength runes.
type Page struct {
	Title   string
	HTML    template.HTML
	Summary string
}

var (
	codeBlockPattern     = regexp.MustCompile("(?s)```.*?```")
	imagePattern         = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	headingPattern       = regexp.MustCompile(`(?m)^#{1,6}\s+(.*?)$`)
	emphasisPattern      = regexp.MustCompile(`(\*{1,3}|_)(.*?)(\*{1,3}|_)`)
	inlineCodePattern    = regexp.MustCompile("`(.*?)`")
	linkPattern          = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	blockquotePattern    = regexp.MustCompile(`(?m)^\s*>\s*(.*?)$`)
	orderedListPattern   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	unorderedListPattern = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	htmlTagPattern       = regexp.MustCompile(`<[^>]*>`)
)

func Parse(source string, opts Options) Page {
	if strings.TrimSpace(source) == "" {
		return Page{}
	}

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(source))
	title := firstHeading(doc)
	markLinks(doc, opts.SiteURL)

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags:          mdhtml.CommonFlags | mdhtml.SkipHTML,
		RenderNodeHook: renderNodeHook,
	})

	return Page{
		Title:   title,
		HTML:    template.HTML(md.Render(doc, renderer)),
		Summary: Excerpt(stripFirstHeading(source), descriptionLength),
	}
}

func Excerpt(source string, maxChars int) string {
	if maxChars < 1 {
		return ""
	}

	clean := plainText(source)
	if clean == "" || utf8.RuneCountInString(clean) <= maxChars {
		return clean
	}

	return truncateRunes(clean, maxChars)
}

func plainText(source string) string {
	text := codeBlockPattern.ReplaceAllString(source, " ")
	text = imagePattern.ReplaceAllString(text, " ")
	text = headingPattern.ReplaceAllString(text, "\n$1\n")
	text = emphasisPattern.ReplaceAllString(text, "$2")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = blockquotePattern.ReplaceAllString(text, "$1")
	text = orderedListPattern.ReplaceAllString(text, "")
	text = unorderedListPattern.ReplaceAllString(text, "")
	text = htmlTagPattern.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}

func stripFirstHeading(source string) string {
	loc := headingPattern.FindStringIndex(source)
	if loc == nil {
		return source
	}
	return source[:loc[0]] + source[loc[1]:]
}

func truncateRunes(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	truncateAt := maxChars
	minBreak := int(float64(maxChars) * lastGoodBreakRatio)
	for idx := maxChars - 1; idx >= minBreak; idx-- {
		if unicode.IsSpace(runes[idx]) {
			truncateAt = idx
			break
		}
	}

	truncated := strings.TrimSpace(string(runes[:truncateAt]))
	if truncated == "" {
		truncated = strings.TrimSpace(string(runes[:maxChars]))
	}

	return truncated + "..."
}

func firstHeading(doc ast.Node) string {
	title := ""
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		heading, ok := node.(*ast.Heading)
		if !entering || !ok || heading.Level != 1 {
			return ast.GoToNext
		}

		var b strings.Builder
		ast.WalkFunc(heading, func(child ast.Node, entering bool) ast.WalkStatus {
			if leaf := child.AsLeaf(); entering && leaf != nil {
				b.Write(leaf.Literal)
			}
			return ast.GoToNext
		})
		title = strings.TrimSpace(b.String())
		return ast.Terminate
	})
	return title
}

func markLinks(doc ast.Node, siteURL string) {
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}

		link, ok := node.(*ast.Link)
		if !ok {
			return ast.GoToNext
		}

		href, internal := internalHref(string(link.Destination), siteURL)
		link.Destination = []byte(href)
		link.AdditionalAttributes = linkAttributes(link.AdditionalAttributes, internal)

		return ast.GoToNext
	})
}

// internalHref reports whether href points inside the application and, for absolute
// links to SiteURL, rewrites it to a path.
func internalHref(href string, siteURL string) (string, bool) {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return href, true
	}
	if siteURL == "" || !strings.HasPrefix(href, siteURL) {
		return href, false
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return href, false
	}

	normalized := parsed.Path
	if normalized == "" {
		normalized = "/"
	}
	if parsed.RawQuery != "" {
		normalized += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		normalized += "#" + parsed.Fragment
	}
	return normalized, true
}

func linkAttributes(existing []string, internal bool) []string {
	attrs := make([]string, 0, len(existing)+2)
	for _, attr := range existing {
		normalized := strings.ToLower(strings.TrimSpace(attr))
		if strings.HasPrefix(normalized, "target=") || strings.HasPrefix(normalized, "rel=") {
			continue
		}
		attrs = append(attrs, attr)
	}

	if internal {
		return append(attrs, InternalLinkAttr)
	}
	return append(attrs, `target="_blank"`, `rel="noopener noreferrer"`)
}

func renderNodeHook(writer io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	if !entering {
		return ast.GoToNext, false
	}

	switch typedNode := node.(type) {
	case *ast.CodeBlock:
		renderCodeBlock(writer, typedNode)
		return ast.SkipChildren, true
	case *ast.Code:
		_, _ = io.WriteString(writer, `<code class="inline-code">`+stdhtml.EscapeString(string(typedNode.Literal))+`</code>`)
		return ast.SkipChildren, true
	default:
		return ast.GoToNext, false
	}
}

func renderCodeBlock(writer io.Writer, block *ast.CodeBlock) {
	code := string(block.Literal)
	iterator, err := pickLexer(codeLanguage(block.Info), code).Tokenise(nil, code)
	if err == nil {
		formatter := chromahtml.New(chromahtml.WithClasses(true))
		if err = formatter.Format(writer, styles.Fallback, iterator); err == nil {
			return
		}
	}

	_, _ = io.WriteString(writer, `<pre class="chroma"><code>`+stdhtml.EscapeString(code)+`</code></pre>`)
}

func pickLexer(language string, code string) chroma.Lexer {
	if language != "" {
		if lexer := lexers.Get(language); lexer != nil {
			return lexer
		}
	}

	if lexer := lexers.Analyse(code); lexer != nil {
		return lexer
	}

	return lexers.Fallback
}

func codeLanguage(info []byte) string {
	fields := strings.Fields(string(info))
	if len(fields) == 0 {
		return ""
	}

	return strings.ToLower(fields[0])
}
