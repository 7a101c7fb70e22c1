package markdown

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

var colorSchemes = []struct {
	media string
	style string
}{
	{media: "light", style: "github"},
	{media: "dark", style: "monokai"},
}

// ChromaCSS returns the code highlighting stylesheet, one block per color scheme.
var ChromaCSS = sync.OnceValue(func() template.CSS {
	var out strings.Builder
	for _, scheme := range colorSchemes {
		css := styleCSS(scheme.style)
		if css == "" {
			continue
		}
		out.WriteString("@media (prefers-color-scheme: " + scheme.media + ") {\n")
		out.WriteString(css)
		out.WriteString("}\n")
	}
	return template.CSS(out.String())
})

func styleCSS(styleName string) string {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}

	var buffer bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(true)).WriteCSS(&buffer, style); err != nil {
		return ""
	}
	return buffer.String()
}
