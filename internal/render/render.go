// Package render turns post bodies into HTML previews.
package render

import (
	"sync"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/starford/postdesk/internal/checksum"
)

const extensions = parser.CommonExtensions | parser.AutoHeadingIDs |
	parser.Footnotes | parser.NoEmptyLineBeforeBlock

// defaultCacheSize bounds the number of rendered previews kept in memory.
const defaultCacheSize = 64

// Renderer renders Markdown and caches results by content checksum.
type Renderer struct {
	mu    sync.Mutex
	cache map[string][]byte
	order []string
	max   int
}

// New creates a renderer keeping up to size previews; size <= 0 uses a default.
func New(size int) *Renderer {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Renderer{cache: make(map[string][]byte), max: size}
}

// HTML renders md. Results are shared; callers must not modify them.
func (r *Renderer) HTML(md []byte) []byte {
	key := checksum.Sum(md)

	r.mu.Lock()
	if out, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return out
	}
	r.mu.Unlock()

	out := Markdown(md)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[key]; !ok {
		r.cache[key] = out
		r.order = append(r.order, key)
		if len(r.order) > r.max {
			delete(r.cache, r.order[0])
			r.order = r.order[1:]
		}
	}
	return out
}

// Len reports how many previews are cached.
func (r *Renderer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Markdown renders md to HTML without caching. A parser is built per call
// because gomarkdown parsers keep state.
func Markdown(md []byte) []byte {
	md = markdown.NormalizeNewlines(md)
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank | html.FootnoteReturnLinks,
	})
	return markdown.Render(doc, renderer)
}
