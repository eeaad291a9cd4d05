package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
)

// Renderer cache so streaming re-renders do not rebuild glamour each frame.
var mdRendererCache struct {
	sync.Mutex
	renderer *glamour.TermRenderer
	width    int
}

// GlamourStyle returns the markdown style used for assistant replies.
func GlamourStyle() ansi.StyleConfig {
	style := styles.DraculaStyleConfig
	margin := uint(0)
	style.Document.Margin = &margin
	style.Document.BlockPrefix = ""
	style.Document.BlockSuffix = ""
	style.CodeBlock.Margin = &margin
	return style
}

// RenderMarkdown renders content with glamour, returning it unchanged when
// rendering fails.
func RenderMarkdown(content string, width int) string {
	if content == "" {
		return ""
	}
	rendered, err := RenderMarkdownWithError(content, width)
	if err != nil {
		return content
	}
	return rendered
}

// RenderMarkdownWithError renders markdown content and returns any errors.
func RenderMarkdownWithError(content string, width int) (string, error) {
	mdRendererCache.Lock()
	defer mdRendererCache.Unlock()

	if mdRendererCache.renderer == nil || mdRendererCache.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStyles(GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", err
		}
		mdRendererCache.renderer = renderer
		mdRendererCache.width = width
	}

	rendered, err := mdRendererCache.renderer.Render(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(rendered), nil
}
