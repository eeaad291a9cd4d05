package ui

import (
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdownWithError_ZeroWidth_DoesNotError(t *testing.T) {
	_, err := RenderMarkdownWithError("# title", 0)
	require.NoError(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	assert.Equal(t, "", RenderMarkdown("", 40))

	out := ansi.Strip(RenderMarkdown("Some **bold** text", 40))
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")

	// Width changes rebuild the cached renderer.
	out = ansi.Strip(RenderMarkdown("- one\n- two", 20))
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two")
}
