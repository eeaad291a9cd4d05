package ui

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hel…", Truncate("hello", 4))
	assert.Equal(t, "", Truncate("hello", 0))
	assert.Equal(t, "日本…", Truncate("日本語テキスト", 5))
}

func TestFit(t *testing.T) {
	assert.Equal(t, "abc  ", Fit("abc", 5))
	assert.Equal(t, "abcd…", Fit("abcdefgh", 5))
	assert.Equal(t, "a b  ", Fit("a\nb", 5))
	assert.Equal(t, 6, runewidth.StringWidth(Fit("日本語テキスト", 6)))
	assert.Equal(t, "", Fit("x", 0))
}
