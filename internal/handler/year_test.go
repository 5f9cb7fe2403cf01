package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "├"+strings.Repeat(" ", 20)+"┤", renderBar(0, 20))
	assert.Equal(t, "├"+strings.Repeat("█", 20)+"┤", renderBar(1, 20))
	assert.Equal(t, "├"+strings.Repeat("█", 10)+strings.Repeat(" ", 10)+"┤", renderBar(0.5, 20))

	// ratios are clamped into [0, 1]
	assert.Equal(t, renderBar(0, 20), renderBar(-0.3, 20))
	assert.Equal(t, renderBar(1, 20), renderBar(1.7, 20))

	// a fraction of a cell renders as a partial block
	bar := renderBar(0.525, 20) // 10.5 cells -> 10 full + half block
	assert.Equal(t, "├"+strings.Repeat("█", 10)+"▌"+strings.Repeat(" ", 9)+"┤", bar)
}

func TestRenderBarWidth(t *testing.T) {
	for _, width := range []int{8, 20, 60} {
		bar := renderBar(0.37, width)
		// every bar is exactly width runes between the end caps
		assert.Len(t, []rune(bar), width+2, "width %d", width)
	}
}
