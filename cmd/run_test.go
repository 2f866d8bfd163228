package cmd

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 80))
	assert.Equal(t, "one two", truncate("one\ntwo", 80))

	long := strings.Repeat("x", 100)
	got := truncate(long, 80)
	assert.Len(t, got, 80)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestTruncate_MultibyteRunes(t *testing.T) {
	long := strings.Repeat("é", 100)
	got := truncate(long, 80)

	assert.True(t, utf8.ValidString(got), "cut must not split a rune")
	assert.Equal(t, 80, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
