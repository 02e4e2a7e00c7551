package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 100))

	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, truncateRunes(exact, 100))

	// 99 ASCII bytes then a 3-byte rune straddles the 100-byte mark.
	s := strings.Repeat("a", 99) + strings.Repeat("é€", 10)
	got := truncateRunes(s, 100)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 103, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é..."))
}

func TestGenerate_DryRunMultibytePrompt(t *testing.T) {
	prompt := strings.Repeat("x", 99) + "€uro pricing for the bike share"
	code, out, _ := runCLI(t, "generate", "-p", prompt, "-o", t.TempDir(), "--dry-run")
	assert.Equal(t, exitOK, code)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "Prompt: "+strings.Repeat("x", 99)+"€...")
}
