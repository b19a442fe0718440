package telegram

import (
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cmd, rest := parseCommand("/search@medsage_bot  chest pain ")
	assert.Equal(t, "search", cmd)
	assert.Equal(t, "chest pain", rest)

	cmd, rest = parseCommand("/STATS")
	assert.Equal(t, "stats", cmd)
	assert.Empty(t, rest)
}

func TestParseDiagnoseArgs(t *testing.T) {
	m, s, ok := parseDiagnoseArgs("Skin itchy dark mole")
	assert.True(t, ok)
	assert.Equal(t, "skin", m)
	assert.Equal(t, "itchy dark mole", s)

	m, s, ok = parseDiagnoseArgs("chest")
	assert.True(t, ok)
	assert.Equal(t, "chest", m)
	assert.Empty(t, s)

	_, _, ok = parseDiagnoseArgs("retina blurry")
	assert.False(t, ok)
	_, _, ok = parseDiagnoseArgs("")
	assert.False(t, ok)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	text := "line one\nline two\nline three"
	parts := splitMessage(text, 12)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 12)
	}
	assert.Equal(t, "line one", parts[0])
	assert.Equal(t, strings.ReplaceAll(text, "\n", ""), strings.Join(parts, ""))

	long := strings.Repeat("é", 25)
	parts = splitMessage(long, 10)
	assert.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", displayName(&models.User{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}))
	assert.Equal(t, "@ada", displayName(&models.User{Username: "ada"}))
	assert.Equal(t, "", displayName(&models.User{ID: 7}))
}
