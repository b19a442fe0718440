package telegram

import (
	"strings"

	"github.com/hunterwarburton/medsage/internal/core"
)

const helpText = `Medical search and diagnostic support.

Commands:
/search <query> - Search the medical corpora
/diagnose <skin|chest> <symptoms> - Rank likely conditions from symptoms
/stats - Show indexed dataset counts
/reload - Rescan the datasets (admins only)
/help - Show this help message

Send a photo captioned "<skin|chest> <symptoms>" to include the image.
Any other text is searched.`

// parseCommand splits "/cmd@botname rest" into "cmd" and "rest".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	command, rest, _ := strings.Cut(text, " ")
	command = strings.TrimPrefix(command, "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), strings.TrimSpace(rest)
}

// parseDiagnoseArgs reads a leading modality word followed by symptoms.
func parseDiagnoseArgs(s string) (modality, symptoms string, ok bool) {
	first, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	m, err := core.ParseModality(first)
	if err != nil {
		return "", "", false
	}
	return string(m), strings.TrimSpace(rest), true
}

// splitMessage breaks text into parts of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
