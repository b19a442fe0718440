package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Extractor recovers a JSON object from a model reply. Extract returns false
// when the strategy does not apply.
type Extractor struct {
	Name    string
	Extract func(text string) (map[string]interface{}, bool)
}

// DefaultExtractors is the fallback chain, tried in order.
var DefaultExtractors = []Extractor{
	{Name: "direct", Extract: ExtractDirect},
	{Name: "fenced", Extract: ExtractFenced},
	{Name: "braces", Extract: ExtractBraces},
}

// ExtractJSON runs the extractors in order and returns the first success
// along with the name of the extractor that produced it.
func ExtractJSON(text string, extractors []Extractor) (map[string]interface{}, string, bool) {
	for _, ex := range extractors {
		if obj, ok := ex.Extract(text); ok {
			return obj, ex.Name, true
		}
	}
	return nil, "", false
}

// ExtractDirect parses the whole reply as a JSON object.
func ExtractDirect(text string) (map[string]interface{}, bool) {
	return decodeObject(strings.TrimSpace(text))
}

var fencedJSON = regexp.MustCompile("(?is)```\\s*json\\s*\\n?(.*?)```")

// ExtractFenced parses the body of the first ```json fenced block.
func ExtractFenced(text string) (map[string]interface{}, bool) {
	m := fencedJSON.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return decodeObject(strings.TrimSpace(m[1]))
}

// ExtractBraces parses the first balanced {...} span, skipping braces inside
// JSON strings.
func ExtractBraces(text string) (map[string]interface{}, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return decodeObject(text[start : i+1])
			}
		}
	}
	return nil, false
}

func decodeObject(s string) (map[string]interface{}, bool) {
	if s == "" || !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
