package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReply = `{"summary":"Irregular pigmented lesion","findings":[{"label":"melanoma","confidence":0.7},{"label":"Melanocytic_Nevus","confidence":0.3}],"risk":"high","report":"Asymmetric border {noted}."}`

func TestExtractorsIndividually(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) (map[string]interface{}, bool)
		in   string
		ok   bool
	}{
		{"direct plain", ExtractDirect, sampleReply, true},
		{"direct padded", ExtractDirect, "\n  " + sampleReply + "\n", true},
		{"direct prose", ExtractDirect, "Here you go: " + sampleReply, false},
		{"direct array", ExtractDirect, `[1,2]`, false},
		{"fenced", ExtractFenced, "Result:\n```json\n" + sampleReply + "\n```\nthanks", true},
		{"fenced upper", ExtractFenced, "```JSON " + sampleReply + "```", true},
		{"fenced missing", ExtractFenced, sampleReply, false},
		{"braces prose", ExtractBraces, "Sure! " + sampleReply + " Hope that helps.", true},
		{"braces unbalanced", ExtractBraces, `{"summary": "x"`, false},
		{"braces none", ExtractBraces, "not json at all", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.fn(tt.in)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestExtractBracesIgnoresBracesInStrings(t *testing.T) {
	obj, ok := ExtractBraces(`prefix {"report":"a } inside \" quote {","summary":"s"} trailing }`)
	require.True(t, ok)
	assert.Equal(t, "s", obj["summary"])
}

func TestExtractJSONOrder(t *testing.T) {
	_, via, ok := ExtractJSON(sampleReply, DefaultExtractors)
	require.True(t, ok)
	assert.Equal(t, "direct", via)

	_, via, ok = ExtractJSON("```json\n"+sampleReply+"\n```", DefaultExtractors)
	require.True(t, ok)
	assert.Equal(t, "fenced", via)

	_, via, ok = ExtractJSON("Answer: "+sampleReply, DefaultExtractors)
	require.True(t, ok)
	assert.Equal(t, "braces", via)

	_, _, ok = ExtractJSON("not json at all", DefaultExtractors)
	assert.False(t, ok)
}

func TestExtractionIsIdempotent(t *testing.T) {
	first, _, ok := ExtractJSON("noise "+sampleReply+" noise", DefaultExtractors)
	require.True(t, ok)

	again, err := json.Marshal(first)
	require.NoError(t, err)
	second, _, ok := ExtractJSON(string(again), DefaultExtractors)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestFencedAndUnfencedParseIdentically(t *testing.T) {
	plain := ParseVisionReply(sampleReply)
	fenced := ParseVisionReply("```json\n" + sampleReply + "\n```")
	assert.Equal(t, plain, fenced)
}
