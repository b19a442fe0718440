package llm

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/hunterwarburton/medsage/internal/core"
)

// DefaultSummary is reported when the model did not supply a summary.
const DefaultSummary = "See report"

// ParseVisionReply turns raw model text into a normalized report. It never
// fails: an unparsable reply yields no findings and the raw text as the report.
func ParseVisionReply(raw string) *VisionReport {
	obj, _, ok := ExtractJSON(raw, DefaultExtractors)
	if !ok {
		return &VisionReport{
			Summary:  DefaultSummary,
			Findings: []core.Finding{},
			Report:   raw,
		}
	}
	return reportFromObject(obj)
}

func reportFromObject(obj map[string]interface{}) *VisionReport {
	rep := &VisionReport{
		Summary: strings.TrimSpace(cast.ToString(obj["summary"])),
		Risk:    strings.ToLower(strings.TrimSpace(cast.ToString(obj["risk"]))),
		Report:  cast.ToString(obj["report"]),
		Parsed:  true,
	}
	if rep.Summary == "" {
		rep.Summary = DefaultSummary
	}

	var findings []core.Finding
	if items, ok := obj["findings"].([]interface{}); ok {
		for _, item := range items {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			findings = append(findings, core.Finding{
				Label:      cast.ToString(m["label"]),
				Confidence: cast.ToFloat64(m["confidence"]),
			})
		}
	}
	rep.Findings = NormalizeFindings(findings)
	return rep
}

// NormalizeFindings drops unlabeled entries, clamps confidences to [0,1] and
// rescales them to sum to 1. A zero total leaves every confidence at 0.
func NormalizeFindings(findings []core.Finding) []core.Finding {
	out := make([]core.Finding, 0, len(findings))
	sum := 0.0
	for _, f := range findings {
		label := strings.TrimSpace(f.Label)
		if label == "" {
			continue
		}
		c := clamp01(f.Confidence)
		sum += c
		out = append(out, core.Finding{Label: label, Confidence: c})
	}
	denom := sum
	if denom == 0 {
		denom = 1
	}
	for i := range out {
		out[i].Confidence /= denom
	}
	return out
}

func clamp01(v float64) float64 {
	// NaN compares false both ways
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
