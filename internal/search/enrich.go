package search

import (
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hunterwarburton/medsage/internal/core"
)

// MaxSnippetRunes bounds enriched snippets, ellipsis included.
const MaxSnippetRunes = 200

var categories = map[string]string{
	"breast-cancer":          "Oncology",
	"diabetes":               "Endocrinology",
	"stroke":                 "Neurology",
	"medical-transcriptions": "Clinical Notes",
	"pubmedqa":               "Research",
	"brain-scans":            "Neuroimaging",
	"covid-xray":             "Radiology",
	"ecg-heartbeat":          "Cardiology",
	"skin-lesions":           "Dermatology",
	"medical-knowledge":      "General Medicine",
	"guidelines":             "Guidelines",
	"symptom-checker":        "Symptoms",
	"diabetes-info":          "Endocrinology",
	"cardiology":             "Cardiology",
	"neurology":              "Neurology",
	"dermatology":            "Dermatology",
	"gastroenterology":       "Gastroenterology",
	"psychiatry":             "Mental Health",
}

type titleFunc func(r *core.SearchResult) string

var titles = map[string]titleFunc{
	"breast-cancer": func(r *core.SearchResult) string {
		return withID("Breast Cancer Case", r.Metadata["id"])
	},
	"diabetes": func(r *core.SearchResult) string {
		if age := cast.ToString(r.Metadata["Age"]); age != "" {
			return "Diabetes Risk Profile (age " + age + ")"
		}
		return "Diabetes Risk Profile"
	},
	"stroke": func(r *core.SearchResult) string {
		if age := cast.ToString(r.Metadata["age"]); age != "" {
			return "Stroke Risk Assessment (age " + age + ")"
		}
		return "Stroke Risk Assessment"
	},
	"medical-transcriptions": func(r *core.SearchResult) string {
		if name := strings.TrimSpace(cast.ToString(r.Metadata["sample_name"])); name != "" {
			return "Transcription: " + name
		}
		if specialty := strings.TrimSpace(cast.ToString(r.Metadata["medical_specialty"])); specialty != "" {
			return specialty + " Transcription"
		}
		return "Medical Transcription"
	},
	"pubmedqa": func(r *core.SearchResult) string {
		return "Research Question: " + truncateRunes(r.Snippet, 80)
	},
}

// Enricher fills the display fields of a search result.
type Enricher struct {
	datasetsDir string
}

// NewEnricher creates an enricher that links file-backed hits relative to
// datasetsDir.
func NewEnricher(datasetsDir string) *Enricher {
	return &Enricher{datasetsDir: datasetsDir}
}

// Enrich sets title, category, link and relevance percentage, and truncates
// the snippet.
func (e *Enricher) Enrich(r *core.SearchResult) {
	if r.Title == "" {
		r.Title = e.title(r)
	}
	if r.Category == "" {
		r.Category = categoryFor(r)
	}
	if r.Link == "" && r.FilePath != "" {
		r.Link = e.link(r)
	}
	r.RelevanceScore = clamp01(r.RelevanceScore)
	r.Relevance = fmt.Sprintf("%d%%", int(math.Round(r.RelevanceScore*100)))
	r.Snippet = truncateRunes(strings.TrimSpace(r.Snippet), MaxSnippetRunes)
}

func (e *Enricher) title(r *core.SearchResult) string {
	if fn, ok := titles[r.Dataset]; ok {
		return fn(r)
	}
	name := displayName(r.Dataset)
	if r.Type == string(core.RecordImage) {
		if cat := cast.ToString(r.Metadata["category"]); cat != "" {
			return fmt.Sprintf("%s Image: %s", name, displayName(cat))
		}
		return name + " Image"
	}
	if r.FilePath != "" {
		return fmt.Sprintf("%s: %s", name, filepath.Base(r.FilePath))
	}
	return name + " Record"
}

func categoryFor(r *core.SearchResult) string {
	if c, ok := categories[r.Dataset]; ok {
		return c
	}
	switch r.Type {
	case string(core.RecordImage):
		return "Medical Imaging"
	case string(core.RecordTabular):
		return "Clinical Data"
	default:
		return "General"
	}
}

func (e *Enricher) link(r *core.SearchResult) string {
	if e.datasetsDir != "" {
		if rel, err := filepath.Rel(e.datasetsDir, r.FilePath); err == nil && !strings.HasPrefix(rel, "..") {
			return path.Join("/datasets", filepath.ToSlash(rel))
		}
	}
	return path.Join("/datasets", r.Dataset, filepath.Base(r.FilePath))
}

func displayName(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return cases.Title(language.English).String(strings.ToLower(s))
}

func withID(prefix string, id interface{}) string {
	if s := cast.ToString(id); s != "" {
		return prefix + " #" + s
	}
	return prefix
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return min(v, 1)
}
