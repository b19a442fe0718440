package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/hunterwarburton/medsage/internal/dataset"
	"github.com/hunterwarburton/medsage/internal/diagnose"
	"github.com/hunterwarburton/medsage/internal/search"
)

// FormatPage renders a result page as chat text.
func FormatPage(p *search.Page) string {
	if p == nil || len(p.Results) == 0 {
		return "No matching medical information found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q (%d found, page %d of %d, via %s):\n", p.Query, p.Total, p.Page, p.TotalPages, p.Strategy)
	offset := (p.Page - 1) * p.Limit
	for i, r := range p.Results {
		fmt.Fprintf(&b, "\n%d. %s [%s, %s]\n", offset+i+1, r.Title, r.Category, r.Relevance)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.Link != "" {
			fmt.Fprintf(&b, "   %s\n", r.Link)
		}
	}
	if p.HasMore {
		fmt.Fprintf(&b, "\nMore results on page %d.", p.Page+1)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDiagnosis renders a diagnostic response as chat text.
func FormatDiagnosis(r *diagnose.Response) string {
	if r == nil {
		return "No diagnostic result."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Risk: %s\n", strings.ToUpper(string(r.Risk)))
	b.WriteString("\nRanked conditions:\n")
	for i, c := range r.Conditions {
		fmt.Fprintf(&b, "%d. %s: %d%%\n", i+1, c.Label, percent(c.Confidence))
	}
	if len(r.ImageFindings) > 0 {
		b.WriteString("\nImage findings:\n")
		for _, f := range r.ImageFindings {
			fmt.Fprintf(&b, "- %s: %d%%\n", f.Label, percent(f.Confidence))
		}
	}
	fmt.Fprintf(&b, "\n%s\n\nRequest %s. This is decision support, not a diagnosis.", r.Explanation, r.RequestID)
	return b.String()
}

// FormatStats renders index statistics as chat text.
func FormatStats(st dataset.Stats) string {
	if !st.Loaded {
		return "Datasets are not loaded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d records indexed", st.TotalItems)
	if !st.LoadedAt.IsZero() {
		fmt.Fprintf(&b, " (loaded %s)", st.LoadedAt.Format("2006-01-02 15:04:05"))
	}
	b.WriteString("\n")
	if len(st.ByType) > 0 {
		types := lo.Keys(st.ByType)
		sort.Strings(types)
		parts := lo.Map(types, func(t string, _ int) string { return fmt.Sprintf("%s %d", t, st.ByType[t]) })
		fmt.Fprintf(&b, "By type: %s\n", strings.Join(parts, ", "))
	}
	names := lo.Keys(st.Datasets)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %d\n", name, st.Datasets[name].Total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
