package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var modalityLabels = map[Modality][]string{
	ModalitySkin: {
		"Melanoma",
		"Basal Cell Carcinoma",
		"Squamous Cell Carcinoma",
		"Actinic Keratosis",
		"Benign Keratosis",
		"Dermatofibroma",
		"Melanocytic Nevus",
		"Vascular Lesion",
	},
	ModalityChest: {
		"Normal",
		"Pneumonia",
		"Covid-19",
		"Tuberculosis",
		"Lung Opacity",
		"Pleural Effusion",
		"Cardiomegaly",
	},
}

// highSeverity lists the labels that escalate risk when they rank highly.
var highSeverity = map[string]struct{}{
	LabelKey("Melanoma"):                {},
	LabelKey("Basal Cell Carcinoma"):    {},
	LabelKey("Squamous Cell Carcinoma"): {},
	LabelKey("Pneumonia"):               {},
	LabelKey("Covid-19"):                {},
	LabelKey("Tuberculosis"):            {},
}

var modalityAliases = map[string]Modality{
	"skin":        ModalitySkin,
	"dermatology": ModalitySkin,
	"dermoscopy":  ModalitySkin,
	"chest":       ModalityChest,
	"xray":        ModalityChest,
	"x-ray":       ModalityChest,
	"chest_xray":  ModalityChest,
	"chest-xray":  ModalityChest,
}

// ParseModality resolves a user supplied modality tag.
func ParseModality(s string) (Modality, error) {
	m, ok := modalityAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownModality)
	}
	return m, nil
}

// Modalities returns all supported modalities in a stable order.
func Modalities() []Modality {
	return []Modality{ModalitySkin, ModalityChest}
}

// Labels returns a copy of the canonical label set for a modality.
func Labels(m Modality) []string {
	src := modalityLabels[m]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// IsHighSeverity reports whether a label belongs to the fixed high-severity set.
func IsHighSeverity(label string) bool {
	_, ok := highSeverity[LabelKey(label)]
	return ok
}

// NormalizeLabel converts model output such as "basal_cell_carcinoma" into
// the display form "Basal Cell Carcinoma".
func NormalizeLabel(label string) string {
	s := norm.NFKC.String(label)
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	// Casers carry state and must not be shared across goroutines.
	return cases.Title(language.English).String(s)
}

// LabelKey is the comparison key for labels: letters and digits only, lower case.
func LabelKey(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(NormalizeLabel(label)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalLabel maps a free-form label onto the modality's label set.
func CanonicalLabel(m Modality, label string) (string, bool) {
	key := LabelKey(label)
	if key == "" {
		return "", false
	}
	for _, l := range modalityLabels[m] {
		if LabelKey(l) == key {
			return l, true
		}
	}
	return "", false
}
