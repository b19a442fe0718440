package dataset

import (
	"fmt"
	"strings"
)

// Kind is how a corpus directory is read.
type Kind int

const (
	KindTabular Kind = iota
	KindTranscription
	KindQA
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindTabular:
		return "tabular"
	case KindTranscription:
		return "transcription"
	case KindQA:
		return "qa"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Config describes one known corpus directory.
type Config struct {
	Name string
	Kind Kind

	// Tabular and transcription corpora.
	TextColumns     []string
	MetadataColumns []string
	// Context is appended to tabular search text, followed by k=v metadata pairs.
	Context string

	// Image corpora.
	Categories   []string
	ImageFormats []string
	// Describe adds modality context to an image record's search text.
	Describe func(category string) string
}

// DefaultConfigs returns the corpora the builder knows about.
func DefaultConfigs() []Config {
	return []Config{
		{
			Name:            "breast-cancer",
			Kind:            KindTabular,
			TextColumns:     []string{"diagnosis"},
			MetadataColumns: []string{"id", "radius_mean", "texture_mean", "perimeter_mean", "area_mean"},
			Context:         "Patient with breast mass characteristics",
		},
		{
			Name:            "diabetes",
			Kind:            KindTabular,
			TextColumns:     []string{"Outcome"},
			MetadataColumns: []string{"Pregnancies", "Glucose", "BloodPressure", "BMI", "Age"},
			Context:         "Diabetes risk factors",
		},
		{
			Name:            "stroke",
			Kind:            KindTabular,
			TextColumns:     []string{"stroke"},
			MetadataColumns: []string{"age", "hypertension", "heart_disease", "work_type", "smoking_status"},
			Context:         "Stroke risk assessment",
		},
		{
			Name:            "medical-transcriptions",
			Kind:            KindTranscription,
			TextColumns:     []string{"transcription"},
			MetadataColumns: []string{"medical_specialty", "sample_name", "description"},
		},
		{
			Name: "pubmedqa",
			Kind: KindQA,
		},
		{
			Name:         "brain-scans",
			Kind:         KindImage,
			Categories:   []string{"glioma_tumor", "meningioma_tumor", "no_tumor", "pituitary_tumor"},
			ImageFormats: []string{".jpg", ".jpeg", ".png", ".bmp"},
			Describe: func(category string) string {
				return "Brain MRI scan showing " + strings.ReplaceAll(category, "_", " ")
			},
		},
		{
			Name:         "covid-xray",
			Kind:         KindImage,
			Categories:   []string{"NORMAL", "PNEUMONIA", "COVID"},
			ImageFormats: []string{".jpg", ".jpeg", ".png"},
			Describe: func(category string) string {
				return "Chest X-ray image classified as " + category
			},
		},
		{
			Name:         "ecg-heartbeat",
			Kind:         KindImage,
			Categories:   []string{"normal", "abnormal"},
			ImageFormats: []string{".png", ".jpg"},
			Describe: func(category string) string {
				return "ECG heartbeat trace labelled " + category
			},
		},
		{
			Name:         "skin-lesions",
			Kind:         KindImage,
			Categories:   []string{"melanoma", "nevus", "keratosis", "carcinoma", "benign"},
			ImageFormats: []string{".jpg", ".jpeg", ".png"},
			Describe: func(category string) string {
				return "Dermoscopy image of a skin lesion showing " + category
			},
		},
	}
}

// Names lists the dataset names of configs in order.
func Names(configs []Config) []string {
	out := make([]string, len(configs))
	for i, c := range configs {
		out[i] = c.Name
	}
	return out
}
