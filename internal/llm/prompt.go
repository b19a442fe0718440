package llm

import (
	"fmt"
	"strings"

	"github.com/hunterwarburton/medsage/internal/core"
)

const visionSystemPrompt = "You are a careful medical imaging assistant. " +
	"You never invent findings and you answer with a single JSON object only."

// PromptGenerator builds the prompts sent to the vision model.
type PromptGenerator struct {
	// LowConfidence is the ceiling the model is told to use for labels it cannot see.
	LowConfidence float64
}

// NewPromptGenerator creates a new prompt generator.
func NewPromptGenerator() *PromptGenerator {
	return &PromptGenerator{LowConfidence: 0.1}
}

// SystemPrompt returns the system message.
func (pg *PromptGenerator) SystemPrompt() string {
	return visionSystemPrompt
}

// UserPrompt returns the instruction that accompanies the image.
func (pg *PromptGenerator) UserPrompt(modality core.Modality) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Analyze this %s image.\n\n", modalityNoun(modality)))
	builder.WriteString("Return strict JSON with exactly these fields:\n")
	builder.WriteString(`{"summary": string, "findings": [{"label": string, "confidence": number}], "risk": "low"|"moderate"|"high", "report": string}`)
	builder.WriteString("\n\n")

	builder.WriteString("Use only these labels:\n")
	for _, label := range core.Labels(modality) {
		builder.WriteString("- ")
		builder.WriteString(label)
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(fmt.Sprintf("Confidence is a number between 0 and 1. Give %.1f or less to any label that is not visible in the image.\n", pg.LowConfidence))
	builder.WriteString("The report is a short plain-language description for a clinician. Do not wrap the JSON in markdown.")

	return builder.String()
}

func modalityNoun(m core.Modality) string {
	switch m {
	case core.ModalitySkin:
		return "dermatology (skin lesion)"
	case core.ModalityChest:
		return "chest X-ray"
	default:
		return string(m)
	}
}
