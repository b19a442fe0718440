package llm

import (
	"context"

	"github.com/hunterwarburton/medsage/internal/core"
)

// VisionRequest is one image analysis call.
type VisionRequest struct {
	Image    []byte
	Modality core.Modality
	// Model overrides the client's default model when set.
	Model string
}

// VisionReport is the normalized reply of the vision model. Its shape is the
// same whether or not the raw reply could be parsed.
type VisionReport struct {
	Summary  string         `json:"summary"`
	Findings []core.Finding `json:"findings"`
	Risk     string         `json:"risk,omitempty"`
	Report   string         `json:"report"`

	// Parsed is false when no extractor recovered JSON from the reply.
	Parsed bool `json:"-"`
}

// VisionService defines the interface for image analysis backends.
type VisionService interface {
	// Analyze sends the image to the model and returns normalized findings.
	Analyze(ctx context.Context, req VisionRequest) (*VisionReport, error)
}
