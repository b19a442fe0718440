// Package diagnose orchestrates one diagnostic request: vision analysis of
// the image, embedding of the symptom text and fusion of both.
package diagnose

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/llm"
	"github.com/hunterwarburton/medsage/internal/logger"
)

// Fuser ranks a modality's conditions from text and image evidence.
// *fusion.Engine satisfies it.
type Fuser interface {
	Fuse(ctx context.Context, modality core.Modality, textEmbedding []float32, findings []core.Finding) (*core.FusionResult, error)
}

// Request is one diagnostic case.
type Request struct {
	Symptoms string        `json:"symptoms"`
	Modality core.Modality `json:"modality"`
	Image    []byte        `json:"-"`
	UserID   string        `json:"userId,omitempty"`
}

// Response is the diagnostic result handed back to upstream callers.
type Response struct {
	RequestID         string                 `json:"requestId"`
	UserID            string                 `json:"userId,omitempty"`
	Modality          core.Modality          `json:"modality"`
	Risk              core.RiskLevel         `json:"risk"`
	Conditions        []core.RankedCondition `json:"conditions"`
	ImageFindings     []core.Finding         `json:"imageFindings"`
	Explanation       string                 `json:"explanation"`
	Summary           string                 `json:"summary,omitempty"`
	Report            string                 `json:"report,omitempty"`
	Probabilities     []core.ModalityScore   `json:"probabilities"`
	TextDistribution  []core.ModalityScore   `json:"textDistribution"`
	ImageDistribution []core.ModalityScore   `json:"imageDistribution"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// Service runs diagnostic requests.
type Service struct {
	vision   llm.VisionService
	embedder core.EmbedService
	fuser    Fuser
	now      func() time.Time
}

// NewService wires the vision client, the text embedder and the fusion engine.
func NewService(vision llm.VisionService, embedder core.EmbedService, fuser Fuser) *Service {
	return &Service{vision: vision, embedder: embedder, fuser: fuser, now: time.Now}
}

// Diagnose analyzes the case. A vision endpoint failure is returned to the
// caller; an unparsable vision reply degrades to no findings. When the
// symptom text cannot be embedded the image evidence alone is fused, and
// only a case with neither signal fails.
func (s *Service) Diagnose(ctx context.Context, req Request) (*Response, error) {
	modality, err := core.ParseModality(string(req.Modality))
	if err != nil {
		return nil, err
	}
	symptoms := strings.TrimSpace(req.Symptoms)
	if symptoms == "" && len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: symptoms or an image are required", core.ErrEmptyQuery)
	}

	requestID := uuid.NewString()
	logger.VisionInfo("Diagnose %s: modality=%s image=%d bytes user=%s", requestID, modality, len(req.Image), req.UserID)

	var (
		report    *llm.VisionReport
		embedding []float32
		embedErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(req.Image) > 0 && s.vision != nil {
		g.Go(func() error {
			r, err := s.vision.Analyze(gctx, llm.VisionRequest{Image: req.Image, Modality: modality})
			if err != nil {
				return fmt.Errorf("vision analysis: %w", err)
			}
			report = r
			return nil
		})
	}
	if symptoms != "" {
		g.Go(func() error {
			// embedding failures degrade rather than fail the request
			embedding, embedErr = s.embedder.Embed(gctx, symptoms)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.VisionError("Diagnose %s failed: %v", requestID, err)
		return nil, err
	}
	if embedErr != nil {
		if report == nil {
			return nil, fmt.Errorf("embedding symptoms: %w", embedErr)
		}
		logger.VisionWarn("Diagnose %s: symptom embedding failed, using image evidence only: %v", requestID, embedErr)
		embedding = nil
	}
	if report == nil {
		report = &llm.VisionReport{Summary: llm.DefaultSummary, Findings: []core.Finding{}}
	}
	if !report.Parsed && len(req.Image) > 0 {
		logger.VisionWarn("Diagnose %s: vision reply was not parseable, continuing without findings", requestID)
	}

	result, err := s.fuser.Fuse(ctx, modality, embedding, report.Findings)
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID:         requestID,
		UserID:            req.UserID,
		Modality:          modality,
		Risk:              result.Risk,
		Conditions:        result.Ranked,
		ImageFindings:     report.Findings,
		Explanation:       Explain(result, report.Summary),
		Summary:           report.Summary,
		Report:            report.Report,
		Probabilities:     result.Probabilities,
		TextDistribution:  result.TextDistribution,
		ImageDistribution: result.ImageDistribution,
		CreatedAt:         s.now().UTC(),
	}, nil
}

// ConfidenceBand names the band a confidence falls in.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "High confidence"
	case confidence >= 0.6:
		return "Moderate confidence"
	default:
		return "Low confidence"
	}
}

// Explain summarizes a fusion result for a clinician.
func Explain(result *core.FusionResult, visionSummary string) string {
	if result == nil || len(result.Ranked) == 0 {
		return "No condition could be ranked for this case."
	}
	top := result.Ranked[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Most likely condition: %s (%s, %d%%). Risk level: %s.",
		top.Label, ConfidenceBand(top.Confidence), int(math.Round(top.Confidence*100)), result.Risk)
	if len(result.Ranked) > 1 {
		others := make([]string, 0, len(result.Ranked)-1)
		for _, r := range result.Ranked[1:] {
			others = append(others, fmt.Sprintf("%s (%d%%)", r.Label, int(math.Round(r.Confidence*100))))
		}
		fmt.Fprintf(&b, " Also consider: %s.", strings.Join(others, ", "))
	}
	if s := strings.TrimSpace(visionSummary); s != "" && s != llm.DefaultSummary {
		fmt.Fprintf(&b, " Image assessment: %s", s)
	}
	return b.String()
}
