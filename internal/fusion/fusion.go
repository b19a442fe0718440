package fusion

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/hunterwarburton/medsage/internal/core"
)

// Params are the tunable fusion constants.
type Params struct {
	TextWeight        float64
	ImageWeight       float64
	SeverityThreshold float64
	ModerateThreshold float64
	TopN              int
}

// DefaultParams returns the stock weighting and risk thresholds.
func DefaultParams() Params {
	return Params{
		TextWeight:        0.5,
		ImageWeight:       0.5,
		SeverityThreshold: 0.5,
		ModerateThreshold: 0.6,
		TopN:              3,
	}
}

// PrototypeSource supplies the condition prototypes of a modality.
type PrototypeSource interface {
	Get(ctx context.Context, modality core.Modality) ([]core.ConditionPrototype, error)
}

// Engine fuses text similarity with image findings.
type Engine struct {
	prototypes PrototypeSource
	params     Params
}

// NewEngine creates a fusion engine.
func NewEngine(prototypes PrototypeSource, params Params) *Engine {
	if params.TopN <= 0 {
		params.TopN = 3
	}
	return &Engine{prototypes: prototypes, params: params}
}

// Params returns the engine's constants.
func (e *Engine) Params() Params {
	return e.params
}

// Fuse ranks the modality's conditions. Prototype build failures propagate.
func (e *Engine) Fuse(ctx context.Context, modality core.Modality, textEmbedding []float32, findings []core.Finding) (*core.FusionResult, error) {
	protos, err := e.prototypes.Get(ctx, modality)
	if err != nil {
		return nil, fmt.Errorf("loading %s prototypes: %w", modality, err)
	}
	return Fuse(modality, protos, textEmbedding, findings, e.params), nil
}

// Fuse is the pure fusion step over a prototype set.
func Fuse(modality core.Modality, protos []core.ConditionPrototype, textEmbedding []float32, findings []core.Finding, p Params) *core.FusionResult {
	labels := lo.Map(protos, func(pr core.ConditionPrototype, _ int) string { return pr.Label })

	textDist := TextDistribution(protos, textEmbedding)
	imageDist := ImageDistribution(modality, labels, findings)

	fused := make([]float64, len(labels))
	for i := range labels {
		fused[i] = p.TextWeight*textDist[i] + p.ImageWeight*imageDist[i]
	}
	probs := Softmax(fused)

	order := make([]int, len(labels))
	for i := range order {
		order[i] = i
	}
	// ties keep label-set order
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	probabilities := make([]core.ModalityScore, len(labels))
	for rank, i := range order {
		probabilities[rank] = core.ModalityScore{Label: labels[i], Value: probs[i]}
	}

	n := p.TopN
	if n <= 0 || n > len(probabilities) {
		n = len(probabilities)
	}
	ranked := lo.Map(probabilities[:n], func(s core.ModalityScore, _ int) core.RankedCondition {
		return core.RankedCondition{Label: s.Label, Confidence: s.Value}
	})

	return &core.FusionResult{
		Ranked:            ranked,
		Risk:              DetermineRisk(ranked, p),
		Probabilities:     probabilities,
		TextDistribution:  toScores(labels, textDist),
		ImageDistribution: toScores(labels, imageDist),
	}
}

// TextDistribution min-max normalizes the dot products of each prototype with
// the text embedding, then rescales them to sum to 1.
func TextDistribution(protos []core.ConditionPrototype, textEmbedding []float32) []float64 {
	raw := make([]float64, len(protos))
	for i, p := range protos {
		raw[i] = dot(p.Embedding, textEmbedding)
	}
	if len(raw) == 0 {
		return raw
	}

	low, high := lo.Min(raw), lo.Max(raw)
	denom := high - low
	if denom == 0 {
		denom = 1
	}
	for i, v := range raw {
		raw[i] = (v - low) / denom
	}
	return normalizeSum(raw)
}

// ImageDistribution maps findings onto labels, summing duplicates, and
// rescales to sum to 1. No findings yields all zeros.
func ImageDistribution(modality core.Modality, labels []string, findings []core.Finding) []float64 {
	index := make(map[string]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	dist := make([]float64, len(labels))
	for _, f := range findings {
		canonical, ok := core.CanonicalLabel(modality, f.Label)
		if !ok {
			continue
		}
		if i, ok := index[canonical]; ok {
			dist[i] += f.Confidence
		}
	}
	return normalizeSum(dist)
}

// Softmax exponentiates and normalizes v.
func Softmax(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	m := lo.Max(v)
	sum := 0.0
	for i, x := range v {
		out[i] = math.Exp(x - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// DetermineRisk is high when a high-severity label in ranked exceeds the
// severity threshold, moderate when the top confidence exceeds the moderate
// threshold, and low otherwise.
func DetermineRisk(ranked []core.RankedCondition, p Params) core.RiskLevel {
	for _, r := range ranked {
		if core.IsHighSeverity(r.Label) && r.Confidence > p.SeverityThreshold {
			return core.RiskHigh
		}
	}
	if len(ranked) > 0 && ranked[0].Confidence > p.ModerateThreshold {
		return core.RiskModerate
	}
	return core.RiskLow
}

func normalizeSum(v []float64) []float64 {
	sum := lo.Sum(v)
	if sum == 0 {
		sum = 1
	}
	for i := range v {
		v[i] /= sum
	}
	return v
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	s := 0.0
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func toScores(labels []string, v []float64) []core.ModalityScore {
	out := make([]core.ModalityScore, len(labels))
	for i, l := range labels {
		out[i] = core.ModalityScore{Label: l, Value: v[i]}
	}
	return out
}
