package diagnose

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/fusion"
	"github.com/hunterwarburton/medsage/internal/llm"
)

type staticPrototypes struct{}

// Get gives label i the unit vector e_i.
func (staticPrototypes) Get(_ context.Context, m core.Modality) ([]core.ConditionPrototype, error) {
	labels := core.Labels(m)
	if len(labels) == 0 {
		return nil, core.ErrUnknownModality
	}
	out := make([]core.ConditionPrototype, len(labels))
	for i, l := range labels {
		vec := make([]float32, len(labels))
		vec[i] = 1
		out[i] = core.ConditionPrototype{Label: l, Embedding: vec, Modality: m}
	}
	return out, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return e.vec, e.err }
func (e fakeEmbedder) ModelID() string                                  { return "fake" }

type fakeVision struct {
	report *llm.VisionReport
	err    error
	calls  int
}

func (v *fakeVision) Analyze(context.Context, llm.VisionRequest) (*llm.VisionReport, error) {
	v.calls++
	return v.report, v.err
}

func newService(v llm.VisionService, e core.EmbedService) *Service {
	return NewService(v, e, fusion.NewEngine(staticPrototypes{}, fusion.DefaultParams()))
}

// towards returns a text embedding aligned with label index i of m.
func towards(m core.Modality, i int) []float32 {
	vec := make([]float32, len(core.Labels(m)))
	vec[i] = 1
	return vec
}

func TestTextOnlyCaseHasZeroImageDistribution(t *testing.T) {
	vision := &fakeVision{}
	svc := newService(vision, fakeEmbedder{vec: towards(core.ModalitySkin, 0)})

	resp, err := svc.Diagnose(context.Background(), Request{Symptoms: "no image", Modality: "skin"})
	require.NoError(t, err)
	assert.Equal(t, 0, vision.calls)

	for _, s := range resp.ImageDistribution {
		assert.Zero(t, s.Value)
	}
	require.NotEmpty(t, resp.Conditions)
	assert.Equal(t, "Melanoma", resp.Conditions[0].Label)
	assert.Empty(t, resp.ImageFindings)
	assert.NotNil(t, resp.ImageFindings)

	_, err = uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
	assert.False(t, resp.CreatedAt.IsZero())
}

func TestVisionTransientFailureIsSurfaced(t *testing.T) {
	vision := &fakeVision{err: fmt.Errorf("%w: connection refused", core.ErrTransientNetwork)}
	svc := newService(vision, fakeEmbedder{vec: towards(core.ModalityChest, 1)})

	_, err := svc.Diagnose(context.Background(), Request{Symptoms: "cough", Modality: "chest", Image: []byte{1, 2, 3}})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransientNetwork)
}

func TestMalformedVisionReplyDegrades(t *testing.T) {
	vision := &fakeVision{report: llm.ParseVisionReply("not json at all")}
	svc := newService(vision, fakeEmbedder{vec: towards(core.ModalityChest, 1)})

	resp, err := svc.Diagnose(context.Background(), Request{Symptoms: "fever and cough", Modality: "chest", Image: []byte{1}})
	require.NoError(t, err)
	assert.Empty(t, resp.ImageFindings)
	assert.Equal(t, llm.DefaultSummary, resp.Summary)
	assert.Equal(t, "not json at all", resp.Report)
	assert.Equal(t, "Pneumonia", resp.Conditions[0].Label)
}

func TestImageFindingsDriveRanking(t *testing.T) {
	vision := &fakeVision{report: &llm.VisionReport{
		Summary:  "Pigmented lesion with irregular border",
		Findings: []core.Finding{{Label: "melanoma", Confidence: 1}},
		Parsed:   true,
	}}
	svc := newService(vision, fakeEmbedder{vec: towards(core.ModalitySkin, 0)})

	resp, err := svc.Diagnose(context.Background(), Request{Symptoms: "dark mole", Modality: "skin", Image: []byte{1}, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Melanoma", resp.Conditions[0].Label)
	assert.Equal(t, "u1", resp.UserID)
	assert.Contains(t, resp.Explanation, "Most likely condition: Melanoma")
	assert.Contains(t, resp.Explanation, "Pigmented lesion")
}

func TestEmbeddingFailure(t *testing.T) {
	boom := errors.New("embedder down")
	vision := &fakeVision{report: &llm.VisionReport{Summary: "s", Findings: []core.Finding{{Label: "Cardiomegaly", Confidence: 0.9}}, Parsed: true}}

	resp, err := newService(vision, fakeEmbedder{err: boom}).Diagnose(context.Background(),
		Request{Symptoms: "short of breath", Modality: "chest", Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "Cardiomegaly", resp.Conditions[0].Label)

	_, err = newService(&fakeVision{}, fakeEmbedder{err: boom}).Diagnose(context.Background(),
		Request{Symptoms: "short of breath", Modality: "chest"})
	assert.ErrorIs(t, err, boom)
}

func TestRequestValidation(t *testing.T) {
	svc := newService(&fakeVision{}, fakeEmbedder{})

	_, err := svc.Diagnose(context.Background(), Request{Symptoms: "x", Modality: "retina"})
	assert.ErrorIs(t, err, core.ErrUnknownModality)

	_, err = svc.Diagnose(context.Background(), Request{Symptoms: "  ", Modality: "skin"})
	assert.ErrorIs(t, err, core.ErrEmptyQuery)
}

func TestConfidenceBand(t *testing.T) {
	assert.Equal(t, "High confidence", ConfidenceBand(0.8))
	assert.Equal(t, "Moderate confidence", ConfidenceBand(0.6))
	assert.Equal(t, "Moderate confidence", ConfidenceBand(0.79))
	assert.Equal(t, "Low confidence", ConfidenceBand(0.59))
}

func TestExplain(t *testing.T) {
	assert.Equal(t, "No condition could be ranked for this case.", Explain(nil, ""))

	res := &core.FusionResult{
		Ranked: []core.RankedCondition{{Label: "Pneumonia", Confidence: 0.83}, {Label: "Normal", Confidence: 0.1}},
		Risk:   core.RiskModerate,
	}
	got := Explain(res, llm.DefaultSummary)
	assert.Equal(t, "Most likely condition: Pneumonia (High confidence, 83%). Risk level: moderate. Also consider: Normal (10%).", got)
}
