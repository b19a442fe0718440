package search

import (
	"context"
	"strings"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/relevance"
)

type knowledgeEntry struct {
	ID       string
	Dataset  string
	Title    string
	Content  string
	Snippet  string
	Source   string
	Keywords []string
}

var knowledgeBase = []knowledgeEntry{
	{
		ID:       "chest_pain_1",
		Dataset:  "medical-knowledge",
		Title:    "Chest Pain Evaluation",
		Content:  "Chest pain can be caused by heart disease, acid reflux, or muscle strain",
		Snippet:  "Chest pain evaluation should consider cardiac, gastrointestinal, and musculoskeletal causes",
		Source:   "medical_guidelines.txt",
		Keywords: []string{"chest", "pain", "heart", "cardiac", "reflux", "muscle"},
	},
	{
		ID:       "respiratory_1",
		Dataset:  "symptom-checker",
		Title:    "Respiratory Symptoms",
		Content:  "Fever, cough, and shortness of breath may indicate respiratory infection",
		Snippet:  "Respiratory symptoms including fever, cough, dyspnea require medical evaluation",
		Source:   "respiratory_symptoms.txt",
		Keywords: []string{"fever", "cough", "breath", "respiratory", "infection", "pneumonia"},
	},
	{
		ID:       "diabetes_1",
		Dataset:  "diabetes-info",
		Title:    "Diabetes Symptoms",
		Content:  "Diabetes symptoms include excessive thirst, frequent urination, and blurred vision",
		Snippet:  "Classic diabetes symptoms: polydipsia, polyuria, blurred vision, fatigue",
		Source:   "diabetes_symptoms.txt",
		Keywords: []string{"diabetes", "thirst", "urination", "vision", "blood", "sugar", "glucose"},
	},
	{
		ID:       "palpitations_1",
		Dataset:  "cardiology",
		Title:    "Heart Palpitations",
		Content:  "Heart palpitations can be caused by anxiety, caffeine, or arrhythmia",
		Snippet:  "Palpitations may result from anxiety, stimulants, or cardiac arrhythmias",
		Source:   "heart_conditions.txt",
		Keywords: []string{"heart", "palpitations", "anxiety", "caffeine", "arrhythmia", "rhythm"},
	},
	{
		ID:       "headache_1",
		Dataset:  "neurology",
		Title:    "Headache Types",
		Content:  "Headaches can be tension-type, migraine, or secondary to other conditions",
		Snippet:  "Headache evaluation: tension-type, migraine, cluster, secondary causes",
		Source:   "headache_types.txt",
		Keywords: []string{"headache", "migraine", "tension", "pain", "head", "neurological"},
	},
	{
		ID:       "skin_rash_1",
		Dataset:  "dermatology",
		Title:    "Skin Rash Differential",
		Content:  "Skin rashes may indicate allergic reactions, infections, or autoimmune conditions",
		Snippet:  "Skin rash differential: allergic, infectious, autoimmune, drug-related",
		Source:   "skin_conditions.txt",
		Keywords: []string{"skin", "rash", "allergy", "infection", "dermatitis", "eczema"},
	},
	{
		ID:       "abdominal_pain_1",
		Dataset:  "gastroenterology",
		Title:    "Abdominal Pain Assessment",
		Content:  "Abdominal pain location and character help determine underlying cause",
		Snippet:  "Abdominal pain assessment by location, quality, timing, associated symptoms",
		Source:   "abdominal_pain.txt",
		Keywords: []string{"abdominal", "pain", "stomach", "nausea", "digestive", "gastric"},
	},
	{
		ID:       "depression_1",
		Dataset:  "psychiatry",
		Title:    "Depression Symptoms",
		Content:  "Depression symptoms include persistent sadness, loss of interest, and fatigue",
		Snippet:  "Major depression: persistent low mood, anhedonia, fatigue, sleep changes",
		Source:   "mental_health.txt",
		Keywords: []string{"depression", "anxiety", "mood", "mental", "sadness", "stress"},
	},
}

// BuiltinStage scores a small curated knowledge base. It is the last stage
// and comes back empty only when no entry matches at all.
type BuiltinStage struct{}

// NewBuiltinStage creates the built-in knowledge base stage.
func NewBuiltinStage() *BuiltinStage { return &BuiltinStage{} }

func (s *BuiltinStage) Name() core.Strategy { return core.StrategyBuiltin }

func (s *BuiltinStage) TryRetrieve(_ context.Context, q Query) ([]core.SearchResult, bool) {
	var hits []core.SearchResult
	for _, e := range knowledgeBase {
		text := e.Content + " " + strings.Join(e.Keywords, " ")
		score := relevance.ScoreWithSnippet(text, e.Snippet, q.Text)
		if score <= 0 {
			continue
		}
		hits = append(hits, core.SearchResult{
			ID:             e.ID,
			Dataset:        e.Dataset,
			Type:           string(core.RecordText),
			Content:        e.Content,
			Snippet:        e.Snippet,
			RelevanceScore: score,
			Title:          e.Title,
			Metadata:       map[string]interface{}{"source": e.Source},
		})
	}
	return hits, len(hits) > 0
}
