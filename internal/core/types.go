package core

// Modality is the kind of clinical image driving which label set applies.
type Modality string

const (
	ModalitySkin  Modality = "skin"
	ModalityChest Modality = "chest"
)

// ConditionPrototype is the embedding anchor for one condition label.
type ConditionPrototype struct {
	Label     string    `json:"label"`
	Embedding []float32 `json:"embedding"`
	Modality  Modality  `json:"modality"`
}

// ModalityScore is one label's value within a per-modality distribution.
type ModalityScore struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Finding is a single label/confidence pair reported by the vision model.
type Finding struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// RiskLevel is the coarse triage bucket attached to a fused ranking.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RankedCondition is one entry of a fused ranking.
type RankedCondition struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// FusionResult is the outcome of fusing text and image evidence.
// Ranked is a prefix of Probabilities sorted by descending confidence;
// Probabilities covers the full label set and sums to 1.
type FusionResult struct {
	Ranked            []RankedCondition `json:"ranked"`
	Risk              RiskLevel         `json:"risk"`
	Probabilities     []ModalityScore   `json:"probabilities"`
	TextDistribution  []ModalityScore   `json:"textDistribution"`
	ImageDistribution []ModalityScore   `json:"imageDistribution"`
}

// RecordType classifies a corpus entry.
type RecordType string

const (
	RecordText    RecordType = "text"
	RecordImage   RecordType = "image"
	RecordTabular RecordType = "tabular"
)

// SearchRecord is one corpus entry indexed at startup. Records are never
// mutated after the index builder publishes them.
type SearchRecord struct {
	ID         string                 `json:"id" bson:"_id"`
	Dataset    string                 `json:"dataset" bson:"dataset"`
	Type       RecordType             `json:"type" bson:"type"`
	Data       map[string]interface{} `json:"data" bson:"data"`
	SearchText string                 `json:"searchText" bson:"search_text"`
	Snippet    string                 `json:"snippet" bson:"snippet"`
	FilePath   string                 `json:"filePath,omitempty" bson:"file_path,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Strategy names the cascade stage that produced a result.
type Strategy string

const (
	StrategyPreloaded       Strategy = "preloaded"
	StrategyExternalProcess Strategy = "external-process"
	StrategyFilesystem      Strategy = "filesystem"
	StrategyBuiltin         Strategy = "builtin"
)

// SearchResult is a ranked hit for one query. The display fields (Title,
// Category, Link, Relevance) are filled by the enrichment step.
type SearchResult struct {
	ID             string                 `json:"id"`
	Dataset        string                 `json:"dataset"`
	Type           string                 `json:"type"`
	Content        string                 `json:"content"`
	Snippet        string                 `json:"snippet"`
	RelevanceScore float64                `json:"relevance_score"`
	Strategy       Strategy               `json:"strategy"`
	FilePath       string                 `json:"file_path,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	Title     string `json:"title,omitempty"`
	Category  string `json:"category,omitempty"`
	Link      string `json:"link,omitempty"`
	Relevance string `json:"relevance,omitempty"`
}
