package rag

// Field names for the prototype collection
const (
	FieldID       = "id"
	FieldModality = "modality"
	FieldModelID  = "model_id"
	FieldLabel    = "label"
	FieldVector   = "vector"
)

// DefaultCollection is the base name of the prototype collections.
const DefaultCollection = "condition_prototypes"

// Default constants reused across the collection schema
const (
	DefaultIDMaxLength    = "255"
	DefaultLabelMaxLength = "512"
)
