package core

import "errors"

var (
	// ErrTransientNetwork marks an unreachable or failing remote model endpoint.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrMalformedModelOutput marks a model reply no extractor could parse.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrSubprocess marks a failed, timed out or unparsable external search run.
	ErrSubprocess = errors.New("external search process failure")
	// ErrMissingCorpus marks an absent corpus directory or file.
	ErrMissingCorpus = errors.New("missing corpus")

	ErrUnknownModality = errors.New("unknown modality")
	ErrEmptyQuery      = errors.New("empty query")
)
