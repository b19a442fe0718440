package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hunterwarburton/medsage/internal/auth"
	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/dataset"
	"github.com/hunterwarburton/medsage/internal/diagnose"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/search"
)

// PolicyService defines the interface for checking tool permissions.
type PolicyService interface {
	IsToolAllowed(userID int64, toolName string) bool
}

// Searcher runs the retrieval cascade.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Page, error)
}

// Diagnoser runs a diagnostic case.
type Diagnoser interface {
	Diagnose(ctx context.Context, req diagnose.Request) (*diagnose.Response, error)
}

// Datasets exposes the index builder's admin operations.
type Datasets interface {
	Stats() dataset.Stats
	Reload(ctx context.Context) error
}

// Call is one tool invocation with JSON encoded arguments.
type Call struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewCall encodes args into a Call.
func NewCall(name string, args interface{}) (Call, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return Call{}, fmt.Errorf("failed to encode %s arguments: %w", name, err)
	}
	return Call{Name: name, Arguments: string(data)}, nil
}

// SearchArgs are the medical_search arguments.
type SearchArgs struct {
	Query string   `json:"query"`
	Types []string `json:"types,omitempty"`
	TopK  int      `json:"top_k,omitempty"`
	Page  int      `json:"page,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// DiagnoseArgs are the diagnose_case arguments. Image is base64 in JSON.
type DiagnoseArgs struct {
	Modality string `json:"modality"`
	Symptoms string `json:"symptoms"`
	Image    []byte `json:"image,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// ToolRouter routes and executes tool calls.
type ToolRouter struct {
	policy    PolicyService
	searcher  Searcher
	diagnoser Diagnoser
	datasets  Datasets
}

// NewToolRouter creates a new ToolRouter.
func NewToolRouter(policy PolicyService, searcher Searcher, diagnoser Diagnoser, datasets Datasets) *ToolRouter {
	return &ToolRouter{
		policy:    policy,
		searcher:  searcher,
		diagnoser: diagnoser,
		datasets:  datasets,
	}
}

// ExecuteToolCall executes a tool call and returns the result as chat text.
func (r *ToolRouter) ExecuteToolCall(ctx context.Context, userID int64, call Call) (string, error) {
	if !r.policy.IsToolAllowed(userID, call.Name) {
		err := fmt.Errorf("user %d is not allowed to use tool %s", userID, call.Name)
		logger.ToolWarn("Tool execution refused: %v", err)
		return "", err
	}

	logger.ToolDebug("Executing tool '%s' for user %d...", call.Name, userID)

	var result string
	var err error

	switch call.Name {
	case auth.ToolMedicalSearch:
		var args SearchArgs
		if err = json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("failed to parse medical_search arguments: %w", err)
		}
		if args.Query == "" {
			return "", fmt.Errorf("query is required for medical_search: %w", core.ErrEmptyQuery)
		}
		var page *search.Page
		page, err = r.searcher.Search(ctx, search.Query{
			Text:  args.Query,
			Types: args.Types,
			TopK:  args.TopK,
			Page:  args.Page,
			Limit: args.Limit,
		})
		if err != nil {
			err = fmt.Errorf("failed to execute medical_search: %w", err)
			break
		}
		result = FormatPage(page)

	case auth.ToolDiagnoseCase:
		var args DiagnoseArgs
		if err = json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("failed to parse diagnose_case arguments: %w", err)
		}
		var resp *diagnose.Response
		resp, err = r.diagnoser.Diagnose(ctx, diagnose.Request{
			Symptoms: args.Symptoms,
			Modality: core.Modality(args.Modality),
			Image:    args.Image,
			UserID:   args.UserID,
		})
		if err != nil {
			err = fmt.Errorf("failed to execute diagnose_case: %w", err)
			break
		}
		result = FormatDiagnosis(resp)

	case auth.ToolDatasetStats:
		result = FormatStats(r.datasets.Stats())

	case auth.ToolDatasetReload:
		if err = r.datasets.Reload(ctx); err != nil {
			err = fmt.Errorf("failed to execute dataset_reload: %w", err)
			break
		}
		result = "Datasets reloaded.\n\n" + FormatStats(r.datasets.Stats())

	default:
		err = fmt.Errorf("unknown tool: %s", call.Name)
	}

	if err != nil {
		logger.Error("Tool '%s' execution failed for user %d: %v", call.Name, userID, err)
		return "", err
	}

	preview := []rune(result)
	if len(preview) > 100 {
		preview = append(preview[:100], []rune("...")...)
	}
	logger.ToolDebug("Tool '%s' execution successful for user %d. Result: \"%s\"", call.Name, userID, string(preview))
	return result, nil
}
