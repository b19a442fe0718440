package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

const (
	DefaultProcessTimeout = 10 * time.Second
	processWaitDelay      = 2 * time.Second
)

// ProcessArgs is the single JSON argument handed to the external search process.
type ProcessArgs struct {
	Query       string   `json:"query"`
	SearchTypes []string `json:"search_types"`
	TopK        int      `json:"top_k"`
	DatasetsDir string   `json:"datasets_dir"`
	MongoURI    string   `json:"mongo_uri,omitempty"`
}

// Runner executes the external search process with one argument and returns
// its captured output.
type Runner interface {
	Run(ctx context.Context, arg string) (stdout, stderr []byte, err error)
}

// ExecRunner runs a command line, appending the argument, and kills the
// process when the timeout or the caller's context expires.
type ExecRunner struct {
	Command []string
	Timeout time.Duration
}

func (r *ExecRunner) Run(ctx context.Context, arg string) ([]byte, []byte, error) {
	if len(r.Command) == 0 {
		return nil, nil, fmt.Errorf("%w: no command configured", core.ErrSubprocess)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.Command[1:]...), arg)
	cmd := exec.CommandContext(execCtx, r.Command[0], args...)
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	cmd.WaitDelay = processWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: timed out after %s", core.ErrSubprocess, timeout)
	}
	if err != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: %v", core.ErrSubprocess, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// ProcessStage delegates the query to an external search process.
type ProcessStage struct {
	runner      Runner
	datasetsDir string
	mongoURI    string
}

// NewProcessStage creates a stage backed by runner.
func NewProcessStage(runner Runner, datasetsDir, mongoURI string) *ProcessStage {
	return &ProcessStage{runner: runner, datasetsDir: datasetsDir, mongoURI: mongoURI}
}

func (s *ProcessStage) Name() core.Strategy { return core.StrategyExternalProcess }

func (s *ProcessStage) TryRetrieve(ctx context.Context, q Query) ([]core.SearchResult, bool) {
	if s.runner == nil {
		return nil, false
	}
	types := q.Types
	if len(types) == 0 {
		types = []string{string(core.RecordText), string(core.RecordImage), string(core.RecordTabular)}
	}
	arg, err := json.Marshal(ProcessArgs{
		Query:       q.Text,
		SearchTypes: types,
		TopK:        q.TopK,
		DatasetsDir: s.datasetsDir,
		MongoURI:    s.mongoURI,
	})
	if err != nil {
		return nil, false
	}

	stdout, stderr, err := s.runner.Run(ctx, string(arg))
	if err != nil {
		if msg := gjson.GetBytes(stderr, "error").String(); msg != "" {
			logger.SearchWarn("External search failed: %v: %s", err, msg)
		} else {
			logger.SearchWarn("External search failed: %v", err)
		}
		return nil, false
	}

	hits, err := ParseProcessOutput(stdout)
	if err != nil {
		logger.SearchWarn("External search output rejected: %v", err)
		return nil, false
	}
	return hits, len(hits) > 0
}

// ParseProcessOutput decodes the process's JSON array of results. Noise
// printed before the array is tolerated: when the whole output is not an
// array, the last line starting with '[' and everything after it is tried.
func ParseProcessOutput(stdout []byte) ([]core.SearchResult, error) {
	text := strings.TrimSpace(string(stdout))
	if !isJSONArray(text) {
		idx := strings.LastIndex(text, "\n[")
		if idx < 0 {
			return nil, fmt.Errorf("%w: stdout is not a JSON array", core.ErrSubprocess)
		}
		text = strings.TrimSpace(text[idx+1:])
		if !isJSONArray(text) {
			return nil, fmt.Errorf("%w: stdout is not a JSON array", core.ErrSubprocess)
		}
	}

	var hits []core.SearchResult
	var errs []error
	for i, item := range gjson.Parse(text).Array() {
		r, err := processResult(item, i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		hits = append(hits, r)
	}
	if len(hits) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", core.ErrSubprocess, errors.Join(errs...))
	}
	return hits, nil
}

func isJSONArray(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsArray()
}

// processResult maps one result object. The process may name fields the way
// the index does or the way the older search engine did.
func processResult(item gjson.Result, i int) (core.SearchResult, error) {
	if !item.IsObject() {
		return core.SearchResult{}, fmt.Errorf("result %d is not an object", i)
	}
	get := func(paths ...string) gjson.Result {
		for _, p := range paths {
			if v := item.Get(p); v.Exists() {
				return v
			}
		}
		return gjson.Result{}
	}

	dataset := get("dataset").String()
	filePath := get("file_path", "filePath", "source").String()
	id := get("id", "_id").String()
	if id == "" {
		id = fmt.Sprintf("proc_%s_%d", dataset, i)
	}

	r := core.SearchResult{
		ID:             id,
		Dataset:        dataset,
		Type:           get("type").String(),
		Content:        get("content", "search_text", "searchText").String(),
		Snippet:        get("snippet").String(),
		RelevanceScore: cast.ToFloat64(get("relevance_score", "relevanceScore", "score").Value()),
		FilePath:       filePath,
	}
	if r.Type == "" {
		r.Type = string(core.RecordText)
	}
	if meta, ok := get("metadata").Value().(map[string]interface{}); ok {
		r.Metadata = meta
	}
	if r.Content == "" && r.Snippet == "" {
		return core.SearchResult{}, fmt.Errorf("result %d has no content", i)
	}
	return r, nil
}
