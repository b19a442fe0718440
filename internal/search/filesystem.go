package search

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
	"github.com/hunterwarburton/medsage/internal/relevance"
)

const (
	DefaultMaxFiles  = 20
	maxFileBytes     = 1 << 20
	contentPrefix    = 500
	snippetRadius    = 100
	fallbackSnippetN = 200
)

var textExtensions = map[string]bool{".txt": true, ".md": true, ".json": true}

var errFileBudget = errors.New("file budget reached")

// FilesystemStage reads plain-text and JSON files from a fixed set of corpus
// subdirectories and scores them with the relevance scorer.
type FilesystemStage struct {
	root     string
	dirs     []string
	maxFiles int
}

// NewFilesystemStage creates a stage reading dirs under root, visiting at
// most maxFiles files per query.
func NewFilesystemStage(root string, dirs []string, maxFiles int) *FilesystemStage {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &FilesystemStage{root: root, dirs: dirs, maxFiles: maxFiles}
}

func (s *FilesystemStage) Name() core.Strategy { return core.StrategyFilesystem }

func (s *FilesystemStage) TryRetrieve(ctx context.Context, q Query) ([]core.SearchResult, bool) {
	if _, err := os.Stat(s.root); err != nil {
		logger.SearchDebug("Filesystem stage: %v: %v", core.ErrMissingCorpus, err)
		return nil, false
	}

	var hits []core.SearchResult
	visited := 0
	for _, dir := range s.dirs {
		base := filepath.Join(s.root, dir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if visited >= s.maxFiles {
				return errFileBudget
			}
			visited++

			content, err := readCapped(path)
			if err != nil {
				logger.SearchDebug("Filesystem stage: skipping %s: %v", path, err)
				return nil
			}
			score := relevance.Score(content, q.Text)
			if score <= 0 {
				return nil
			}
			rel, _ := filepath.Rel(base, path)
			hits = append(hits, core.SearchResult{
				ID:             fileResultID(dir, rel),
				Dataset:        dir,
				Type:           string(core.RecordText),
				Content:        truncateRunes(content, contentPrefix),
				Snippet:        ExtractSnippet(content, q.Text),
				RelevanceScore: score,
				FilePath:       path,
			})
			return nil
		})
		if errors.Is(err, errFileBudget) {
			break
		}
		if err != nil {
			logger.SearchDebug("Filesystem stage: walking %s: %v", base, err)
			if ctx.Err() != nil {
				return nil, false
			}
		}
	}
	return hits, len(hits) > 0
}

func readCapped(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// fileResultID keeps the relative path verbatim so distinct files never share
// an id.
func fileResultID(dataset, rel string) string {
	return "fs_" + dataset + "/" + filepath.ToSlash(rel)
}

// ExtractSnippet returns up to 100 characters either side of the first query
// word found in content, with ellipses marking cut ends. Without a match it
// returns the head of content.
func ExtractSnippet(content, query string) string {
	lower := strings.ToLower(content)
	for _, w := range relevance.QueryWords(query) {
		pos := strings.Index(lower, w)
		if pos < 0 || len(lower) != len(content) {
			continue
		}
		start := max(0, pos-snippetRadius)
		end := min(len(content), pos+snippetRadius)
		start, end = runeBoundary(content, start), runeBoundary(content, end)
		snippet := strings.TrimSpace(content[start:end])
		if start > 0 {
			snippet = "..." + snippet
		}
		if end < len(content) {
			snippet += "..."
		}
		return snippet
	}
	if len([]rune(content)) > fallbackSnippetN {
		return string([]rune(content)[:fallbackSnippetN]) + "..."
	}
	return content
}

// runeBoundary moves i back to the start of the rune containing it.
func runeBoundary(s string, i int) int {
	for i > 0 && i < len(s) && !isRuneStart(s[i]) {
		i--
	}
	return i
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
