package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/hunterwarburton/medsage/internal/core"
	"github.com/hunterwarburton/medsage/internal/logger"
)

const snippetLimit = 200

// imageKeywords map filename fragments to a category when the file does not
// sit in a category directory. Order matters: "no_tumor" must win over "tumor".
var imageKeywords = []struct{ keyword, category string }{
	{"no_tumor", "no_tumor"},
	{"notumor", "no_tumor"},
	{"glioma", "glioma_tumor"},
	{"meningioma", "meningioma_tumor"},
	{"pituitary", "pituitary_tumor"},
	{"tumor", "tumor"},
	{"covid", "COVID"},
	{"pneumonia", "PNEUMONIA"},
	{"abnormal", "abnormal"},
	{"normal", "normal"},
	{"melanoma", "melanoma"},
	{"nevus", "nevus"},
}

func truncateSnippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLimit {
		return s
	}
	return string([]rune(s)[:snippetLimit]) + "..."
}

// loadDataset reads every file of one corpus directory.
func loadDataset(dir string, cfg Config, maxRows int) ([]core.SearchRecord, error) {
	switch cfg.Kind {
	case KindTabular, KindTranscription:
		return loadCSVFiles(dir, cfg, maxRows)
	case KindQA:
		return loadQAFiles(dir, cfg, maxRows)
	case KindImage:
		return loadImages(dir, cfg)
	default:
		return nil, fmt.Errorf("unsupported dataset kind %s", cfg.Kind)
	}
}

func loadCSVFiles(dir string, cfg Config, maxRows int) ([]core.SearchRecord, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	var records []core.SearchRecord
	for _, f := range files {
		recs, err := loadCSV(f, cfg, maxRows)
		if err != nil {
			logger.DatasetError("Error loading %s: %v", f, err)
			continue
		}
		logger.DatasetDebug("Processed %s: %d rows", f, len(recs))
		records = append(records, recs...)
	}
	return records, nil
}

func loadCSV(path string, cfg Config, maxRows int) ([]core.SearchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	// row numbers restart per file, so ids carry the file stem
	prefix := cfg.Name + "_" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var records []core.SearchRecord
	for idx := 0; maxRows <= 0 || idx < maxRows; idx++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.DatasetWarn("Skipping malformed row %d in %s: %v", idx, path, err)
			continue
		}
		fields := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}

		var rec core.SearchRecord
		var ok bool
		if cfg.Kind == KindTranscription {
			rec, ok = transcriptionRecord(cfg, fields, fmt.Sprintf("%s_%d", prefix, idx))
		} else {
			rec, ok = tabularRecord(cfg, fields, fmt.Sprintf("%s_%d", prefix, idx))
		}
		if !ok {
			continue
		}
		rec.FilePath = path
		records = append(records, rec)
	}
	return records, nil
}

func metadataFor(columns []string, fields map[string]interface{}) (map[string]interface{}, []string) {
	meta := make(map[string]interface{})
	var pairs []string
	for _, col := range columns {
		v := strings.TrimSpace(cast.ToString(fields[col]))
		if v == "" {
			continue
		}
		if n, err := cast.ToFloat64E(v); err == nil {
			meta[col] = n
		} else {
			meta[col] = v
		}
		pairs = append(pairs, col+"="+v)
	}
	return meta, pairs
}

func tabularRecord(cfg Config, fields map[string]interface{}, id string) (core.SearchRecord, bool) {
	var parts []string
	for _, col := range cfg.TextColumns {
		if v := strings.TrimSpace(cast.ToString(fields[col])); v != "" {
			parts = append(parts, col+": "+v)
		}
	}
	meta, pairs := metadataFor(cfg.MetadataColumns, fields)
	if len(parts) == 0 && len(pairs) == 0 {
		return core.SearchRecord{}, false
	}

	text := fmt.Sprintf("Medical data from %s: %s", cfg.Name, strings.Join(parts, "; "))
	if cfg.Context != "" {
		text += fmt.Sprintf(" %s: %s", cfg.Context, strings.Join(pairs, ", "))
	}
	return core.SearchRecord{
		ID:         id,
		Dataset:    cfg.Name,
		Type:       core.RecordTabular,
		Data:       fields,
		SearchText: text,
		Snippet:    truncateSnippet(strings.Join(parts, "; ")),
		Metadata:   meta,
	}, true
}

func transcriptionRecord(cfg Config, fields map[string]interface{}, id string) (core.SearchRecord, bool) {
	var content string
	for _, col := range cfg.TextColumns {
		if v := strings.TrimSpace(cast.ToString(fields[col])); v != "" {
			content = v
			break
		}
	}
	if content == "" {
		return core.SearchRecord{}, false
	}
	meta, _ := metadataFor(cfg.MetadataColumns, fields)
	return core.SearchRecord{
		ID:         id,
		Dataset:    cfg.Name,
		Type:       core.RecordText,
		Data:       fields,
		SearchText: "Medical transcription: " + content,
		Snippet:    truncateSnippet(content),
		Metadata:   meta,
	}, true
}

func loadQAFiles(dir string, cfg Config, maxRows int) ([]core.SearchRecord, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var records []core.SearchRecord
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.DatasetError("Error reading %s: %v", f, err)
			continue
		}
		if !gjson.ValidBytes(data) {
			logger.DatasetWarn("Skipping %s: not valid JSON", f)
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		recs := qaRecords(cfg.Name, stem, gjson.ParseBytes(data), maxRows)
		for i := range recs {
			recs[i].FilePath = f
		}
		records = append(records, recs...)
	}
	return records, nil
}

// qaRecords flattens an array or an object keyed by identifier. Array items
// are keyed by file stem and position.
func qaRecords(dataset, stem string, doc gjson.Result, maxRows int) []core.SearchRecord {
	var records []core.SearchRecord
	add := func(key string, item gjson.Result) bool {
		if maxRows > 0 && len(records) >= maxRows {
			return false
		}
		if rec, ok := qaRecord(dataset, key, item); ok {
			records = append(records, rec)
		}
		return true
	}

	switch {
	case doc.IsArray():
		for i, item := range doc.Array() {
			if !add(stem+"_"+strconv.Itoa(i), item) {
				break
			}
		}
	case doc.IsObject():
		doc.ForEach(func(key, item gjson.Result) bool {
			return add(key.String(), item)
		})
	}
	return records
}

func firstOf(item gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := item.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

func qaRecord(dataset, key string, item gjson.Result) (core.SearchRecord, bool) {
	if !item.IsObject() {
		return core.SearchRecord{}, false
	}
	question := strings.TrimSpace(firstOf(item, "QUESTION", "question").String())
	if question == "" {
		return core.SearchRecord{}, false
	}
	answer := strings.TrimSpace(firstOf(item, "final_decision", "FINAL_DECISION", "answer").String())

	var contexts []string
	passages := firstOf(item, "CONTEXTS", "context", "contexts")
	if passages.IsArray() {
		for _, c := range passages.Array() {
			contexts = append(contexts, c.String())
		}
	} else if passages.String() != "" {
		contexts = []string{passages.String()}
	}

	text := "Medical Question: " + question
	if answer != "" {
		text += " Answer: " + answer
	}
	if len(contexts) > 0 {
		text += " Context: " + strings.Join(contexts[:min(2, len(contexts))], " ")
	}

	data, _ := item.Value().(map[string]interface{})
	return core.SearchRecord{
		ID:         dataset + "_" + key,
		Dataset:    dataset,
		Type:       core.RecordText,
		Data:       data,
		SearchText: text,
		Snippet:    truncateSnippet(question),
		Metadata:   map[string]interface{}{"answer": answer, "pubmed_id": key},
	}, true
}

func loadImages(dir string, cfg Config) ([]core.SearchRecord, error) {
	formats := make(map[string]bool, len(cfg.ImageFormats))
	for _, f := range cfg.ImageFormats {
		formats[strings.ToLower(f)] = true
	}

	var records []core.SearchRecord
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.DatasetWarn("Skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !formats[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		category := imageCategory(dir, path, cfg.Categories)
		name := filepath.Base(path)
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = name
		}

		text := fmt.Sprintf("Medical image from %s: %s - %s", cfg.Name, category, name)
		if cfg.Describe != nil {
			text += " " + cfg.Describe(category)
		} else if strings.Contains(strings.ToLower(cfg.Name), "xray") {
			text += " X-ray medical imaging"
		}

		records = append(records, core.SearchRecord{
			ID:         cfg.Name + "_" + filepath.ToSlash(rel),
			Dataset:    cfg.Name,
			Type:       core.RecordImage,
			Data:       map[string]interface{}{"category": category, "filename": name},
			SearchText: text,
			Snippet:    category + " - " + name,
			FilePath:   path,
			Metadata: map[string]interface{}{
				"category": category,
				"filename": name,
				"format":   strings.TrimPrefix(ext, "."),
				"size":     info.Size(),
			},
		})
		return nil
	})
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, err
}

// imageCategory prefers a known category directory between root and the
// file, then filename keywords.
func imageCategory(root, path string, categories []string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err == nil && rel != "." {
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			for _, c := range categories {
				if strings.EqualFold(part, c) {
					return c
				}
			}
		}
		// an unknown directory still names the category
		return filepath.Base(filepath.Dir(path))
	}

	lower := strings.ToLower(filepath.Base(path))
	// longest first so "abnormal" is not read as "normal"
	byLen := append([]string(nil), categories...)
	sort.SliceStable(byLen, func(i, j int) bool { return len(byLen[i]) > len(byLen[j]) })
	for _, c := range byLen {
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.category
		}
	}
	return "unknown"
}
