package dataset

import (
	"time"

	"github.com/hunterwarburton/medsage/internal/core"
)

// DatasetStats counts the records of one dataset.
type DatasetStats struct {
	Total int            `json:"total"`
	Types map[string]int `json:"types"`
}

// Stats summarises the loaded records.
type Stats struct {
	Loaded     bool                    `json:"loaded"`
	LoadedAt   time.Time               `json:"loaded_at,omitempty"`
	TotalItems int                     `json:"total_items"`
	ByType     map[string]int          `json:"by_type"`
	Datasets   map[string]DatasetStats `json:"datasets"`
}

// Stats counts records per dataset and type. Every configured dataset is
// listed, including empty ones.
func (b *Builder) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Loaded:     b.loaded,
		LoadedAt:   b.loadedAt,
		TotalItems: len(b.records),
		ByType:     make(map[string]int),
		Datasets:   make(map[string]DatasetStats, len(b.configs)),
	}
	for _, cfg := range b.configs {
		st.Datasets[cfg.Name] = DatasetStats{Types: make(map[string]int)}
	}
	for _, r := range b.records {
		countRecord(&st, r)
	}
	return st
}

func countRecord(st *Stats, r core.SearchRecord) {
	st.ByType[string(r.Type)]++
	ds, ok := st.Datasets[r.Dataset]
	if !ok {
		ds = DatasetStats{Types: make(map[string]int)}
	}
	ds.Total++
	ds.Types[string(r.Type)]++
	st.Datasets[r.Dataset] = ds
}
