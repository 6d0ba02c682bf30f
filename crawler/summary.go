package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// extractionSummary is the run report dropped next to the batch files once
// a crawl completes.
type extractionSummary struct {
	Stats       Stats     `json:"extraction_stats"`
	OutputFiles []string  `json:"output_files"`
	TotalFiles  int       `json:"total_files"`
	CompletedAt time.Time `json:"extraction_completed_at"`
	ConfigUsed  struct {
		Communities       int `json:"communities_targeted"`
		PostsPerCommunity int `json:"posts_per_community"`
		BatchSize         int `json:"batch_size"`
		Concurrency       int `json:"concurrency"`
	} `json:"config_used"`
}

// writeSummary records the final run report. Best effort: the crawl's data
// and checkpoint are already durable by the time this runs.
func (o *Orchestrator) writeSummary() error {
	summary := extractionSummary{
		Stats:       o.Snapshot(),
		OutputFiles: o.writer.Files(),
		CompletedAt: time.Now().UTC(),
	}
	summary.TotalFiles = len(summary.OutputFiles)
	summary.ConfigUsed.Communities = len(o.cfg.Communities)
	summary.ConfigUsed.PostsPerCommunity = o.cfg.PostsPerCommunity
	summary.ConfigUsed.BatchSize = o.cfg.BatchSize
	summary.ConfigUsed.Concurrency = o.cfg.Concurrency

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(o.cfg.OutputDir, fmt.Sprintf("extraction_summary_%s.json", time.Now().UTC().Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	log.Info().Str("file", path).Msg("Extraction summary written")
	return nil
}
