package models

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// CrawlRun is a single crawl over the configured communities.
type CrawlRun struct {
	ID                   string             `json:"id"`
	State                string             `json:"state"`
	Communities          []string           `json:"communities"`
	CompletedCommunities []string           `json:"completed_communities"`
	PostsProcessed       int64              `json:"posts_processed"`
	CommentsExtracted    int64              `json:"comments_extracted"`
	PairsFound           int64              `json:"pairs_found"`
	BatchesWritten       int64              `json:"batches_written"`
	Error                pgtype.Text        `json:"error"`
	StartedAt            time.Time          `json:"started_at"`
	FinishedAt           pgtype.Timestamptz `json:"finished_at"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// CommunityOutcome records the result of crawling one community within a run.
type CommunityOutcome struct {
	ID             string      `json:"id"`
	RunID          string      `json:"run_id"`
	Community      string      `json:"community"`
	Succeeded      bool        `json:"succeeded"`
	PostsProcessed int64       `json:"posts_processed"`
	PairsFound     int64       `json:"pairs_found"`
	Error          pgtype.Text `json:"error"`
	CreatedAt      time.Time   `json:"created_at"`
}
