package services

import (
	"context"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CrawlRunService persists crawl runs and their per-community outcomes.
type CrawlRunService interface {
	Create(ctx context.Context, run models.CrawlRun) (models.CrawlRun, error)
	GetByID(ctx context.Context, id string) (models.CrawlRun, error)
	GetLatest(ctx context.Context) (models.CrawlRun, error)
	UpdateState(ctx context.Context, id string, state string, errMsg string) error
	UpdateProgress(ctx context.Context, run models.CrawlRun) error
	RecordOutcome(ctx context.Context, outcome models.CommunityOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]models.CommunityOutcome, error)
}

// CrawlRunRepository is a PostgreSQL implementation of CrawlRunService
type CrawlRunRepository struct {
	pool *pgxpool.Pool
}

// NewCrawlRunRepository creates a new PostgreSQL CrawlRunRepository
func NewCrawlRunRepository(pool *pgxpool.Pool) CrawlRunService {
	return &CrawlRunRepository{
		pool: pool,
	}
}

// Create inserts a new crawl run
func (r *CrawlRunRepository) Create(ctx context.Context, run models.CrawlRun) (models.CrawlRun, error) {
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO crawl_runs (
			id, state, communities, completed_communities,
			posts_processed, comments_extracted, pairs_found, batches_written,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.State, run.Communities, run.CompletedCommunities,
		run.PostsProcessed, run.CommentsExtracted, run.PairsFound, run.BatchesWritten,
		run.StartedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return models.CrawlRun{}, err
	}

	return run, nil
}

// GetByID gets a crawl run by ID
func (r *CrawlRunRepository) GetByID(ctx context.Context, id string) (models.CrawlRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, state, communities, completed_communities,
			posts_processed, comments_extracted, pairs_found, batches_written,
			error, started_at, finished_at, created_at, updated_at
		FROM crawl_runs WHERE id = $1`, id)

	return scanCrawlRun(row)
}

// GetLatest gets the most recently started crawl run
func (r *CrawlRunRepository) GetLatest(ctx context.Context) (models.CrawlRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, state, communities, completed_communities,
			posts_processed, comments_extracted, pairs_found, batches_written,
			error, started_at, finished_at, created_at, updated_at
		FROM crawl_runs ORDER BY started_at DESC LIMIT 1`)

	return scanCrawlRun(row)
}

// UpdateState transitions a crawl run to a new state
func (r *CrawlRunRepository) UpdateState(ctx context.Context, id string, state string, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE crawl_runs
		SET state = $2,
			error = NULLIF($3, ''),
			finished_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED') THEN now() ELSE finished_at END,
			updated_at = now()
		WHERE id = $1`,
		id, state, errMsg,
	)
	return err
}

// UpdateProgress updates the cumulative counters of a crawl run
func (r *CrawlRunRepository) UpdateProgress(ctx context.Context, run models.CrawlRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE crawl_runs
		SET completed_communities = $2,
			posts_processed = $3,
			comments_extracted = $4,
			pairs_found = $5,
			batches_written = $6,
			updated_at = now()
		WHERE id = $1`,
		run.ID, run.CompletedCommunities,
		run.PostsProcessed, run.CommentsExtracted, run.PairsFound, run.BatchesWritten,
	)
	return err
}

// RecordOutcome inserts the result of one community crawl
func (r *CrawlRunRepository) RecordOutcome(ctx context.Context, outcome models.CommunityOutcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO community_outcomes (
			id, run_id, community, succeeded, posts_processed, pairs_found, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`,
		outcome.ID, outcome.RunID, outcome.Community, outcome.Succeeded,
		outcome.PostsProcessed, outcome.PairsFound, outcome.Error.String,
	)
	return err
}

// ListOutcomes lists the community outcomes for a run
func (r *CrawlRunRepository) ListOutcomes(ctx context.Context, runID string) ([]models.CommunityOutcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, run_id, community, succeeded, posts_processed, pairs_found, error, created_at
		FROM community_outcomes WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []models.CommunityOutcome
	for rows.Next() {
		var o models.CommunityOutcome
		if err := rows.Scan(&o.ID, &o.RunID, &o.Community, &o.Succeeded,
			&o.PostsProcessed, &o.PairsFound, &o.Error, &o.CreatedAt); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

func scanCrawlRun(row pgx.Row) (models.CrawlRun, error) {
	var run models.CrawlRun
	err := row.Scan(
		&run.ID, &run.State, &run.Communities, &run.CompletedCommunities,
		&run.PostsProcessed, &run.CommentsExtracted, &run.PairsFound, &run.BatchesWritten,
		&run.Error, &run.StartedAt, &run.FinishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return models.CrawlRun{}, err
	}

	return run, nil
}
