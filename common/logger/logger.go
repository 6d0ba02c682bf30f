package logger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CrawlLogHook implements zerolog.Hook interface
// for storing crawl events in the database
type CrawlLogHook struct {
	db *db.DB
}

// NewCrawlLogHook creates a new log hook
func NewCrawlLogHook(db *db.DB) *CrawlLogHook {
	return &CrawlLogHook{
		db: db,
	}
}

// Run implements zerolog.Hook.Run
func (h *CrawlLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	// Skip if level is too low
	if level < zerolog.WarnLevel {
		return
	}

	logEvent := LogEvent{
		Message:   msg,
		EventType: level.String(),
	}

	// This is done asynchronously to not block the logging
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.logToDatabase(ctx, logEvent); err != nil {
			// Log the error but don't use the hook to avoid potential infinite recursion
			log.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

// logToDatabase stores the event in crawl_events
func (h *CrawlLogHook) logToDatabase(ctx context.Context, event LogEvent) error {
	detailsJSON := json.RawMessage("{}")
	if event.Details != nil {
		data, err := json.Marshal(event.Details)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal log details")
		} else {
			detailsJSON = data
		}
	}

	runID := pgtype.Text{String: event.RunID, Valid: event.RunID != ""}
	community := pgtype.Text{String: event.Community, Valid: event.Community != ""}

	_, err := h.db.Pool.Exec(ctx, `
		INSERT INTO crawl_events (id, run_id, community, event_type, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), runID, community, event.EventType, event.Message, detailsJSON, time.Now(),
	)
	return err
}

// LogService provides structured logging to database
type LogService struct {
	db *db.DB
}

// LogEvent represents a crawl event
type LogEvent struct {
	RunID     string
	Community string
	EventType string
	Message   string
	Details   interface{}
}

// InitializeLogging sets up global zerolog configuration with database hooks
func InitializeLogging(db *db.DB) {
	hook := NewCrawlLogHook(db)
	log.Logger = log.Logger.Hook(hook)
}

// NewLogService creates a new log service
func NewLogService(db *db.DB) *LogService {
	return &LogService{
		db: db,
	}
}

// Log creates a crawl event entry in the database
func (s *LogService) Log(ctx context.Context, event LogEvent) error {
	hook := CrawlLogHook{db: s.db}
	return hook.logToDatabase(ctx, event)
}

// LogCommunityStarted records the start of a community crawl
func (s *LogService) LogCommunityStarted(ctx context.Context, runID, community string) error {
	return s.Log(ctx, LogEvent{
		RunID:     runID,
		Community: community,
		EventType: "community_started",
		Message:   "community crawl started",
	})
}

// LogCommunityFinished records the end of a community crawl
func (s *LogService) LogCommunityFinished(ctx context.Context, runID, community string, pairs int64) error {
	return s.Log(ctx, LogEvent{
		RunID:     runID,
		Community: community,
		EventType: "community_finished",
		Message:   "community crawl finished",
		Details:   map[string]int64{"pairs_found": pairs},
	})
}
