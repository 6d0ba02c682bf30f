package crawler

import (
	"encoding/json"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ProgressReporter publishes crawl progress at batch boundaries. All
// methods are safe on a nil receiver, which disables reporting entirely;
// publish failures are logged and never affect the crawl.
type ProgressReporter struct {
	pub   EventPublisher
	runID string
}

// NewProgressReporter creates a reporter with a fresh run ID.
func NewProgressReporter(pub EventPublisher) *ProgressReporter {
	return &ProgressReporter{
		pub:   pub,
		runID: uuid.New().String(),
	}
}

// RunID returns the identifier attached to this run's events.
func (r *ProgressReporter) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

func (r *ProgressReporter) CrawlStarted(remaining, batches int) {
	if r == nil {
		return
	}
	r.publish(messaging.SubjectCrawlStarted, messaging.CrawlStartedMessage{
		RunID:                r.runID,
		RemainingCommunities: remaining,
		Batches:              batches,
		StartedAt:            time.Now().UTC(),
	})
}

func (r *ProgressReporter) BatchCompleted(batchIndex int, communities []string, stats Stats) {
	if r == nil {
		return
	}
	r.publish(messaging.SubjectBatchCompleted, messaging.BatchCompletedMessage{
		RunID:             r.runID,
		BatchIndex:        batchIndex,
		Communities:       communities,
		PostsProcessed:    stats.PostsProcessed,
		CommentsExtracted: stats.CommentsExtracted,
		PairsFound:        stats.PairsFound,
		CompletedAt:       time.Now().UTC(),
	})
}

func (r *ProgressReporter) CrawlCompleted(stats Stats) {
	if r == nil {
		return
	}
	r.publish(messaging.SubjectCrawlCompleted, messaging.CrawlCompletedMessage{
		RunID:             r.runID,
		PostsProcessed:    stats.PostsProcessed,
		CommentsExtracted: stats.CommentsExtracted,
		PairsFound:        stats.PairsFound,
		CompletedAt:       time.Now().UTC(),
	})
}

func (r *ProgressReporter) publish(subject string, msg any) {
	if r.pub == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to serialize progress event")
		return
	}
	if err := r.pub.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish progress event")
	}
}
