package messaging

import "time"

// Constants for NATS subjects
const (
	SubjectCrawlStarted   = "crawl.started"
	SubjectBatchCompleted = "crawl.batch.completed"
	SubjectCrawlCompleted = "crawl.completed"
)

// CrawlStartedMessage announces a crawl run beginning.
type CrawlStartedMessage struct {
	RunID                string    `json:"run_id"`
	RemainingCommunities int       `json:"remaining_communities"`
	Batches              int       `json:"batches"`
	StartedAt            time.Time `json:"started_at"`
}

// BatchCompletedMessage announces one committed batch boundary.
type BatchCompletedMessage struct {
	RunID             string    `json:"run_id"`
	BatchIndex        int       `json:"batch_index"`
	Communities       []string  `json:"communities"`
	PostsProcessed    int       `json:"posts_processed"`
	CommentsExtracted int       `json:"comments_extracted"`
	PairsFound        int       `json:"pairs_found"`
	CompletedAt       time.Time `json:"completed_at"`
}

// CrawlCompletedMessage announces a finished crawl run.
type CrawlCompletedMessage struct {
	RunID             string    `json:"run_id"`
	PostsProcessed    int       `json:"posts_processed"`
	CommentsExtracted int       `json:"comments_extracted"`
	PairsFound        int       `json:"pairs_found"`
	CompletedAt       time.Time `json:"completed_at"`
}
