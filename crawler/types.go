package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ExchangePair is one parent→child edge of a comment tree judged to carry
// supportive language. CategoryHits maps lexicon category to the number of
// distinct matched phrases.
type ExchangePair struct {
	Prompt       string         `json:"input"`
	Response     string         `json:"response"`
	CategoryHits map[string]int `json:"-"`
	TotalHits    int            `json:"-"`
}

// ConversationMetadata carries the per-post counters written alongside each
// record.
type ConversationMetadata struct {
	PairCount   int       `json:"empathy_pairs_count"`
	PostScore   int       `json:"post_score"`
	NumComments int       `json:"num_comments"`
	ExtractedAt time.Time `json:"extraction_timestamp"`
}

// Conversation is the unit of output: one post with its qualifying exchange
// pairs in thread order. Immutable once handed to the batch writer.
type Conversation struct {
	ID        string               `json:"conversation_id"`
	Community string               `json:"subreddit"`
	Title     string               `json:"post_title"`
	Body      string               `json:"post_content"`
	Pairs     []ExchangePair       `json:"empathy_pairs"`
	Metadata  ConversationMetadata `json:"metadata"`
}

// ConversationID derives the stable record identity from the post's source
// identity. The same post always hashes to the same ID, which is what makes
// interrupted and resumed runs line up.
func ConversationID(community, postID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s", community, postID)))
	return hex.EncodeToString(sum[:])[:16]
}

// Stats are the aggregate crawl counters carried in the checkpoint.
type Stats struct {
	PostsProcessed       int `json:"posts_processed"`
	CommentsExtracted    int `json:"comments_extracted"`
	PairsFound           int `json:"pairs_found"`
	CommunitiesCompleted int `json:"communities_completed"`
	CommunitiesFailed    int `json:"communities_failed"`
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.PostsProcessed += other.PostsProcessed
	s.CommentsExtracted += other.CommentsExtracted
	s.PairsFound += other.PairsFound
	s.CommunitiesCompleted += other.CommunitiesCompleted
	s.CommunitiesFailed += other.CommunitiesFailed
}

// Checkpoint is the durable crawl frontier. CompletedCommunities only grows
// and NextBatchIndex never decreases across a checkpoint's lifetime.
type Checkpoint struct {
	CompletedCommunities []string  `json:"completed_subreddits"`
	NextBatchIndex       int       `json:"next_batch_index"`
	Stats                Stats     `json:"stats"`
	UpdatedAt            time.Time `json:"updated_at"`
}
