package crawler

import (
	"strings"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/source"
)

// Extractor derives exchange pairs from a post and its comment tree. It
// holds configuration only; extraction is a pure function of its inputs and
// no state survives between posts.
type Extractor struct {
	cfg config.CrawlConfig
}

// NewExtractor creates an extractor with the given crawl settings.
func NewExtractor(cfg config.CrawlConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract reconstructs the comment tree from parent references and emits a
// Conversation holding every qualifying exchange pair in thread order:
// post→top-level edges first, then comment→reply edges, siblings in fetch
// order. A post with no qualifying edges still yields a Conversation with an
// empty pair list.
func (e *Extractor) Extract(community string, post source.Post, comments []source.Comment) Conversation {
	postContent := postContent(post)
	postRemoved := isRemoved(post.Body)

	// Children keyed by parent, preserving fetch order within siblings.
	children := make(map[string][]source.Comment)
	var topLevel []source.Comment
	for _, c := range comments {
		if c.ParentID == "" {
			topLevel = append(topLevel, c)
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	byID := make(map[string]source.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}

	pairs := make([]ExchangePair, 0)

	// Post→top-level edges.
	if !postRemoved {
		for _, child := range topLevel {
			if pair, ok := e.evaluateEdge(postContent, child); ok {
				pairs = append(pairs, pair)
			}
		}
	}

	// Comment→reply edges, parents in thread order.
	queue := append([]source.Comment(nil), topLevel...)
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, child := range children[parent.ID] {
			queue = append(queue, child)
			if parent.Removed {
				continue
			}
			if pair, ok := e.evaluateEdge(parent.Body, child); ok {
				pairs = append(pairs, pair)
			}
		}
	}

	// Orphaned subtrees (parent outside the fetched window) still count for
	// traversal but their dangling edge has no prompt, so nothing is
	// evaluated for them beyond their own descendants.
	for _, c := range comments {
		if c.ParentID == "" {
			continue
		}
		if _, known := byID[c.ParentID]; !known {
			queue = append(queue, c)
		}
	}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent.ID] {
			queue = append(queue, child)
			if parent.Removed {
				continue
			}
			if pair, ok := e.evaluateEdge(parent.Body, child); ok {
				pairs = append(pairs, pair)
			}
		}
	}

	return Conversation{
		ID:        ConversationID(community, post.ID),
		Community: community,
		Title:     post.Title,
		Body:      postContent,
		Pairs:     pairs,
		Metadata: ConversationMetadata{
			PairCount:   len(pairs),
			PostScore:   post.Score,
			NumComments: len(comments),
			ExtractedAt: time.Now().UTC(),
		},
	}
}

// evaluateEdge applies the admission gate to one parent→child edge: child
// not removed, body within length bounds and above the score floor, and
// enough lexicon hits across enough categories.
func (e *Extractor) evaluateEdge(prompt string, child source.Comment) (ExchangePair, bool) {
	if child.Removed {
		return ExchangePair{}, false
	}
	if len(child.Body) < e.cfg.MinCommentLength {
		return ExchangePair{}, false
	}
	if e.cfg.MaxCommentLength > 0 && len(child.Body) > e.cfg.MaxCommentLength {
		return ExchangePair{}, false
	}
	if child.Score < e.cfg.MinCommentScore {
		return ExchangePair{}, false
	}

	hits, total := scoreText(child.Body)
	if total < e.cfg.MinEmpathyKeywords {
		return ExchangePair{}, false
	}
	if e.cfg.MinCategories > 1 && len(hits) < e.cfg.MinCategories {
		return ExchangePair{}, false
	}

	return ExchangePair{
		Prompt:       prompt,
		Response:     child.Body,
		CategoryHits: hits,
		TotalHits:    total,
	}, true
}

// postContent joins title and body the way the downstream cleaning stage
// expects its context field.
func postContent(post source.Post) string {
	return strings.TrimSpace(post.Title + "\n\n" + post.Body)
}

func isRemoved(body string) bool {
	return strings.HasPrefix(body, "[deleted]") || strings.HasPrefix(body, "[removed]")
}
