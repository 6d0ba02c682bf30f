package crawler

import (
	"strings"
	"testing"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/source"
)

const supportiveReply = "I understand how hard this is, you are not alone."

func testCrawlConfig() config.CrawlConfig {
	cfg := config.DefaultConfig().Crawl
	cfg.MinCommentLength = 20
	cfg.MaxCommentLength = 2000
	cfg.MinCommentScore = 1
	cfg.MinEmpathyKeywords = 2
	cfg.MinCategories = 1
	return cfg
}

func TestExtractPostToTopLevelPair(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{
		ID:    "p1",
		Title: "Feeling overwhelmed lately",
		Body:  "Everything is piling up and I cannot keep up.",
		Score: 42,
	}
	comments := []source.Comment{
		{ID: "c1", Body: supportiveReply, Score: 5},
	}

	conv := e.Extract("offmychest", post, comments)

	if len(conv.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(conv.Pairs))
	}
	pair := conv.Pairs[0]
	wantPrompt := "Feeling overwhelmed lately\n\nEverything is piling up and I cannot keep up."
	if pair.Prompt != wantPrompt {
		t.Errorf("prompt = %q, want %q", pair.Prompt, wantPrompt)
	}
	if pair.Response != supportiveReply {
		t.Errorf("response = %q, want %q", pair.Response, supportiveReply)
	}
	if pair.TotalHits < 2 {
		t.Errorf("total hits = %d, want >= 2", pair.TotalHits)
	}
	if conv.Metadata.PairCount != 1 {
		t.Errorf("metadata pair count = %d, want 1", conv.Metadata.PairCount)
	}
	if conv.Metadata.PostScore != 42 {
		t.Errorf("metadata post score = %d, want 42", conv.Metadata.PostScore)
	}
}

func TestExtractCommentReplyPairsInThreadOrder(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{
		ID:    "p1",
		Title: "Lost my job this week and I am scared",
		Body:  "Not sure how to tell my family about it.",
	}
	comments := []source.Comment{
		{ID: "c1", Body: supportiveReply, Score: 3},
		{ID: "c2", ParentID: "c1", Body: "Thank you for sharing this, it sounds like you care about them a lot.", Score: 2},
	}

	conv := e.Extract("jobs", post, comments)

	if len(conv.Pairs) != 2 {
		t.Fatalf("pairs = %d, want 2 (got %+v)", len(conv.Pairs), conv.Pairs)
	}
	// Post edge first, then the comment->reply edge.
	if !strings.HasPrefix(conv.Pairs[0].Prompt, "Lost my job") {
		t.Errorf("first pair prompt = %q, want post content", conv.Pairs[0].Prompt)
	}
	if conv.Pairs[1].Prompt != supportiveReply {
		t.Errorf("second pair prompt = %q, want parent comment body", conv.Pairs[1].Prompt)
	}
}

func TestExtractGates(t *testing.T) {
	tests := []struct {
		name    string
		comment source.Comment
	}{
		{"removed comment", source.Comment{ID: "c1", Body: supportiveReply, Score: 5, Removed: true}},
		{"too short", source.Comment{ID: "c1", Body: "so hard, not alone", Score: 5}},
		{"too long", source.Comment{ID: "c1", Body: supportiveReply + strings.Repeat(" more words here", 200), Score: 5}},
		{"below score floor", source.Comment{ID: "c1", Body: supportiveReply, Score: 0}},
		{"too few lexicon hits", source.Comment{ID: "c1", Body: "I understand your message completely here.", Score: 5}},
	}

	post := source.Post{ID: "p1", Title: "A long enough post title", Body: "with a body to match."}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(testCrawlConfig())
			conv := e.Extract("test", post, []source.Comment{tt.comment})
			if len(conv.Pairs) != 0 {
				t.Errorf("pairs = %d, want 0", len(conv.Pairs))
			}
		})
	}
}

func TestExtractRemovedPostSkipsPostEdges(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{ID: "p1", Title: "title", Body: "[removed]"}
	comments := []source.Comment{
		{ID: "c1", Body: "This post used to say something.....", Score: 2},
		{ID: "c2", ParentID: "c1", Body: supportiveReply, Score: 2},
	}

	conv := e.Extract("test", post, comments)

	if len(conv.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(conv.Pairs))
	}
	if conv.Pairs[0].Prompt != comments[0].Body {
		t.Errorf("prompt = %q, want the parent comment, not the removed post", conv.Pairs[0].Prompt)
	}
}

func TestExtractRemovedParentDropsEdgeNotSubtree(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{ID: "p1", Title: "A question about something difficult", Body: "body text goes here"}
	comments := []source.Comment{
		{ID: "c1", Body: "[deleted]", Score: 1, Removed: true},
		{ID: "c2", ParentID: "c1", Body: supportiveReply, Score: 2},
		{ID: "c3", ParentID: "c2", Body: "Thank you for sharing, it sounds like you have been there too.", Score: 2},
	}

	conv := e.Extract("test", post, comments)

	// c1->c2 is dropped (removed parent), c2->c3 survives.
	if len(conv.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1 (got %+v)", len(conv.Pairs), conv.Pairs)
	}
	if conv.Pairs[0].Prompt != supportiveReply {
		t.Errorf("prompt = %q, want c2 body", conv.Pairs[0].Prompt)
	}
}

func TestExtractOrphanSubtree(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{ID: "p1", Title: "A post with a truncated thread", Body: "body text goes here"}
	comments := []source.Comment{
		// Parent "missing" was outside the fetched window.
		{ID: "c5", ParentID: "missing", Body: "Context from a parent we never fetched, long enough.", Score: 2},
		{ID: "c6", ParentID: "c5", Body: supportiveReply, Score: 2},
	}

	conv := e.Extract("test", post, comments)

	if len(conv.Pairs) != 1 {
		t.Fatalf("pairs = %d, want 1 (got %+v)", len(conv.Pairs), conv.Pairs)
	}
	if conv.Pairs[0].Prompt != comments[0].Body {
		t.Errorf("prompt = %q, want orphan body", conv.Pairs[0].Prompt)
	}
}

func TestExtractEmptyPairsStillYieldsConversation(t *testing.T) {
	e := NewExtractor(testCrawlConfig())

	post := source.Post{ID: "p1", Title: "nothing supportive below", Body: "just facts"}
	conv := e.Extract("test", post, nil)

	if conv.ID == "" {
		t.Error("conversation ID is empty")
	}
	if conv.Pairs == nil {
		t.Error("pairs is nil, want empty slice")
	}
	if conv.Metadata.PairCount != 0 {
		t.Errorf("pair count = %d, want 0", conv.Metadata.PairCount)
	}
}

func TestConversationID(t *testing.T) {
	a := ConversationID("offmychest", "abc123")
	b := ConversationID("offmychest", "abc123")
	c := ConversationID("offmychest", "abc124")

	if a != b {
		t.Errorf("same inputs gave different IDs: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different posts gave the same ID")
	}
	if len(a) != 16 {
		t.Errorf("ID length = %d, want 16", len(a))
	}
}
