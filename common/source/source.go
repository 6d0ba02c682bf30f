package source

import (
	"context"
)

// Post is one submission as listed by the upstream content API.
type Post struct {
	ID           string
	Title        string
	Body         string
	Score        int
	CommentCount int
	CreatedUTC   float64
	URL          string
	IsSelf       bool
}

// Comment is one node of a submission's comment tree. ParentID is empty for
// top-level comments. Removed marks content deleted or moderated upstream;
// such nodes stay in the sequence so tree structure survives, but their text
// must not be used.
type Comment struct {
	ID         string
	ParentID   string
	Body       string
	Score      int
	Removed    bool
	CreatedUTC float64
}

// PostSeq is a lazy, finite, non-restartable sequence of posts. One upstream
// page is fetched at most per advance. After Next returns ok=false the
// sequence is exhausted and must not be advanced again.
type PostSeq interface {
	Next(ctx context.Context) (Post, bool, error)
}

// CommentSeq is a lazy, finite, non-restartable sequence of comments.
type CommentSeq interface {
	Next(ctx context.Context) (Comment, bool, error)
}

// Client abstracts the upstream content API. Implementations surface
// failures through the Error taxonomy in this package so callers can branch
// recovery on kind.
type Client interface {
	// ListPosts lists up to limit post summaries for a community.
	ListPosts(ctx context.Context, community string, limit int) PostSeq

	// ListComments lists up to limit comments for a post.
	ListComments(ctx context.Context, postID string, limit int) CommentSeq
}
