package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aurachat/empathy-crawler-service/common/source"
)

// Listing API wire types. raw_json=1 is requested everywhere so bodies come
// back unescaped.

type listingEnvelope struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	After    string         `json:"after"`
	Children []listingChild `json:"children"`
}

type listingChild struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
}

type commentData struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parent_id"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Author     string          `json:"author"`
	Replies    json.RawMessage `json:"replies"`
}

// postSeq pages through a community's hot listing with the `after` cursor,
// one page per underlying fetch.
type postSeq struct {
	client    *Client
	community string
	remaining int
	after     string
	buf       []source.Post
	done      bool
	err       error
}

func (s *postSeq) Next(ctx context.Context) (source.Post, bool, error) {
	if s.err != nil {
		return source.Post{}, false, s.err
	}

	for len(s.buf) == 0 {
		if s.done || s.remaining <= 0 {
			return source.Post{}, false, nil
		}
		if err := s.fetchPage(ctx); err != nil {
			if source.IsUnavailable(err) {
				// Gone content reads as an empty listing.
				s.done = true
				return source.Post{}, false, nil
			}
			s.err = err
			return source.Post{}, false, err
		}
	}

	post := s.buf[0]
	s.buf = s.buf[1:]
	s.remaining--
	if s.remaining <= 0 {
		s.done = true
	}
	return post, true, nil
}

func (s *postSeq) fetchPage(ctx context.Context) error {
	size := s.remaining
	if size > pageSize {
		size = pageSize
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", size))
	q.Set("raw_json", "1")
	if s.after != "" {
		q.Set("after", s.after)
	}
	reqURL := fmt.Sprintf("%s/r/%s/hot.json?%s", s.client.cfg.BaseURL, url.PathEscape(s.community), q.Encode())

	body, err := s.client.get(ctx, "list_posts", reqURL)
	if err != nil {
		return err
	}

	var envelope listingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return source.NewError(source.KindTransient, "list_posts", err)
	}

	for _, child := range envelope.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var pd postData
		if err := json.Unmarshal(child.Data, &pd); err != nil {
			continue
		}
		s.buf = append(s.buf, source.Post{
			ID:           pd.ID,
			Title:        pd.Title,
			Body:         pd.Selftext,
			Score:        pd.Score,
			CommentCount: pd.NumComments,
			CreatedUTC:   pd.CreatedUTC,
			URL:          pd.URL,
			IsSelf:       pd.IsSelf,
		})
	}

	s.after = envelope.Data.After
	if s.after == "" || len(envelope.Data.Children) == 0 {
		s.done = true
	}
	return nil
}

// commentSeq fetches a post's comment tree on first advance and yields it
// flattened in level order: all top-level comments, then their replies,
// siblings in listing order.
type commentSeq struct {
	client    *Client
	postID    string
	remaining int
	buf       []source.Comment
	fetched   bool
	err       error
}

func (s *commentSeq) Next(ctx context.Context) (source.Comment, bool, error) {
	if s.err != nil {
		return source.Comment{}, false, s.err
	}

	if !s.fetched {
		s.fetched = true
		if err := s.fetch(ctx); err != nil {
			if source.IsUnavailable(err) {
				return source.Comment{}, false, nil
			}
			s.err = err
			return source.Comment{}, false, err
		}
	}

	if len(s.buf) == 0 || s.remaining <= 0 {
		return source.Comment{}, false, nil
	}

	comment := s.buf[0]
	s.buf = s.buf[1:]
	s.remaining--
	return comment, true, nil
}

func (s *commentSeq) fetch(ctx context.Context) error {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", s.remaining))
	q.Set("raw_json", "1")
	reqURL := fmt.Sprintf("%s/comments/%s.json?%s", s.client.cfg.BaseURL, url.PathEscape(s.postID), q.Encode())

	body, err := s.client.get(ctx, "list_comments", reqURL)
	if err != nil {
		return err
	}

	// The comments endpoint returns two listings: the post itself, then the
	// comment forest.
	var envelopes []listingEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return source.NewError(source.KindTransient, "list_comments", err)
	}
	if len(envelopes) < 2 {
		return nil
	}

	s.buf = flattenComments(envelopes[1].Data.Children)
	return nil
}

// flattenComments walks the comment forest breadth-first so parents always
// precede their children in the flattened sequence.
func flattenComments(children []listingChild) []source.Comment {
	var out []source.Comment
	queue := children

	for len(queue) > 0 {
		child := queue[0]
		queue = queue[1:]

		// "more" stubs carry no comment body.
		if child.Kind != "t1" {
			continue
		}

		var cd commentData
		if err := json.Unmarshal(child.Data, &cd); err != nil {
			continue
		}

		out = append(out, source.Comment{
			ID:         cd.ID,
			ParentID:   parentCommentID(cd.ParentID),
			Body:       cd.Body,
			Score:      cd.Score,
			Removed:    isRemovedBody(cd.Body) || cd.Author == "[deleted]",
			CreatedUTC: cd.CreatedUTC,
		})

		// Replies are either an empty string or a nested listing.
		if len(cd.Replies) > 0 && cd.Replies[0] == '{' {
			var replies listingEnvelope
			if err := json.Unmarshal(cd.Replies, &replies); err == nil {
				queue = append(queue, replies.Data.Children...)
			}
		}
	}

	return out
}

// parentCommentID strips the type prefix from a fullname parent reference.
// A t3_ parent is the post itself, represented as an empty parent ID.
func parentCommentID(fullname string) string {
	if strings.HasPrefix(fullname, "t1_") {
		return strings.TrimPrefix(fullname, "t1_")
	}
	return ""
}

func isRemovedBody(body string) bool {
	return strings.HasPrefix(body, "[deleted]") || strings.HasPrefix(body, "[removed]")
}
