package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/source"
)

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	mux.HandleFunc("/api/v1/access_token", tokenHandler)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	cfg := config.RedditConfig{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
		UserAgent:    "test-agent/1.0",
		BaseURL:      ts.URL,
		TokenURL:     ts.URL + "/api/v1/access_token",
		Timeout:      5 * time.Second,
	}

	c, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func drainPosts(t *testing.T, seq source.PostSeq) ([]source.Post, error) {
	t.Helper()
	var posts []source.Post
	for {
		post, ok, err := seq.Next(context.Background())
		if err != nil {
			return posts, err
		}
		if !ok {
			return posts, nil
		}
		posts = append(posts, post)
	}
}

func drainComments(t *testing.T, seq source.CommentSeq) ([]source.Comment, error) {
	t.Helper()
	var comments []source.Comment
	for {
		comment, ok, err := seq.Next(context.Background())
		if err != nil {
			return comments, err
		}
		if !ok {
			return comments, nil
		}
		comments = append(comments, comment)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.RedditConfig{})
	if !source.IsAuth(err) {
		t.Errorf("err = %v, want auth error", err)
	}
}

func TestListPostsPaginates(t *testing.T) {
	var afters []string
	mux := http.NewServeMux()
	mux.HandleFunc("/r/offmychest/hot.json", func(w http.ResponseWriter, r *http.Request) {
		afters = append(afters, r.URL.Query().Get("after"))
		w.Header().Set("Content-Type", "application/json")
		if len(afters) == 1 {
			fmt.Fprint(w, `{"kind":"Listing","data":{"after":"t3_p2","children":[
				{"kind":"t3","data":{"id":"p1","title":"first","selftext":"body one","score":12,"num_comments":4}},
				{"kind":"t3","data":{"id":"p2","title":"second","selftext":"body two","score":8,"num_comments":3}}
			]}}`)
			return
		}
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":"","children":[
			{"kind":"t3","data":{"id":"p3","title":"third","selftext":"body three","score":6,"num_comments":2}}
		]}}`)
	})

	c := newTestClient(t, mux)

	posts, err := drainPosts(t, c.ListPosts(context.Background(), "offmychest", 10))
	if err != nil {
		t.Fatalf("draining posts: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("posts = %d, want 3", len(posts))
	}
	if posts[0].ID != "p1" || posts[2].ID != "p3" {
		t.Errorf("post order = %s..%s, want p1..p3", posts[0].ID, posts[2].ID)
	}
	if posts[0].CommentCount != 4 {
		t.Errorf("CommentCount = %d, want 4", posts[0].CommentCount)
	}
	if len(afters) != 2 {
		t.Fatalf("requests = %d, want 2", len(afters))
	}
	if afters[0] != "" || afters[1] != "t3_p2" {
		t.Errorf("after cursors = %v, want [\"\", t3_p2]", afters)
	}
}

func TestListPostsHonorsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/offmychest/hot.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":"t3_next","children":[
			{"kind":"t3","data":{"id":"p1","title":"a"}},
			{"kind":"t3","data":{"id":"p2","title":"b"}},
			{"kind":"t3","data":{"id":"p3","title":"c"}}
		]}}`)
	})

	c := newTestClient(t, mux)

	posts, err := drainPosts(t, c.ListPosts(context.Background(), "offmychest", 2))
	if err != nil {
		t.Fatalf("draining posts: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("posts = %d, want 2", len(posts))
	}
}

func TestListPostsStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, posts []source.Post, err error)
	}{
		{
			name:   "429 is rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, posts []source.Post, err error) {
				if !source.IsRateLimited(err) {
					t.Errorf("err = %v, want rate limited", err)
				}
			},
		},
		{
			name:   "401 is auth",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, posts []source.Post, err error) {
				if !source.IsAuth(err) {
					t.Errorf("err = %v, want auth", err)
				}
			},
		},
		{
			name:   "403 reads as empty listing",
			status: http.StatusForbidden,
			check: func(t *testing.T, posts []source.Post, err error) {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				if len(posts) != 0 {
					t.Errorf("posts = %d, want 0", len(posts))
				}
			},
		},
		{
			name:   "500 is transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, posts []source.Post, err error) {
				if !source.IsTransient(err) {
					t.Errorf("err = %v, want transient", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/r/offmychest/hot.json", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			c := newTestClient(t, mux)

			posts, err := drainPosts(t, c.ListPosts(context.Background(), "offmychest", 10))
			tt.check(t, posts, err)
		})
	}
}

func TestListPostsRetryAfterHint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/offmychest/hot.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, mux)

	_, err := drainPosts(t, c.ListPosts(context.Background(), "offmychest", 10))
	hint, ok := source.RetryAfterHint(err).Get()
	if !ok {
		t.Fatalf("no retry-after hint on %v", err)
	}
	if hint != 7*time.Second {
		t.Errorf("hint = %v, want 7s", hint)
	}
}

func TestListCommentsFlattensThread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/comments/p1.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"p1"}}]}},
			{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"id":"c1","parent_id":"t3_p1","body":"top level comment","score":3,"author":"alice",
					"replies":{"kind":"Listing","data":{"children":[
						{"kind":"t1","data":{"id":"c2","parent_id":"t1_c1","body":"a nested reply","score":1,"author":"bob","replies":""}}
					]}}}},
				{"kind":"t1","data":{"id":"c3","parent_id":"t3_p1","body":"[removed]","score":0,"author":"[deleted]","replies":""}},
				{"kind":"more","data":{"count":25}}
			]}}
		]`)
	})
	c := newTestClient(t, mux)

	comments, err := drainComments(t, c.ListComments(context.Background(), "p1", 20))
	if err != nil {
		t.Fatalf("draining comments: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("comments = %d, want 3 (more stub skipped)", len(comments))
	}

	// Parents precede children.
	if comments[0].ID != "c1" {
		t.Errorf("first comment = %s, want c1", comments[0].ID)
	}
	if comments[0].ParentID != "" {
		t.Errorf("top-level parent = %q, want empty", comments[0].ParentID)
	}

	var reply source.Comment
	for _, c := range comments {
		if c.ID == "c2" {
			reply = c
		}
	}
	if reply.ParentID != "c1" {
		t.Errorf("reply parent = %q, want c1 (prefix stripped)", reply.ParentID)
	}

	for _, c := range comments {
		if c.ID == "c3" && !c.Removed {
			t.Error("removed comment not flagged")
		}
	}
}

func TestRequestsCarryUserAgent(t *testing.T) {
	var agent string
	mux := http.NewServeMux()
	mux.HandleFunc("/r/offmychest/hot.json", func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":"","children":[]}}`)
	})
	c := newTestClient(t, mux)

	if _, err := drainPosts(t, c.ListPosts(context.Background(), "offmychest", 5)); err != nil {
		t.Fatalf("draining posts: %v", err)
	}
	if agent != "test-agent/1.0" {
		t.Errorf("user agent = %q, want test-agent/1.0", agent)
	}
}
