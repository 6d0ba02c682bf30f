package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/backoff"
	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/ratelimit"
	"github.com/aurachat/empathy-crawler-service/common/source"
	"github.com/aurachat/empathy-crawler-service/common/work"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// State is the orchestrator's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateRunning
	StateDraining
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrAuthFatal wraps a credential rejection that aborted the whole run.
var ErrAuthFatal = errors.New("source authentication failed")

// EventPublisher receives progress notifications at batch boundaries. A nil
// publisher disables events.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// communityResult is what one worker task reports back for its community.
type communityResult struct {
	Community string
	Stats     Stats
	Err       error
}

// Orchestrator drives the crawl: it partitions communities into batches,
// runs a bounded worker pool per batch, funnels conversations into the
// batch writer and advances the checkpoint at batch boundaries. Workers
// never touch the checkpoint manager directly.
type Orchestrator struct {
	cfg         config.CrawlConfig
	src         source.Client
	limiter     *ratelimit.Limiter
	writer      *BatchWriter
	checkpoints *CheckpointManager
	retry       backoff.Policy
	reporter    *ProgressReporter
	observer    func(community string, stats Stats, err error)

	state atomic.Int32

	mu    sync.Mutex
	stats Stats
}

// NewOrchestrator wires the crawl engine together. reporter may be nil.
func NewOrchestrator(
	cfg config.CrawlConfig,
	src source.Client,
	limiter *ratelimit.Limiter,
	writer *BatchWriter,
	checkpoints *CheckpointManager,
	reporter *ProgressReporter,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		src:         src,
		limiter:     limiter,
		writer:      writer,
		checkpoints: checkpoints,
		retry:       backoff.DefaultPolicy(),
		reporter:    reporter,
	}
}

// SetCommunityObserver registers a callback invoked once per community
// after its crawl finishes, successful or not. Must be set before Run.
func (o *Orchestrator) SetCommunityObserver(fn func(community string, stats Stats, err error)) {
	o.observer = fn
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	log.Info().Str("state", s.String()).Msg("Orchestrator state changed")
}

// Snapshot returns the current aggregate counters.
func (o *Orchestrator) Snapshot() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// Run executes the crawl until every community is processed, a fatal error
// occurs, or ctx is cancelled. Cancellation triggers draining: in-flight
// work gets a bounded grace period, finished communities are flushed and
// checkpointed, unfinished ones are left for the next run.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(StateLoading)

	cp, err := o.checkpoints.Load()
	if err != nil {
		o.setState(StateFailed)
		return err
	}

	o.mu.Lock()
	o.stats = cp.Stats
	o.mu.Unlock()

	completed := make(map[string]struct{}, len(cp.CompletedCommunities))
	for _, c := range cp.CompletedCommunities {
		completed[c] = struct{}{}
	}
	remaining := lo.Filter(o.cfg.Communities, func(c string, _ int) bool {
		_, done := completed[c]
		return !done
	})
	batches := lo.Chunk(remaining, o.cfg.BatchSize)

	log.Info().
		Int("communities", len(o.cfg.Communities)).
		Int("remaining", len(remaining)).
		Int("batches", len(batches)).
		Int("nextBatchIndex", cp.NextBatchIndex).
		Msg("Crawl plan computed")

	o.reporter.CrawlStarted(len(remaining), len(batches))
	o.setState(StateRunning)

	// Workers run off a context that survives the shutdown signal by the
	// drain timeout, so in-flight fetches can finish cleanly.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		select {
		case <-ctx.Done():
			o.setState(StateDraining)
			select {
			case <-time.After(o.cfg.DrainTimeout):
				stopWork()
			case <-workCtx.Done():
			}
		case <-workCtx.Done():
		}
	}()

	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		results, fatal := o.runBatch(workCtx, batch)

		finished := make([]string, 0, len(batch))
		var batchStats Stats
		for _, r := range results {
			batchStats.Add(r.Stats)
			if r.Err == nil {
				finished = append(finished, r.Community)
			}
		}

		// Flush before checkpoint: a community is only marked complete
		// once its conversations are durable.
		if err := o.flushBatch(workCtx); err != nil {
			o.setState(StateFailed)
			return fmt.Errorf("batch flush: %w", err)
		}

		cp.CompletedCommunities = append(cp.CompletedCommunities, finished...)
		cp.NextBatchIndex++
		o.mu.Lock()
		o.stats.Add(batchStats)
		cp.Stats = o.stats
		o.mu.Unlock()

		if err := o.checkpoints.Commit(cp); err != nil {
			o.setState(StateFailed)
			return fmt.Errorf("checkpoint commit: %w", err)
		}

		o.reporter.BatchCompleted(cp.NextBatchIndex, finished, cp.Stats)

		if fatal != nil {
			o.setState(StateFailed)
			return fatal
		}
	}

	stopWork()
	<-drainDone

	if ctx.Err() != nil {
		log.Info().Msg("Crawl drained, unfinished communities left for next run")
		return ctx.Err()
	}

	if err := o.writeSummary(); err != nil {
		log.Warn().Err(err).Msg("Failed to write extraction summary")
	}

	o.setState(StateCompleted)
	o.reporter.CrawlCompleted(o.Snapshot())
	log.Info().Interface("stats", o.Snapshot()).Msg("Crawl completed")
	return nil
}

// flushBatch makes the batch's conversations durable. When the drain
// deadline already expired the write still has to happen, so it runs on a
// fresh bounded context instead of the dead one.
func (o *Orchestrator) flushBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	return o.writer.Flush(ctx)
}

// runBatch fans the batch's communities out over a bounded worker pool and
// joins on them. It returns the results that arrived before shutdown plus
// the first fatal error, if any; communities without a result stay off the
// checkpoint and are picked up by the next run.
func (o *Orchestrator) runBatch(ctx context.Context, batch []string) ([]communityResult, error) {
	pool, err := work.NewWorkerPool[communityResult](o.cfg.Concurrency, len(batch))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	pool.Start(ctx, "crawl-batch")
	defer pool.Stop()

	// Once ctx is cancelled, workers exit without running tasks still in
	// the queue. Stopping the pool then closes Results, so the join below
	// never waits on results that will not come.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pool.Stop()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	queued := 0
	for _, community := range batch {
		name := community
		task := work.MustNewTask(func(taskCtx context.Context) (communityResult, error) {
			stats, err := o.crawlCommunity(taskCtx, name)
			return communityResult{Community: name, Stats: stats, Err: err}, nil
		}, work.WithID[communityResult](name), work.WithTimeout[communityResult](30*time.Minute))

		// AddTask only fails when the pool stopped or ctx was cancelled.
		// Either way the batch is draining: stop queueing and join on
		// whatever already entered the pool.
		if err := pool.AddTask(ctx, task); err != nil {
			log.Warn().Err(err).
				Str("community", name).
				Msg("Stopped queueing mid-batch, community left for next run")
			break
		}
		queued++
	}

	var fatal error
	results := make([]communityResult, 0, queued)
	for len(results) < queued {
		taskResult, ok := <-pool.Results()
		if !ok {
			break
		}

		r := taskResult.Result
		if taskResult.Error != nil && r.Community == "" {
			// Pool-level failure (timeout before the task ran).
			r = communityResult{Community: taskResult.TaskID, Err: taskResult.Error}
		}
		if r.Err != nil {
			if source.IsAuth(r.Err) {
				if fatal == nil {
					fatal = fmt.Errorf("%w: community %s: %v", ErrAuthFatal, r.Community, r.Err)
				}
			} else {
				log.Warn().Err(r.Err).
					Str("community", r.Community).
					Msg("Community failed, will retry on a later run")
				r.Stats.CommunitiesFailed++
			}
		} else {
			r.Stats.CommunitiesCompleted++
		}
		if o.observer != nil {
			o.observer(r.Community, r.Stats, r.Err)
		}
		results = append(results, r)
	}

	return results, fatal
}

// crawlCommunity fetches one community's posts and comments, extracts
// exchange pairs and pushes conversations to the writer. Returns an error
// only when the community could not be processed; per-post problems are
// retried, then skipped and counted.
func (o *Orchestrator) crawlCommunity(ctx context.Context, community string) (Stats, error) {
	var stats Stats
	extractor := NewExtractor(o.cfg)

	log.Debug().Str("community", community).Msg("Crawling community")

	var posts []source.Post
	err := backoff.Retry(ctx, o.retry, o.retryable, func(ctx context.Context) error {
		posts = posts[:0]
		seq := o.src.ListPosts(ctx, community, o.cfg.PostsPerCommunity)
		for {
			post, ok, err := seq.Next(ctx)
			if err != nil {
				o.noteRateLimit(err)
				return err
			}
			if !ok {
				return nil
			}
			posts = append(posts, post)
		}
	})
	if err != nil {
		if source.IsUnavailable(err) {
			return stats, nil
		}
		return stats, err
	}

	for _, post := range posts {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !o.admitPost(post) {
			continue
		}

		comments, err := o.fetchComments(ctx, post.ID)
		if err != nil {
			if source.IsAuth(err) || errors.Is(err, context.Canceled) {
				return stats, err
			}
			log.Warn().Err(err).
				Str("community", community).
				Str("postID", post.ID).
				Msg("Skipping post after retries")
			continue
		}
		if len(comments) < 2 {
			continue
		}

		conv := extractor.Extract(community, post, comments)
		if err := o.writer.Add(ctx, conv); err != nil {
			return stats, err
		}

		stats.PostsProcessed++
		stats.CommentsExtracted += len(comments)
		stats.PairsFound += len(conv.Pairs)
	}

	log.Info().
		Str("community", community).
		Int("posts", stats.PostsProcessed).
		Int("pairs", stats.PairsFound).
		Msg("Community crawled")
	return stats, nil
}

// fetchComments drains one post's comment sequence with bounded retries.
func (o *Orchestrator) fetchComments(ctx context.Context, postID string) ([]source.Comment, error) {
	var comments []source.Comment
	err := backoff.Retry(ctx, o.retry, o.retryable, func(ctx context.Context) error {
		comments = comments[:0]
		seq := o.src.ListComments(ctx, postID, o.cfg.CommentsPerPost)
		for {
			comment, ok, err := seq.Next(ctx)
			if err != nil {
				o.noteRateLimit(err)
				return err
			}
			if !ok {
				return nil
			}
			comments = append(comments, comment)
		}
	})
	if err != nil && source.IsUnavailable(err) {
		return nil, nil
	}
	return comments, err
}

// admitPost applies the cheap pre-fetch filters that do not need comments.
func (o *Orchestrator) admitPost(post source.Post) bool {
	if post.CommentCount < 2 {
		return false
	}
	if post.Score < o.cfg.MinPostScore {
		return false
	}
	return len(post.Title)+len(post.Body) >= o.cfg.MinCommentLength
}

// retryable decides which source failures get another attempt. Rate limits
// are retried after the limiter's cooldown; transient faults are retried up
// to the policy cap; auth and gone-content failures are not retried.
func (o *Orchestrator) retryable(err error) bool {
	return source.IsTransient(err) || source.IsRateLimited(err)
}

// noteRateLimit feeds upstream throttle signals into the shared limiter.
func (o *Orchestrator) noteRateLimit(err error) {
	if o.limiter != nil && source.IsRateLimited(err) {
		o.limiter.Throttle(source.RetryAfterHint(err))
	}
}
