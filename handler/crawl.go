package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aurachat/empathy-crawler-service/common/config"
	"github.com/aurachat/empathy-crawler-service/common/db"
	"github.com/aurachat/empathy-crawler-service/common/logger"
	"github.com/aurachat/empathy-crawler-service/common/messaging"
	"github.com/aurachat/empathy-crawler-service/common/models"
	"github.com/aurachat/empathy-crawler-service/common/ratelimit"
	"github.com/aurachat/empathy-crawler-service/common/services"
	"github.com/aurachat/empathy-crawler-service/common/source/reddit"
	"github.com/aurachat/empathy-crawler-service/common/storage"
	"github.com/aurachat/empathy-crawler-service/common/utils"
	"github.com/aurachat/empathy-crawler-service/common/work"
	"github.com/aurachat/empathy-crawler-service/crawler"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

// crawlLockID keys the Redis lock that keeps a single crawl active
// across all instances.
const crawlLockID = "reddit-empathy"

type startCrawlRequest struct {
	Communities []string `json:"communities,omitempty"`
}

// CrawlHandler exposes the crawl lifecycle over HTTP: start a run,
// cancel it, and inspect progress.
type CrawlHandler struct {
	db         *db.DB
	natsClient *messaging.NatsBroker
	cfg        config.Config
	runs       services.CrawlRunService
	runManager *work.RunManager
	events     *logger.LogService
	router     *chi.Mux

	mu      sync.Mutex
	current *crawler.Orchestrator
	cancel  context.CancelFunc
	runID   string
}

func NewCrawlHandler(db *db.DB, natsClient *messaging.NatsBroker, cfg config.Config) *CrawlHandler {
	h := &CrawlHandler{
		db:         db,
		natsClient: natsClient,
		cfg:        cfg,
		runs:       services.NewCrawlRunRepository(db.Pool),
		runManager: work.NewRunManager(db),
		events:     logger.NewLogService(db),
	}

	r := chi.NewRouter()
	r.Post("/start", h.handleStart)
	r.Post("/cancel", h.handleCancel)
	r.Get("/status", h.handleStatus)
	r.Get("/runs/latest", h.handleLatestRun)
	r.Get("/runs/{id}", h.handleGetRun)
	r.Get("/runs/{id}/outcomes", h.handleListOutcomes)

	h.router = r
	return h
}

func (h *CrawlHandler) Router() *chi.Mux {
	return h.router
}

func (h *CrawlHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.runManager.Start(r.Context(), crawlLockID); err != nil {
		utils.WriteError(w, http.StatusConflict, err.Error())
		return
	}

	crawlCfg := h.cfg.Crawl
	if len(req.Communities) > 0 {
		crawlCfg.Communities = req.Communities
	}

	// The engine outlives the request, so it must not inherit its context.
	orch, reporter, err := h.buildEngine(context.Background(), crawlCfg)
	if err != nil {
		_ = h.runManager.Fail(r.Context(), crawlLockID)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runID := reporter.RunID()
	orch.SetCommunityObserver(h.recordOutcome(runID))

	run := models.CrawlRun{
		ID:          runID,
		State:       "RUNNING",
		Communities: crawlCfg.Communities,
		StartedAt:   time.Now().UTC(),
	}
	if _, err := h.runs.Create(r.Context(), run); err != nil {
		log.Warn().Err(err).Str("runID", runID).Msg("failed to persist crawl run")
	}

	runCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.current = orch
	h.cancel = cancel
	h.runID = runID
	h.mu.Unlock()

	go h.runCrawl(runCtx, orch, runID)

	utils.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id":      runID,
		"communities": len(crawlCfg.Communities),
	})
}

func (h *CrawlHandler) runCrawl(ctx context.Context, orch *crawler.Orchestrator, runID string) {
	err := orch.Run(ctx)

	stats := orch.Snapshot()
	run := models.CrawlRun{
		ID:                runID,
		PostsProcessed:    int64(stats.PostsProcessed),
		CommentsExtracted: int64(stats.CommentsExtracted),
		PairsFound:        int64(stats.PairsFound),
	}

	bg, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if updateErr := h.runs.UpdateProgress(bg, run); updateErr != nil {
		log.Warn().Err(updateErr).Str("runID", runID).Msg("failed to persist crawl progress")
	}

	switch {
	case errors.Is(err, context.Canceled):
		log.Info().Str("runID", runID).Msg("Crawl run cancelled, drained partial progress")
		_ = h.runManager.Cancel(bg, crawlLockID)
		_ = h.runs.UpdateState(bg, runID, "CANCELLED", "")
	case err != nil:
		log.Error().Err(err).Str("runID", runID).Msg("Crawl run finished with error")
		_ = h.runManager.Fail(bg, crawlLockID)
		_ = h.runs.UpdateState(bg, runID, "FAILED", err.Error())
	default:
		_ = h.runManager.Complete(bg, crawlLockID)
		_ = h.runs.UpdateState(bg, runID, "COMPLETED", "")
	}

	h.mu.Lock()
	if h.runID == runID {
		h.current = nil
		h.cancel = nil
	}
	h.mu.Unlock()
}

// recordOutcome persists one community's result and logs the lifecycle
// event. Called from worker goroutines, so it must not touch handler state.
func (h *CrawlHandler) recordOutcome(runID string) func(string, crawler.Stats, error) {
	return func(community string, stats crawler.Stats, err error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		outcome := models.CommunityOutcome{
			ID:             uuid.NewString(),
			RunID:          runID,
			Community:      community,
			Succeeded:      err == nil,
			PostsProcessed: int64(stats.PostsProcessed),
			PairsFound:     int64(stats.PairsFound),
		}
		if err != nil {
			outcome.Error = pgtype.Text{String: err.Error(), Valid: true}
		}

		if recErr := h.runs.RecordOutcome(ctx, outcome); recErr != nil {
			log.Warn().Err(recErr).
				Str("runID", runID).
				Str("community", community).
				Msg("failed to persist community outcome")
		}
		if logErr := h.events.LogCommunityFinished(ctx, runID, community, int64(stats.PairsFound)); logErr != nil {
			log.Warn().Err(logErr).Str("community", community).Msg("failed to record crawl event")
		}

		// Crawls can outlive the initial lease; each finished community
		// renews it.
		if _, leaseErr := h.runManager.Resume(ctx, crawlLockID); leaseErr != nil {
			log.Warn().Err(leaseErr).Str("runID", runID).Msg("failed to extend crawl lease")
		}
	}
}

// buildEngine assembles the crawl pipeline from configuration.
func (h *CrawlHandler) buildEngine(ctx context.Context, crawlCfg config.CrawlConfig) (*crawler.Orchestrator, *crawler.ProgressReporter, error) {
	src, err := reddit.NewClient(ctx, h.cfg.Reddit)
	if err != nil {
		return nil, nil, err
	}

	limiter, err := ratelimit.New(crawlCfg.RequestsPerSecond, 1)
	if err != nil {
		return nil, nil, err
	}
	src.SetLimiter(limiter)

	writer, err := crawler.NewBatchWriter(crawlCfg.OutputDir, crawlCfg.FlushThreshold)
	if err != nil {
		return nil, nil, err
	}
	if h.cfg.GCS.Bucket != "" && storage.StorageClient != nil {
		writer.SetMirror(storage.StorageClient, h.cfg.GCS.Bucket)
	}

	checkpoints, err := crawler.NewCheckpointManager(crawlCfg.CheckpointPath)
	if err != nil {
		return nil, nil, err
	}

	var pub crawler.EventPublisher
	if h.natsClient != nil {
		pub = h.natsClient
	}
	reporter := crawler.NewProgressReporter(pub)

	orch := crawler.NewOrchestrator(crawlCfg, src, limiter, writer, checkpoints, reporter)
	return orch, reporter, nil
}

func (h *CrawlHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	cancel := h.cancel
	runID := h.runID
	h.mu.Unlock()

	if cancel == nil {
		utils.WriteError(w, http.StatusNotFound, "no crawl in progress")
		return
	}

	cancel()
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    runID,
		"cancelled": true,
	})
}

func (h *CrawlHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	orch := h.current
	runID := h.runID
	h.mu.Unlock()

	if orch == nil {
		// Another instance may hold the crawl lease.
		state := "IDLE"
		if running, err := h.runManager.IsRunning(r.Context(), crawlLockID); err == nil && running {
			state = "RUNNING"
		}
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"state": state,
		})
		return
	}

	stats := orch.Snapshot()
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":                runID,
		"state":                 orch.State().String(),
		"posts_processed":       stats.PostsProcessed,
		"comments_extracted":    stats.CommentsExtracted,
		"pairs_found":           stats.PairsFound,
		"communities_completed": stats.CommunitiesCompleted,
		"communities_failed":    stats.CommunitiesFailed,
	})
}

func (h *CrawlHandler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.GetLatest(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "no crawl runs recorded")
		return
	}
	utils.WriteJSON(w, http.StatusOK, run)
}

func (h *CrawlHandler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "crawl run not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, run)
}

func (h *CrawlHandler) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcomes, err := h.runs.ListOutcomes(r.Context(), id)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "failed to list community outcomes")
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 50)

	total := int64(len(outcomes))
	start := (page - 1) * perPage
	if start > len(outcomes) {
		start = len(outcomes)
	}
	end := start + perPage
	if end > len(outcomes) {
		end = len(outcomes)
	}

	utils.WritePagination(w, http.StatusOK, outcomes[start:end], page, perPage, total)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
