package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidChannelSize = errors.New("invalid channel size")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrTaskTimeout        = errors.New("task execution timeout")
)

// TaskResult represents the result of a task execution with type safety
type TaskResult[T any] struct {
	TaskID    string
	Result    T
	Error     error
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// IsSuccess returns true if the task completed successfully
func (tr *TaskResult[T]) IsSuccess() bool {
	return tr.Error == nil
}

// Executor is the generic unit of work a pool runs
type Executor[T any] interface {
	ExecutorID() string
	Execute(ctx context.Context) (T, error)
	OnError(error)
	Timeout() time.Duration // 0 means use the pool default
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	NumWorkers      int
	TaskChannelSize int
	ResultChanSize  int           // Buffer size for result channel
	TaskTimeout     time.Duration // Default timeout for tasks
	ShutdownTimeout time.Duration // Timeout for graceful shutdown
}

// Pool runs bounded concurrent tasks and funnels their results to a single
// channel. One pool is created per crawl batch and torn down with it.
type Pool[T any] struct {
	config   PoolConfig
	tasks    chan Executor[T]
	results  chan TaskResult[T]
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once

	started bool
	stopped bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a pool with numWorkers workers and a task queue of
// taskChannelSize
func NewWorkerPool[T any](numWorkers int, taskChannelSize int) (*Pool[T], error) {
	config := PoolConfig{
		NumWorkers:      numWorkers,
		TaskChannelSize: taskChannelSize,
		ResultChanSize:  numWorkers * 2,
		TaskTimeout:     30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	return NewWorkerPoolWithConfig[T](config)
}

// NewWorkerPoolWithConfig creates a pool with custom configuration
func NewWorkerPoolWithConfig[T any](config PoolConfig) (*Pool[T], error) {
	if config.NumWorkers <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	if config.TaskChannelSize < 0 {
		return nil, ErrInvalidChannelSize
	}

	if config.ResultChanSize < 0 {
		config.ResultChanSize = config.NumWorkers * 2
	}

	if config.TaskTimeout <= 0 {
		config.TaskTimeout = 30 * time.Second
	}

	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	return &Pool[T]{
		config:  config,
		tasks:   make(chan Executor[T], config.TaskChannelSize),
		results: make(chan TaskResult[T], config.ResultChanSize),
		quit:    make(chan struct{}),
	}, nil
}

// Start starts the worker pool
func (p *Pool[T]) Start(ctx context.Context, workerPoolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return // Already started
	}

	if p.stopped {
		log.Error().Msg("Cannot start a stopped pool")
		return
	}

	p.once.Do(func() {
		p.started = true
		p.startWorkers(ctx, workerPoolID)
		log.Debug().
			Str("workerPoolID", workerPoolID).
			Int("numWorkers", p.config.NumWorkers).
			Msg("Worker pool started")
	})
}

// Stop gracefully stops the worker pool
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.quit)
		close(p.tasks)

		// The results channel is closed only once every worker has exited,
		// otherwise a straggler task could send on a closed channel. Stop
		// itself still returns after ShutdownTimeout.
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(p.results)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(p.config.ShutdownTimeout):
			log.Warn().Dur("timeout", p.config.ShutdownTimeout).Msg("Worker pool shutdown timeout exceeded, results close pending worker exit")
		}
	})
}

// AddTask queues a task, blocking until there is room, the pool stops, or
// ctx is cancelled
func (p *Pool[T]) AddTask(ctx context.Context, task Executor[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the results channel
func (p *Pool[T]) Results() <-chan TaskResult[T] {
	return p.results
}

// startWorkers starts the worker goroutines
func (p *Pool[T]) startWorkers(ctx context.Context, poolID string) {
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					p.executeTask(ctx, task, workerID, poolID)
				}
			}
		}(i)
	}
}

// executeTask runs one task under its timeout and reports the result
func (p *Pool[T]) executeTask(ctx context.Context, task Executor[T], workerID int, poolID string) {
	taskID := task.ExecutorID()
	startTime := time.Now()

	timeout := p.config.TaskTimeout
	if taskTimeout := task.Timeout(); taskTimeout > 0 {
		timeout = taskTimeout
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := task.Execute(taskCtx)
	endTime := time.Now()

	// Normalize deadline failures so callers can branch on one sentinel.
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || taskCtx.Err() == context.DeadlineExceeded) {
		err = ErrTaskTimeout
	}

	taskResult := TaskResult[T]{
		TaskID:    taskID,
		Result:    result,
		Error:     err,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	}

	if err != nil {
		task.OnError(err)
	}

	// Never block a worker forever on a full results channel.
	select {
	case p.results <- taskResult:
	case <-time.After(1 * time.Second):
		log.Warn().
			Str("workerPoolID", poolID).
			Int("workerID", workerID).
			Str("taskID", taskID).
			Msg("Result channel full after timeout, dropping result")
	case <-p.quit:
	}
}
