package work

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	tests := []struct {
		name            string
		numWorkers      int
		taskChannelSize int
		expectError     bool
	}{
		{"valid pool", 5, 10, false},
		{"zero workers", 0, 10, true},
		{"negative workers", -1, 10, true},
		{"negative channel size", 5, -1, true},
		{"zero channel size", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewWorkerPool[string](tt.numWorkers, tt.taskChannelSize)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if pool == nil {
				t.Error("Expected pool but got nil")
			}
		})
	}
}

func TestWorkerPoolBasicOperation(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](2, 5)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "test-pool")
	defer pool.Stop()

	var executedCount int64
	task, err := NewTask[string](
		func(ctx context.Context) (string, error) {
			atomic.AddInt64(&executedCount, 1)
			return "done", nil
		},
		WithID[string]("task-1"),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	select {
	case result := <-pool.Results():
		if result.TaskID != "task-1" {
			t.Errorf("TaskID = %q, want %q", result.TaskID, "task-1")
		}
		if !result.IsSuccess() {
			t.Errorf("task failed: %v", result.Error)
		}
		if result.Result != "done" {
			t.Errorf("Result = %q, want %q", result.Result, "done")
		}
		if result.Duration < 0 {
			t.Errorf("Duration = %v, want >= 0", result.Duration)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	if got := atomic.LoadInt64(&executedCount); got != 1 {
		t.Errorf("executed count = %d, want 1", got)
	}
}

func TestWorkerPoolMultipleTasks(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[int](3, 10)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "multi-pool")
	defer pool.Stop()

	const numTasks = 9
	for i := 0; i < numTasks; i++ {
		i := i
		task := MustNewTask(
			func(ctx context.Context) (int, error) {
				return i * 2, nil
			},
			WithID[int](fmt.Sprintf("task-%d", i)),
		)
		if err := pool.AddTask(ctx, task); err != nil {
			t.Fatalf("AddTask %d failed: %v", i, err)
		}
	}

	seen := make(map[string]int)
	for i := 0; i < numTasks; i++ {
		select {
		case result := <-pool.Results():
			if result.Error != nil {
				t.Errorf("task %s failed: %v", result.TaskID, result.Error)
			}
			seen[result.TaskID] = result.Result
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d results", i)
		}
	}

	if len(seen) != numTasks {
		t.Errorf("got %d distinct results, want %d", len(seen), numTasks)
	}
	if got := seen["task-4"]; got != 8 {
		t.Errorf("task-4 result = %d, want 8", got)
	}
}

func TestWorkerPoolTaskError(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "error-pool")
	defer pool.Stop()

	wantErr := errors.New("listing failed")
	var handlerCalls int64
	task := MustNewTask(
		func(ctx context.Context) (string, error) {
			return "", wantErr
		},
		WithID[string]("failing"),
		WithErrorHandler[string](func(err error) {
			atomic.AddInt64(&handlerCalls, 1)
		}),
	)

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if result.IsSuccess() {
			t.Error("expected failure, got success")
		}
		if !errors.Is(result.Error, wantErr) {
			t.Errorf("Error = %v, want %v", result.Error, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}

	if got := atomic.LoadInt64(&handlerCalls); got != 1 {
		t.Errorf("error handler called %d times, want 1", got)
	}
}

func TestWorkerPoolTaskTimeout(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "timeout-pool")
	defer pool.Stop()

	task := MustNewTask(
		func(ctx context.Context) (string, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
		WithID[string]("slow"),
		WithTimeout[string](50*time.Millisecond),
	)

	if err := pool.AddTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	select {
	case result := <-pool.Results():
		if !errors.Is(result.Error, ErrTaskTimeout) {
			t.Errorf("Error = %v, want ErrTaskTimeout", result.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestWorkerPoolAddTaskAfterStop(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](1, 1)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "stopped-pool")
	pool.Stop()

	task := MustNewTask(func(ctx context.Context) (string, error) {
		return "never runs", nil
	})

	if err := pool.AddTask(ctx, task); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("AddTask after Stop = %v, want ErrPoolStopped", err)
	}
}

func TestWorkerPoolAddTaskContextCancelled(t *testing.T) {
	// Fill the queue of a pool that never drains it, then verify a
	// cancelled context unblocks AddTask.
	pool, err := NewWorkerPool[string](1, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := MustNewTask(func(ctx context.Context) (string, error) {
		return "", nil
	})

	if err := pool.AddTask(ctx, task); !errors.Is(err, context.Canceled) {
		t.Errorf("AddTask with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestWorkerPoolStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[string](2, 2)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "idempotent-pool")
	pool.Stop()
	pool.Stop() // must not panic on double close
}

func TestWorkerPoolResultsClosedAfterStop(t *testing.T) {
	ctx := context.Background()
	pool, err := NewWorkerPool[int](2, 4)
	if err != nil {
		t.Fatal(err)
	}

	pool.Start(ctx, "drain-pool")

	for i := 0; i < 4; i++ {
		task := MustNewTask(func(ctx context.Context) (int, error) {
			return 1, nil
		})
		if err := pool.AddTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	// Give workers a moment to run the queue down before stopping.
	time.Sleep(100 * time.Millisecond)
	pool.Stop()

	count := 0
	for range pool.Results() {
		count++
	}
	if count == 0 {
		t.Error("expected at least one result before channel close")
	}
}

func TestWorkerPoolStopWithStragglerTask(t *testing.T) {
	pool, err := NewWorkerPoolWithConfig[int](PoolConfig{
		NumWorkers:      1,
		TaskChannelSize: 1,
		ShutdownTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	pool.Start(context.Background(), "straggler-pool")

	started := make(chan struct{})
	release := make(chan struct{})
	task := MustNewTask(func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 7, nil
	}, WithTimeout[int](time.Minute))
	if err := pool.AddTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	<-started

	// Stop gives up waiting after ShutdownTimeout but must leave the
	// results channel open for the task still running.
	stopDone := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after shutdown timeout")
	}

	close(release)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-pool.Results():
			if !ok {
				return // closed cleanly once the straggler finished
			}
			if r.Error != nil || r.Result != 7 {
				t.Errorf("result = %v (err %v), want 7", r.Result, r.Error)
			}
		case <-deadline:
			t.Fatal("results channel never closed after straggler finished")
		}
	}
}

func TestNewTaskValidation(t *testing.T) {
	if _, err := NewTask[string](nil); !errors.Is(err, ErrNilTaskFunc) {
		t.Errorf("NewTask(nil) = %v, want ErrNilTaskFunc", err)
	}

	task, err := NewTask(func(ctx context.Context) (string, error) {
		return "", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.ExecutorID() == "" {
		t.Error("expected generated task ID, got empty string")
	}
	if task.Timeout() != 0 {
		t.Errorf("default Timeout = %v, want 0", task.Timeout())
	}
}

func TestNewWorkerPoolWithConfigDefaults(t *testing.T) {
	pool, err := NewWorkerPoolWithConfig[string](PoolConfig{
		NumWorkers:      2,
		TaskChannelSize: 1,
		ResultChanSize:  -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if pool.config.ResultChanSize != 4 {
		t.Errorf("ResultChanSize = %d, want 4", pool.config.ResultChanSize)
	}
	if pool.config.TaskTimeout != 30*time.Second {
		t.Errorf("TaskTimeout = %v, want 30s", pool.config.TaskTimeout)
	}
	if pool.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", pool.config.ShutdownTimeout)
	}
}
