package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNilTaskFunc = errors.New("task function cannot be nil")

// task is the default Executor implementation built from a plain function
type task[T any] struct {
	id        string
	fn        func(ctx context.Context) (T, error)
	onError   func(error)
	timeout   time.Duration
	createdAt time.Time
}

// TaskOption configures a task at construction time
type TaskOption[T any] func(*task[T])

// WithID sets a caller-chosen task ID instead of a generated one
func WithID[T any](id string) TaskOption[T] {
	return func(t *task[T]) {
		t.id = id
	}
}

// WithErrorHandler sets a callback invoked when the task fails
func WithErrorHandler[T any](handler func(error)) TaskOption[T] {
	return func(t *task[T]) {
		t.onError = handler
	}
}

// WithTimeout overrides the pool default timeout for this task
func WithTimeout[T any](timeout time.Duration) TaskOption[T] {
	return func(t *task[T]) {
		t.timeout = timeout
	}
}

// NewTask wraps fn into an Executor
func NewTask[T any](fn func(ctx context.Context) (T, error), opts ...TaskOption[T]) (Executor[T], error) {
	if fn == nil {
		return nil, ErrNilTaskFunc
	}

	t := &task[T]{
		fn:        fn,
		createdAt: time.Now(),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate task id: %w", err)
		}
		t.id = id.String()
	}

	return t, nil
}

// MustNewTask is like NewTask but panics on error. Use only when fn is
// statically known to be non-nil.
func MustNewTask[T any](fn func(ctx context.Context) (T, error), opts ...TaskOption[T]) Executor[T] {
	t, err := NewTask(fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *task[T]) ExecutorID() string {
	return t.id
}

func (t *task[T]) Execute(ctx context.Context) (T, error) {
	return t.fn(ctx)
}

func (t *task[T]) OnError(err error) {
	if t.onError != nil {
		t.onError(err)
	}
}

func (t *task[T]) Timeout() time.Duration {
	return t.timeout
}
