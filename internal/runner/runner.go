// internal/runner/runner.go
// Package runner executes task-list batches: bounded concurrent sessions
// with rate-limited starts. Each task runs in its own isolated browser
// session; one task failing never aborts the batch.
package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/interact"
)

// Task is one prompt of a batch.
type Task struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	// WaitTimeMS is a cooldown applied after the task finishes, before its
	// slot is released. Spaces out sessions beyond the start rate limit.
	WaitTimeMS int `json:"wait_time_ms"`
}

// TaskList is the batch file format.
type TaskList struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tasks       []Task `json:"tasks"`
}

// LoadTaskList reads and validates a batch file.
func LoadTaskList(path string) (*TaskList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task list %q: %w", path, err)
	}

	var list TaskList
	if err := jsoniter.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse task list %q: %w", path, err)
	}
	if len(list.Tasks) == 0 {
		return nil, fmt.Errorf("task list %q contains no tasks", path)
	}
	for i, task := range list.Tasks {
		if task.Prompt == "" {
			return nil, fmt.Errorf("task list %q: task %d has an empty prompt", path, i)
		}
	}
	return &list, nil
}

// SessionFunc runs one full interaction for a task. Implemented by the CLI
// wiring; injected so the runner is testable without a browser.
type SessionFunc func(ctx context.Context, task Task, sessionID string) (*interact.Result, error)

// TaskResult pairs a task with its session outcome.
type TaskResult struct {
	Task      Task
	SessionID string
	Result    *interact.Result
	Err       error
	Elapsed   time.Duration
}

// Runner executes task lists.
type Runner struct {
	cfg     config.RunnerConfig
	logger  *zap.Logger
	session SessionFunc
	limiter *rate.Limiter
}

// New builds a runner. RatePerMinute <= 0 disables start throttling.
func New(cfg config.RunnerConfig, session SessionFunc, logger *zap.Logger) *Runner {
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(cfg.RatePerMinute / 60.0)
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger.Named("runner"),
		session: session,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run executes every task and returns one result per task, in task order.
// Individual failures are recorded in their TaskResult; the returned error
// is non-nil only when the batch itself was aborted (context cancellation).
func (r *Runner) Run(ctx context.Context, list *TaskList) ([]TaskResult, error) {
	r.logger.Info("Batch started",
		zap.String("title", list.Title),
		zap.Int("tasks", len(list.Tasks)),
		zap.Int("concurrency", r.cfg.Concurrency))

	results := make([]TaskResult, len(list.Tasks))
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	g := new(errgroup.Group)

	var launchErr error
	for i, task := range list.Tasks {
		if err := r.limiter.Wait(ctx); err != nil {
			launchErr = fmt.Errorf("batch aborted before task %d: %w", i, err)
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			launchErr = fmt.Errorf("batch aborted before task %d: %w", i, err)
			break
		}

		i, task := i, task
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = r.runTask(ctx, i, task)
			return nil
		})
	}

	_ = g.Wait()

	done, failed := 0, 0
	for _, res := range results {
		switch {
		case res.SessionID == "":
			// Never launched.
		case res.Err != nil:
			failed++
		default:
			done++
		}
	}
	r.logger.Info("Batch finished", zap.Int("succeeded", done), zap.Int("failed", failed))
	return results, launchErr
}

func (r *Runner) runTask(ctx context.Context, index int, task Task) TaskResult {
	sessionID := uuid.NewString()
	logger := r.logger.With(zap.Int("task", index), zap.String("session_id", sessionID))
	logger.Info("Task started", zap.String("title", task.Title))

	start := time.Now()
	result, err := r.session(ctx, task, sessionID)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error("Task failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		logger.Info("Task completed", zap.Duration("elapsed", elapsed))
	}

	if task.WaitTimeMS > 0 {
		cooldown := time.Duration(task.WaitTimeMS) * time.Millisecond
		timer := time.NewTimer(cooldown)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	return TaskResult{
		Task:      task,
		SessionID: sessionID,
		Result:    result,
		Err:       err,
		Elapsed:   elapsed,
	}
}
