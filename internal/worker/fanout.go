// Package worker runs groups of independent store operations concurrently and
// collects every outcome. One task failing never cancels its siblings.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of work
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome is the settled result of a Task, in submission order
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// RunAll starts every task, at most limit at a time (limit <= 0 means no
// limit), and waits for all of them. The returned slice is index-aligned with
// tasks. A panicking task is reported as a failed outcome.
func RunAll(ctx context.Context, limit int, tasks []Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			start := time.Now()
			err := runTask(ctx, task)
			outcomes[i] = Outcome{Name: task.Name, Err: err, Duration: time.Since(start)}
			// Never return the error: errgroup only remembers the first one
			// and we want all of them.
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}

// Failed returns only the outcomes that carry an error
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
