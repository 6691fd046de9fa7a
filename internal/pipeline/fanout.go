package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// runTasks fans out n tasks with bounded concurrency and joins before
// returning. Task i writes its outcome into slot i of the returned slice, so
// completion order never leaks into result order. A panicking task is
// contained and reported as that task's error; siblings keep running.
func runTasks(ctx context.Context, n, maxConcurrent int, task func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	if n == 0 {
		return errs
	}

	if maxConcurrent <= 0 {
		maxConcurrent = n
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()

			if err := sem.Acquire(ctx, 1); err != nil {
				errs[i] = fmt.Errorf("task %d not started: %w", i, err)
				return
			}
			defer sem.Release(1)

			errs[i] = task(ctx, i)
		}(i)
	}
	wg.Wait()
	return errs
}
