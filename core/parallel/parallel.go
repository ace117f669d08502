// Package parallel provides bounded fan-out helpers used by the ensemble
// estimators.
package parallel

import (
	"runtime"
	"sync"
)

// Workers normalises a user supplied job count: values below 1 mean one
// worker per CPU core, and there is never more than one worker per item.
func Workers(jobs, items int) int {
	if jobs < 1 {
		jobs = runtime.NumCPU()
	}
	if jobs > items {
		jobs = items
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// Parallelize divides items into at most workers contiguous ranges and
// executes fn for each range (start, end) in its own goroutine.
func Parallelize(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	numWorkers := Workers(workers, items)
	if numWorkers == 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ForEach calls fn for every index in [0, items) using at most workers
// goroutines. All calls run to completion; the error of the lowest failing
// index is returned so the result does not depend on scheduling.
func ForEach(items, workers int, fn func(i int) error) error {
	errs := make([]error, items)
	Parallelize(items, workers, func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = fn(i)
		}
	})
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
