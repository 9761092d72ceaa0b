package vp

import (
	"errors"
	"fmt"
	"sync"
)

// Run executes fn once per thread as a fork-join parallel region and blocks
// until every thread has finished its local work.
//
// Error semantics follow the construction contract of the connection
// infrastructure: per-thread failures are captured, never short-circuit the
// region, and are joined after all threads complete. Work already committed
// by threads that did not fail stays committed; callers own that
// partial-failure contract.
//
// A panic inside fn is recovered and reported as that thread's error so one
// misbehaving builder cannot tear down the region.
func Run(threads int, fn func(tid int) error) error {
	if threads == 1 {
		return capture(0, fn)
	}

	errs := make([]error, threads)

	var wg sync.WaitGroup
	wg.Add(threads)
	for tid := 0; tid < threads; tid++ {
		go func(tid int) {
			defer wg.Done()
			errs[tid] = capture(tid, fn)
		}(tid)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func capture(tid int, fn func(tid int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vp: thread %d panicked: %v", tid, r)
		}
	}()
	return fn(tid)
}
