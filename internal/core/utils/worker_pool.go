package utils

import "sync"

// CompletedTask pairs a worker's output with its error; exactly one of the
// two is meaningful.
type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool drains queue with up to maxWorkers goroutines and writes every
// outcome to completed, closing it once the queue is exhausted. The queue
// must already be closed; completed should be buffered for the full queue so
// workers never block on slow consumers.
func RunInPool[In any, Out any](worker func(In) (Out, error), queue chan In, completed chan CompletedTask[Out], maxWorkers int) {
	workers := min(len(queue), maxWorkers)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					next, ok := <-queue
					if !ok {
						return
					}

					res, err := worker(next)
					if err != nil {
						completed <- CompletedTask[Out]{Error: err}
					} else {
						completed <- CompletedTask[Out]{Result: res, Error: nil}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
