package lgadcore

import (
	"sync"
)

type job struct {
	index int
	hit   HitSample
}

type outcome struct {
	index  int
	result EventResult
}

// ProcessBatch runs hits through p on a fixed number of workers. Results
// keep the input order; stats are collected on the calling goroutine.
func ProcessBatch(p *Processor, hits []HitSample, workers int) ([]EventResult, RunStats) {
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan job, workers*2)
	results := make(chan outcome, workers*2)

	// Worker pool
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, _ := p.Process(j.hit)
				results <- outcome{index: j.index, result: res}
			}
		}()
	}

	// Send jobs
	go func() {
		for i, h := range hits {
			jobs <- job{index: i, hit: h}
		}
		close(jobs)
	}()

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results
	var stats RunStats
	final := make([]EventResult, len(hits))
	for r := range results {
		final[r.index] = r.result
		stats.Add(r.result)
	}
	return final, stats
}
