package worker

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/models"
	"github.com/kacperjurak/golgadcore/pkg/profiling"
)

// ErrPoolClosed is returned for work submitted after Shutdown
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool manages concurrent event processing workers
type Pool struct {
	jobs         chan models.WorkItem
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	sends        sync.WaitGroup
	processor    ProcessorFunc
	webhook      WebhookFunc

	mu    sync.Mutex
	stats lgadcore.RunStats
}

// ProcessorFunc defines the signature for event processing
type ProcessorFunc func(hit lgadcore.HitSample) (lgadcore.EventResult, error)

// WebhookFunc delivers one queued report
type WebhookFunc func(item models.WebhookItem) error

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	// Webhook is optional; without it queued reports are dropped
	Webhook WebhookFunc
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}

	// do not block queueing new jobs even if the workers are already busy
	pool := &Pool{
		jobs:         make(chan models.WorkItem, opts.Workers*2),
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4), // webhooks are slower than fits
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		webhook:      opts.Webhook,
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.webhookProcessor()

	log.Printf("🔧 Worker pool started with %d workers", p.workers)
}

// Workers returns the number of processing goroutines
func (p *Pool) Workers() int {
	return p.workers
}

// worker processes event jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			result := p.processJob(job)
			if job.Reply != nil {
				job.Reply <- result
			}

		case <-p.shutdown:
			return
		}
	}
}

// processJob runs one hit through the processor and records its outcome
func (p *Pool) processJob(job models.WorkItem) models.WorkResult {
	startTime := time.Now()
	res, err := p.processor(job.Hit)
	processingTime := time.Since(startTime)

	p.mu.Lock()
	p.stats.Add(res)
	p.mu.Unlock()

	return models.WorkResult{
		ID:             job.ID,
		RequestID:      job.RequestID,
		BatchID:        job.BatchID,
		Result:         res,
		ProcessingTime: processingTime,
		Success:        err == nil && res.State == lgadcore.StateDone,
	}
}

// Stats returns the totals over every job processed so far
func (p *Pool) Stats() lgadcore.RunStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// webhookProcessor handles webhook requests asynchronously
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case webhook := <-p.webhookQueue:
			// Process webhook asynchronously without blocking workers
			p.sends.Add(1)
			go p.sendWebhook(webhook)

		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) sendWebhook(webhook models.WebhookItem) {
	defer p.sends.Done()
	if p.webhook == nil {
		return
	}
	prof := profiling.NewWebhookProfiler(webhook.RequestID)
	err := p.webhook(webhook)
	prof.Finish(err == nil)
	if err != nil {
		log.Printf("❌ Webhook for %s failed: %v", webhook.RequestID, err)
	}
}

// SubmitJob submits a job to the worker pool
func (p *Pool) SubmitJob(job models.WorkItem) error {
	select {
	case <-p.shutdown:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
		// Job submitted successfully
		return nil
	default:
		log.Printf("⚠️  Worker pool jobs channel full, job may be delayed")
	}

	// Block until space available
	select {
	case p.jobs <- job:
		return nil
	case <-p.shutdown:
		return ErrPoolClosed
	}
}

// Run submits the hits as one batch and waits for all of them. Results keep
// the order of hits. It fails with ErrPoolClosed once Shutdown has started.
func (p *Pool) Run(batchID string, requestIDs []string, hits []lgadcore.HitSample) ([]models.WorkResult, error) {
	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	reply := make(chan models.WorkResult, len(hits))
	go func() {
		for i, h := range hits {
			err := p.SubmitJob(models.WorkItem{
				ID:        i,
				RequestID: requestIDs[i],
				BatchID:   batchID,
				Hit:       h,
				StartTime: time.Now(),
				Reply:     reply,
			})
			if err != nil {
				return
			}
		}
	}()

	results := make([]models.WorkResult, len(hits))
	for range hits {
		select {
		case r := <-reply:
			results[r.ID] = r
		case <-p.shutdown:
			return nil, ErrPoolClosed
		}
	}
	return results, nil
}

// QueueWebhook queues a webhook for async processing
func (p *Pool) QueueWebhook(webhook models.WebhookItem) {
	select {
	case p.webhookQueue <- webhook:
		// Webhook queued successfully
	default:
		log.Printf("⚠️  Webhook queue full, dropping webhook for %s", webhook.RequestID)
	}
}

// Shutdown gracefully shuts down the worker pool
func (p *Pool) Shutdown() {
	log.Printf("🛑 Shutting down worker pool...")
	p.closeOnce.Do(func() { close(p.shutdown) })
	p.wg.Wait()
	p.sends.Wait()
	log.Printf("✅ Worker pool shutdown complete")
}
