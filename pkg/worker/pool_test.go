package worker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/models"
)

func newProcessor(t *testing.T) *lgadcore.Processor {
	t.Helper()
	grid, err := lgadcore.NewPixelGrid(0.1, 0.5, 0.1, 30)
	if err != nil {
		t.Fatal(err)
	}
	p, err := lgadcore.NewProcessor(grid, lgadcore.DefaultOptions(grid))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPoolRunKeepsBatchOrder(t *testing.T) {
	pool := New(Options{Workers: 3, Processor: newProcessor(t).Process})
	defer pool.Shutdown()

	hits := make([]lgadcore.HitSample, 12)
	ids := make([]string, len(hits))
	for i := range hits {
		hits[i] = lgadcore.HitSample{EventID: int64(100 + i), Energy: 0.1, X: float64(i) - 6, Y: 1.3}
		ids[i] = fmt.Sprintf("req-%d", i)
	}
	hits[4].X = 50

	results, err := pool.Run("batch-1", ids, hits)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Result.Hit.EventID != int64(100+i) || r.RequestID != ids[i] || r.BatchID != "batch-1" {
			t.Fatalf("result %d = event %d req %s", i, r.Result.Hit.EventID, r.RequestID)
		}
		if want := i != 4; r.Success != want {
			t.Errorf("result %d success = %v", i, r.Success)
		}
	}

	stats := pool.Stats()
	if stats.Events != len(hits) || stats.Rejected != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPoolConcurrentBatchesDoNotMix(t *testing.T) {
	pool := New(Options{Workers: 4, Processor: newProcessor(t).Process})
	defer pool.Shutdown()

	done := make(chan []models.WorkResult, 2)
	for b := 0; b < 2; b++ {
		go func(b int) {
			hits := make([]lgadcore.HitSample, 8)
			ids := make([]string, len(hits))
			for i := range hits {
				hits[i] = lgadcore.HitSample{EventID: int64(b*1000 + i), Energy: 0.2, X: 0.1 * float64(i), Y: -2}
				ids[i] = fmt.Sprintf("b%d-%d", b, i)
			}
			results, err := pool.Run(fmt.Sprintf("batch-%d", b), ids, hits)
			if err != nil {
				t.Error(err)
			}
			done <- results
		}(b)
	}

	for k := 0; k < 2; k++ {
		results := <-done
		if len(results) == 0 {
			t.Fatal("batch returned no results")
		}
		batch := results[0].BatchID
		for _, r := range results {
			if r.BatchID != batch {
				t.Fatalf("batch %s received a result of %s", batch, r.BatchID)
			}
		}
	}
}

func TestPoolDeliversWebhooks(t *testing.T) {
	received := make(chan models.WebhookItem, 4)
	pool := New(Options{
		Workers:   1,
		Processor: newProcessor(t).Process,
		Webhook: func(item models.WebhookItem) error {
			received <- item
			return nil
		},
	})
	defer pool.Shutdown()

	pool.QueueWebhook(models.WebhookItem{RequestID: "w1"})
	select {
	case item := <-received:
		if item.RequestID != "w1" {
			t.Errorf("delivered %q", item.RequestID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestPoolRunAfterShutdown(t *testing.T) {
	pool := New(Options{Workers: 2, Processor: newProcessor(t).Process})
	pool.Shutdown()
	pool.Shutdown()

	done := make(chan error, 1)
	go func() {
		_, err := pool.Run("late", []string{"r1"}, []lgadcore.HitSample{{EventID: 1, Energy: 0.1}})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("err = %v, want ErrPoolClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on a closed pool")
	}
	if err := pool.SubmitJob(models.WorkItem{}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("SubmitJob err = %v", err)
	}
}
