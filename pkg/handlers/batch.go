package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/internal/utils"
	"github.com/kacperjurak/golgadcore/pkg/config"
	"github.com/kacperjurak/golgadcore/pkg/models"
	"github.com/kacperjurak/golgadcore/pkg/webhook"
	"github.com/kacperjurak/golgadcore/pkg/worker"
)

// BatchHandler handles batch hit processing requests
type BatchHandler struct {
	config     *config.Config
	workerPool *worker.Pool
	timingFile string
	forward    bool
}

// BatchResponse is returned once every hit of the batch is processed
type BatchResponse struct {
	BatchID string               `json:"batch_id"`
	Events  int                  `json:"events"`
	Stats   lgadcore.RunStats    `json:"stats"`
	Reports []models.EventReport `json:"reports"`
}

// NewBatchHandler creates a new batch handler. An empty timingFile disables
// the timing log.
func NewBatchHandler(cfg *config.Config, pool *worker.Pool, timingFile string, forward bool) *BatchHandler {
	return &BatchHandler{
		config:     cfg,
		workerPool: pool,
		timingFile: timingFile,
		forward:    forward,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setupCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != "POST" {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch models.EventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	if len(batch.Hits) == 0 {
		writeError(w, "No hits provided in batch", http.StatusBadRequest)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}

	log.Printf("🔄 Batch processing started - ID: %s, Hits: %d", batch.BatchID, len(batch.Hits))

	resp, err := h.processBatch(batch, wantCurves(r))
	if err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// processBatch runs the batch through the worker pool and collects reports
func (h *BatchHandler) processBatch(batch models.EventBatch, curves bool) (BatchResponse, error) {
	batchStartTime := time.Now()

	hits := make([]lgadcore.HitSample, len(batch.Hits))
	ids := make([]string, len(batch.Hits))
	for i, hit := range batch.Hits {
		hits[i] = hit.Sample()
		ids[i] = utils.EventID(batch.BatchID, i)
	}

	results, err := h.workerPool.Run(batch.BatchID, ids, hits)
	if err != nil {
		return BatchResponse{}, err
	}

	resp := BatchResponse{
		BatchID: batch.BatchID,
		Events:  len(results),
		Reports: make([]models.EventReport, len(results)),
	}
	timings := make([]models.EventTiming, len(results))
	for i, result := range results {
		resp.Stats.Add(result.Result)
		timings[i] = eventTiming(result)
		resp.Reports[i] = webhook.BuildReport(result.RequestID, result.Result, result.ProcessingTime, curves)

		if h.forward {
			h.workerPool.QueueWebhook(models.WebhookItem{RequestID: result.RequestID, Report: resp.Reports[i]})
		}
	}

	totalBatchTime := time.Since(batchStartTime)
	if h.timingFile != "" {
		h.saveTimingResults(batch.BatchID, totalBatchTime, timings, h.workerPool.Workers())
	}

	log.Printf("🎉 Batch processing completed - ID: %s, Done: %d/%d, Total time: %v",
		batch.BatchID, resp.Stats.Done, resp.Events, totalBatchTime)
	return resp, nil
}

// eventTiming records timing and the residual between reconstructed and true hit
func eventTiming(result models.WorkResult) models.EventTiming {
	res := result.Result
	t := models.EventTiming{
		EventID:        res.Hit.EventID,
		ProcessingTime: result.ProcessingTime,
		Success:        result.Success,
		ResidualX:      math.NaN(),
		ResidualY:      math.NaN(),
	}
	for _, f := range res.Fits {
		if f.Converged {
			t.FitsConverged++
		}
	}
	if res.Estimate != nil {
		t.ResidualX = res.Estimate.X.Value - res.Hit.X
		t.ResidualY = res.Estimate.Y.Value - res.Hit.Y
	}
	return t
}

// saveTimingResults saves timing data to a CSV file for performance analysis
func (h *BatchHandler) saveTimingResults(batchID string, totalTime time.Duration, timings []models.EventTiming, concurrency int) {
	filename := h.timingFile

	// Check if file exists to decide on header
	var writeHeader bool
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		writeHeader = true
	}

	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Error opening timing file: %v", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if writeHeader {
		header := []string{
			"Timestamp",
			"BatchID",
			"TotalEvents",
			"Concurrency",
			"TotalBatchTime_ms",
			"AvgEventTime_ms",
			"MinEventTime_ms",
			"MaxEventTime_ms",
			"SuccessRate",
			"AvgFitsConverged",
			"RMSResidualX_mm",
			"RMSResidualY_mm",
			"EventsPerSecond",
			"EfficiencyScore",
			"Method",
		}
		if err := writer.Write(header); err != nil {
			log.Printf("Error writing timing header: %v", err)
			return
		}
	}

	var totalEventTime time.Duration
	var minTime, maxTime time.Duration = time.Hour, 0
	var successful, converged int
	var sumX2, sumY2 float64

	for _, timing := range timings {
		totalEventTime += timing.ProcessingTime
		if timing.ProcessingTime < minTime {
			minTime = timing.ProcessingTime
		}
		if timing.ProcessingTime > maxTime {
			maxTime = timing.ProcessingTime
		}
		if timing.Success {
			successful++
			converged += timing.FitsConverged
			sumX2 += timing.ResidualX * timing.ResidualX
			sumY2 += timing.ResidualY * timing.ResidualY
		}
	}

	numEvents := len(timings)
	avgEventTime := totalEventTime / time.Duration(numEvents)
	successRate := float64(successful) / float64(numEvents) * 100
	var avgConverged, rmsX, rmsY float64
	if successful > 0 {
		avgConverged = float64(converged) / float64(successful)
		rmsX = math.Sqrt(sumX2 / float64(successful))
		rmsY = math.Sqrt(sumY2 / float64(successful))
	}

	eventsPerSecond := float64(numEvents) / totalTime.Seconds()

	// Efficiency score: 1.0 is linear speedup over the workers
	theoreticalTime := avgEventTime * time.Duration(numEvents)
	efficiencyScore := theoreticalTime.Seconds() / totalTime.Seconds() / float64(concurrency)

	record := []string{
		time.Now().Format(time.RFC3339),
		batchID,
		fmt.Sprintf("%d", numEvents),
		fmt.Sprintf("%d", concurrency),
		fmt.Sprintf("%.2f", float64(totalTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.3f", float64(avgEventTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.3f", float64(minTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.3f", float64(maxTime.Nanoseconds())/1000000.0),
		fmt.Sprintf("%.1f", successRate),
		fmt.Sprintf("%.2f", avgConverged),
		fmt.Sprintf("%.6e", rmsX),
		fmt.Sprintf("%.6e", rmsY),
		fmt.Sprintf("%.2f", eventsPerSecond),
		fmt.Sprintf("%.3f", efficiencyScore),
		h.config.OptimMethod,
	}

	if err := writer.Write(record); err != nil {
		log.Printf("Error writing timing record: %v", err)
		return
	}

	log.Printf("📊 Timing saved: %d events, %d goroutines, %.2f ms total, %.2f%% success, %.3f efficiency",
		numEvents, concurrency, float64(totalTime.Nanoseconds())/1000000.0, successRate, efficiencyScore)
}
