package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/internal/utils"
	"github.com/kacperjurak/golgadcore/pkg/config"
	"github.com/kacperjurak/golgadcore/pkg/models"
	"github.com/kacperjurak/golgadcore/pkg/webhook"
	"github.com/kacperjurak/golgadcore/pkg/worker"
)

// EventHandler handles single hit processing requests
type EventHandler struct {
	config     *config.Config
	workerPool *worker.Pool
	forward    bool
}

// NewEventHandler creates a new event handler. With forward set, every
// report is also queued for the webhook.
func NewEventHandler(cfg *config.Config, pool *worker.Pool, forward bool) *EventHandler {
	return &EventHandler{
		config:     cfg,
		workerPool: pool,
		forward:    forward,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setupCORS(w)

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != "POST" {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hit models.HitData
	if err := json.NewDecoder(r.Body).Decode(&hit); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	sample := hit.Sample()
	if err := sample.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Generate unique ID for this request
	requestID := utils.GenerateID()

	if !h.config.Quiet {
		log.Printf("HTTP Request received - ID: %s, Event: %d", requestID, hit.EventID)
	}

	results, err := h.workerPool.Run(requestID, []string{requestID}, []lgadcore.HitSample{sample})
	if err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	result := results[0]
	report := webhook.BuildReport(requestID, result.Result, result.ProcessingTime, wantCurves(r))

	if h.forward {
		h.workerPool.QueueWebhook(models.WebhookItem{RequestID: requestID, Report: report})
	}

	status := http.StatusOK
	if result.Result.State == lgadcore.StateRejected {
		status = http.StatusUnprocessableEntity
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

func wantCurves(r *http.Request) bool {
	v := r.URL.Query().Get("curves")
	return v == "1" || v == "true"
}

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
