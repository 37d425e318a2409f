package models

import (
	"time"

	"github.com/kacperjurak/golgadcore"
)

// HitData represents one incoming deposit from the transport simulation
type HitData struct {
	EventID int64   `json:"event_id"`
	Energy  float64 `json:"energy_mev"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Sample converts the request payload into the core input type
func (h HitData) Sample() lgadcore.HitSample {
	return lgadcore.HitSample{EventID: h.EventID, Energy: h.Energy, X: h.X, Y: h.Y}
}

// EventBatch represents a batch of hits submitted together
type EventBatch struct {
	BatchID   string    `json:"batch_id"`
	Timestamp time.Time `json:"timestamp"`
	Hits      []HitData `json:"hits"`
}

// WorkItem represents a single event processing task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Hit       lgadcore.HitSample
	StartTime time.Time
	// Reply receives the result; each batch owns its channel
	Reply chan<- WorkResult
}

// WorkResult contains the result of event processing
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Result         lgadcore.EventResult
	ProcessingTime time.Duration
	Success        bool
}

// WebhookItem represents a report queued for the bookkeeping endpoint
type WebhookItem struct {
	RequestID string
	Report    EventReport
}

// FitCurve is a fitted model sampled along its profile
type FitCurve struct {
	Cut    string    `json:"cut"`
	Family string    `json:"family"`
	Coords []float64 `json:"coords"`
	Values []float64 `json:"values"`
	Fitted []float64 `json:"fitted"`
}

// FitSummary is the JSON form of one fit. Values that are not finite, such
// as the uncertainties of a failed fit, encode as null.
type FitSummary struct {
	Cut          string     `json:"cut"`
	Family       string     `json:"family"`
	Status       string     `json:"status"`
	Converged    bool       `json:"converged"`
	Params       []*float64 `json:"params"`
	Errors       []*float64 `json:"errors"`
	FWHM         *float64   `json:"fwhm"`
	RSS          *float64   `json:"rss"`
	ReducedChiSq *float64   `json:"reduced_chi_sq"`
	Iterations   int        `json:"iterations"`
	Error        string     `json:"error,omitempty"`
}

// ChargeMapReport is the 9x9 neighborhood flattened row-major, row 0 being
// the lowest y. AlphaDeg holds -999 for clipped cells and null when the hit
// is on the center pad.
type ChargeMapReport struct {
	Size      int        `json:"size"`
	Pixels    [][2]int   `json:"pixels"`
	Valid     []bool     `json:"valid"`
	Fractions []float64  `json:"fractions"`
	Charges   []float64  `json:"charges_c"`
	AlphaDeg  []*float64 `json:"alpha_deg"`
}

// AxisReport is the JSON form of one reconstructed coordinate
type AxisReport struct {
	Value         float64 `json:"value"`
	Uncertainty   float64 `json:"uncertainty"`
	LowConfidence bool    `json:"low_confidence"`
	Contributors  int     `json:"contributors"`
}

// PositionReport is a reconstructed (x, y)
type PositionReport struct {
	X AxisReport `json:"x"`
	Y AxisReport `json:"y"`
}

// EventReport is the per-event payload returned by the handlers and
// forwarded to the webhook.
type EventReport struct {
	ID             string                    `json:"id"`
	Time           string                    `json:"time"`
	EventID        int64                     `json:"event_id"`
	State          string                    `json:"state"`
	Error          string                    `json:"error,omitempty"`
	HitX           float64                   `json:"hit_x"`
	HitY           float64                   `json:"hit_y"`
	EnergyMeV      float64                   `json:"energy_mev"`
	TotalCharge    float64                   `json:"total_charge_c"`
	CenterPixel    [2]int                    `json:"center_pixel"`
	InsidePixel    bool                      `json:"inside_pixel"`
	InvariantError string                    `json:"invariant_error,omitempty"`
	ChargeMap      *ChargeMapReport          `json:"charge_map,omitempty"`
	Position       *PositionReport           `json:"position,omitempty"`
	ByFamily       map[string]PositionReport `json:"by_family,omitempty"`
	Fits           []FitSummary              `json:"fits,omitempty"`
	Curves         []FitCurve                `json:"curves,omitempty"`
	Rejected       []string                  `json:"rejected,omitempty"`
	ProcessingMs   float64                   `json:"processing_ms"`
}

// EventTiming tracks performance metrics for individual event processing
type EventTiming struct {
	EventID        int64         `json:"event_id"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	Success        bool          `json:"success"`
	FitsConverged  int           `json:"fits_converged"`
	ResidualX      float64       `json:"residual_x"`
	ResidualY      float64       `json:"residual_y"`
}
