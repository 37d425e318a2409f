package webhook

import (
	"encoding/json"
	"math"
	"strings"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kacperjurak/golgadcore"
	"github.com/kacperjurak/golgadcore/pkg/models"
)

func processed(t *testing.T, hit lgadcore.HitSample) lgadcore.EventResult {
	t.Helper()
	grid, err := lgadcore.NewPixelGrid(0.1, 0.5, 0.1, 30)
	if err != nil {
		t.Fatal(err)
	}
	p, err := lgadcore.NewProcessor(grid, lgadcore.DefaultOptions(grid))
	if err != nil {
		t.Fatal(err)
	}
	res, _ := p.Process(hit)
	return res
}

func TestBuildReportEncodes(t *testing.T) {
	res := processed(t, lgadcore.HitSample{EventID: 11, Energy: 0.1, X: -14.9, Y: 3.1})
	report := BuildReport("req-1", res, 2*time.Millisecond, true)

	if report.State != "done" || report.EventID != 11 || report.Position == nil {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Fits) != lgadcore.NumCuts*lgadcore.NumFamilies {
		t.Errorf("%d fit summaries", len(report.Fits))
	}
	if _, ok := report.ByFamily["lorentzian"]; !ok {
		t.Error("missing lorentzian reconstruction")
	}
	for _, c := range report.Curves {
		if len(c.Fitted) != len(c.Coords) {
			t.Errorf("%s/%s: %d fitted points for %d coords", c.Cut, c.Family, len(c.Fitted), len(c.Coords))
		}
	}
	// degenerate fits carry infinite uncertainties that must not break encoding
	if _, err := json.Marshal(report); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestBuildReportFailedFitsEncodeNull(t *testing.T) {
	res := processed(t, lgadcore.HitSample{EventID: 13, Energy: 0.1, X: -14.9, Y: -14.9})
	report := BuildReport("req-3", res, 0, false)

	var failed *models.FitSummary
	for i := range report.Fits {
		f := &report.Fits[i]
		if f.Cut == "main-diagonal" && f.Family == "gaussian" {
			failed = f
		}
		if f.Converged {
			for k, e := range f.Errors {
				if e == nil || !(*e > 0) {
					t.Errorf("%s/%s converged but error %d is %v", f.Cut, f.Family, k, e)
				}
			}
		}
	}
	if failed == nil {
		t.Fatal("no main-diagonal gaussian summary")
	}
	if failed.Converged {
		t.Fatal("corner main diagonal reported converged")
	}
	for k, e := range failed.Errors {
		if e != nil {
			t.Errorf("failed fit error %d = %v, want null", k, *e)
		}
	}
	if failed.RSS != nil {
		t.Errorf("failed fit rss = %v, want null", *failed.RSS)
	}

	b, err := json.Marshal(failed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"errors":[null,null,null,null]`) {
		t.Errorf("encoded %s", b)
	}
}

func TestBuildReportChargeMap(t *testing.T) {
	res := processed(t, lgadcore.HitSample{EventID: 14, Energy: 0.1, X: -14.9, Y: -14.9})
	report := BuildReport("req-4", res, 0, false)
	cm := report.ChargeMap
	if cm == nil {
		t.Fatal("report has no charge map")
	}
	const cells = lgadcore.NeighborhoodSize * lgadcore.NeighborhoodSize
	if cm.Size != lgadcore.NeighborhoodSize || len(cm.Pixels) != cells || len(cm.Valid) != cells ||
		len(cm.Fractions) != cells || len(cm.Charges) != cells || len(cm.AlphaDeg) != cells {
		t.Fatalf("charge map lengths: pixels %d valid %d fractions %d charges %d alpha %d",
			len(cm.Pixels), len(cm.Valid), len(cm.Fractions), len(cm.Charges), len(cm.AlphaDeg))
	}

	var valid int
	var sum float64
	for k := 0; k < cells; k++ {
		row, col := k/lgadcore.NeighborhoodSize, k%lgadcore.NeighborhoodSize
		c := res.Neighborhood.Cells[row][col]
		if cm.Pixels[k] != [2]int{c.I, c.J} || cm.Valid[k] != c.Valid {
			t.Errorf("cell %d: pixel %v valid %v, want %v %v", k, cm.Pixels[k], cm.Valid[k], [2]int{c.I, c.J}, c.Valid)
		}
		if cm.Fractions[k] != res.ChargeMap.Fraction[row][col] || cm.Charges[k] != res.ChargeMap.Charge[row][col] {
			t.Errorf("cell %d: fraction %v charge %v do not match the map", k, cm.Fractions[k], cm.Charges[k])
		}
		if !cm.Valid[k] {
			if cm.AlphaDeg[k] == nil || *cm.AlphaDeg[k] != lgadcore.InvalidAngle {
				t.Errorf("clipped cell %d alpha = %v, want %v", k, cm.AlphaDeg[k], lgadcore.InvalidAngle)
			}
			continue
		}
		valid++
		sum += cm.Fractions[k]
		if cm.AlphaDeg[k] == nil || !(*cm.AlphaDeg[k] > 0) {
			t.Errorf("cell %d alpha = %v", k, cm.AlphaDeg[k])
		}
	}
	if valid != 25 {
		t.Errorf("%d valid cells, want 25", valid)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("fractions sum to %v", sum)
	}
}

func TestBuildReportChargeMapInsidePad(t *testing.T) {
	res := processed(t, lgadcore.HitSample{EventID: 15, Energy: 0.1, X: 0.25, Y: 0.25})
	report := BuildReport("req-5", res, 0, false)
	if report.ChargeMap == nil || !report.InsidePixel {
		t.Fatalf("inside pixel %v, charge map %v", report.InsidePixel, report.ChargeMap)
	}
	for k, a := range report.ChargeMap.AlphaDeg {
		if a != nil {
			t.Fatalf("alpha %d = %v on a pad hit, want null", k, *a)
		}
	}
	if _, err := json.Marshal(report); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestBuildReportRejected(t *testing.T) {
	res := processed(t, lgadcore.HitSample{EventID: 12, Energy: 0.1, X: 99, Y: 0})
	report := BuildReport("req-2", res, 0, true)
	if report.State != "rejected" || report.Error == "" || report.Position != nil || len(report.Fits) != 0 || report.ChargeMap != nil {
		t.Errorf("report = %+v", report)
	}
}

func TestClientSend(t *testing.T) {
	var got models.EventReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, true)
	item := models.WebhookItem{RequestID: "abc", Report: models.EventReport{EventID: 5, State: "done"}}
	if err := c.Send(item); err != nil {
		t.Fatal(err)
	}
	if got.ID != "abc" || got.EventID != 5 || got.Time == "" {
		t.Errorf("received %+v", got)
	}
}

func TestClientSendFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, true).Send(models.WebhookItem{RequestID: "x"}); err == nil {
		t.Error("5xx response not reported")
	}
}
