package statistics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/phc/phc/internal/domain/program"
)

func doRequest(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var fn echo.HandlerFunc
	switch {
	case method == http.MethodPost:
		fn = h.Rebuild
	default:
		switch req.URL.Path {
		case "/api/v1/statistics/monthly":
			fn = h.Monthly
		case "/api/v1/statistics/yearly":
			fn = h.Yearly
		case "/api/v1/statistics/controlled":
			fn = h.Controlled
		default:
			t.Fatalf("unmapped path %s", req.URL.Path)
		}
	}

	if err := fn(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestMonthlyHandler(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	seedMixedClinic(t, f, clinic)
	h := NewHandler(f.svc)

	target := fmt.Sprintf("/api/v1/statistics/monthly?clinic_id=%s&disease=ht&year=2025&month=3", clinic)
	rec := doRequest(t, h, http.MethodGet, target)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var entry MonthlyEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.TotalCount != 3 || entry.StandardCount != 2 {
		t.Errorf("entry = %+v, want total 3 standard 2", entry)
	}
}

func TestMonthlyHandler_EmptyBucketIsOK(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	target := fmt.Sprintf("/api/v1/statistics/monthly?clinic_id=%s&disease=dm&year=2025&month=6", uuid.New())
	rec := doRequest(t, h, http.MethodGet, target)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var entry MonthlyEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.TotalCount != 0 {
		t.Errorf("TotalCount = %d, want 0", entry.TotalCount)
	}
}

func TestMonthlyHandler_BadRequest(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)

	tests := []string{
		"/api/v1/statistics/monthly",
		"/api/v1/statistics/monthly?clinic_id=not-a-uuid&disease=ht&year=2025&month=3",
		fmt.Sprintf("/api/v1/statistics/monthly?clinic_id=%s&disease=flu&year=2025&month=3", uuid.New()),
		fmt.Sprintf("/api/v1/statistics/monthly?clinic_id=%s&disease=ht&year=2025&month=13", uuid.New()),
	}
	for _, target := range tests {
		rec := doRequest(t, h, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestYearlyHandler(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	seedMixedClinic(t, f, clinic)
	key := Bucket{ClinicID: clinic, Disease: program.DiseaseHT, Year: 2025, Month: 1}.String()
	f.targets[key] = &YearlyTarget{ClinicID: clinic, Disease: program.DiseaseHT, Year: 2025, TargetCount: 12}
	h := NewHandler(f.svc)

	target := fmt.Sprintf("/api/v1/statistics/yearly?clinic_id=%s&disease=ht&year=2025", clinic)
	rec := doRequest(t, h, http.MethodGet, target)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report YearlyReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.DistinctPatients != 3 || report.TargetPercentage != 25 {
		t.Errorf("report = %+v, want 3 distinct at 25%%", report)
	}
}

func TestControlledHandler(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	patient := uuid.New()
	for month := 1; month <= 3; month++ {
		f.exams.add(newHTVisit(patient, clinic, 2025, month))
	}
	h := NewHandler(f.svc)

	target := fmt.Sprintf("/api/v1/statistics/controlled?clinic_id=%s&disease=ht&year=2025", clinic)
	rec := doRequest(t, h, http.MethodGet, target)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report ControlledReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Controlled != 1 || report.Total != 1 {
		t.Errorf("report = %+v, want 1 controlled of 1", report)
	}
}

func TestRebuildHandler(t *testing.T) {
	f := newFixture()
	clinic := uuid.New()
	seedMixedClinic(t, f, clinic)

	// Wipe the cache; the endpoint must repopulate it from the log.
	f.cache.entries = make(map[string]*MonthlyEntry)
	h := NewHandler(f.svc)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/statistics/rebuild?disease=ht")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(f.cache.entries) != 3 {
		t.Errorf("rebuilt %d buckets, want 3", len(f.cache.entries))
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/statistics/rebuild?disease=flu")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown disease: status = %d, want 400", rec.Code)
	}
}
