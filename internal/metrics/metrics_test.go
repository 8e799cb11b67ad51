package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.Admission("admit", nil)
	m.Admission("admit", errors.New("conflict"))
	m.Confirmation(nil)
	m.Collected("school", 120000)
	m.Collected("bus", 0)
	m.EventPublished("fee.confirmed", nil)
	m.NumberConflict()
	m.ObserveHTTP("POST", "/api/admissions", 201, 15*time.Millisecond)
	m.Flagged("rate_limit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`jnschool_admissions_total{kind="admit",outcome="ok"} 1`,
		`jnschool_admissions_total{kind="admit",outcome="error"} 1`,
		`jnschool_fee_confirmations_total{outcome="ok"} 1`,
		`jnschool_fee_collected_paise_total{stream="school"} 120000`,
		`jnschool_identifier_conflicts_total 1`,
		`jnschool_http_flagged_requests_total{reason="rate_limit"} 1`,
		`jnschool_http_request_duration_seconds_count{code="201",method="POST",route="/api/admissions"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if strings.Contains(out, `stream="bus"`) {
		t.Error("zero amounts should not create a series")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Admission("admit", nil)
	m.Confirmation(nil)
	m.ObserveHTTP("GET", "/", 200, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}
