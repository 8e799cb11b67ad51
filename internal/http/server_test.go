package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vickym250/jnschool/internal/cache"
	"github.com/vickym250/jnschool/internal/core"
	"github.com/vickym250/jnschool/internal/log"
	"github.com/vickym250/jnschool/internal/metrics"
	"github.com/vickym250/jnschool/internal/services"
	"github.com/vickym250/jnschool/internal/store/memory"
)

var fixedNow = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	st := memory.New()
	clock := func() time.Time { return fixedNow }
	m := metrics.New()
	opts := services.Options{Metrics: m, Clock: clock}
	reader := services.NewStudentReader(st, cache.NewLRUCache[core.Student](32, time.Minute))
	reg := services.NewRegistry(st, st)

	d := Deps{
		Admission:          services.NewAdmissionService(st, reg, reader, core.OverpaymentReject, opts),
		Fees:               services.NewFeeService(st, reader, opts),
		Registry:           reg,
		Policy:             core.OverpaymentReject,
		Logger:             log.New(log.Config{Component: "test", Handler: slog.NewTextHandler(io.Discard, nil)}),
		Metrics:            m,
		RateLimitPerMinute: 100,
		Clock:              clock,
	}
	if mutate != nil {
		mutate(&d)
	}
	s := NewServer(":0", d)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testServer{Server: s, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

const admitAsha = `{
	"name": "Asha Kumari",
	"className": "5",
	"session": "2025-26",
	"fatherName": "Ramesh Kumar",
	"phone": "9876543210",
	"admissionFees": 500,
	"totalFees": 1000,
	"isTransportEnabled": true,
	"busFees": 300,
	"paidAmount": 2500,
	"paidBusAmount": 600
}`

func admit(t *testing.T, ts *testServer, body string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/admissions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admit: status %d body %s", rec.Code, rec.Body.String())
	}
	res := decode(t, rec)
	return res["student"].(map[string]any)["id"].(string)
}

func TestAdmissionFeeFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/registry/next?class=5", "")
	if got := decode(t, rec); got["regNo"] != "1001" || got["rollNumber"] != "1" || got["session"] != "2025-26" {
		t.Fatalf("registry preview = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/admissions", admitAsha)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	res := decode(t, rec)
	student := res["student"].(map[string]any)
	id := student["id"].(string)
	if student["regNo"] != "1001" || student["rollNumber"] != "1" {
		t.Errorf("numbers = %v/%v", student["regNo"], student["rollNumber"])
	}
	if rec.Header().Get("Location") != "/api/students/"+id {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if slip := res["slip"].(map[string]any); slip["amountInWords"] != "Three Thousand Six Hundred Rupees Only" {
		t.Errorf("slip words = %v", slip["amountInWords"])
	}

	rec = ts.do(t, http.MethodGet, "/api/students/"+id+"/ledger", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ledger: %d %s", rec.Code, rec.Body.String())
	}
	months := decode(t, rec)["months"].([]any)
	if len(months) != 12 {
		t.Fatalf("ledger has %d months", len(months))
	}
	wantStates := map[int]string{0: "PAID", 1: "PAID", 2: "PARTIAL", 3: "PENDING"}
	for i, want := range wantStates {
		state := months[i].(map[string]any)["state"].(map[string]any)["status"]
		if state != want {
			t.Errorf("month %d status = %v, want %s", i, state, want)
		}
	}

	rec = ts.do(t, http.MethodPost, "/api/students/"+id+"/fees/2025-26/june/confirm", `{"paySchool":true,"payBus":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["state"].(map[string]any)["status"]; got != "PAID" {
		t.Errorf("June after confirm = %v", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/students/"+id+"/receipts/2025-26/June", "")
	receipt := decode(t, rec)
	if receipt["amountInWords"] != "One Thousand Three Hundred Rupees Only" || receipt["total"] != 1300.0 {
		t.Errorf("receipt = %v", receipt)
	}

	rec = ts.do(t, http.MethodGet, "/api/overview?class=5&session=2025-26&month=June", "")
	if ov := decode(t, rec); ov["paid"] != 1.0 || len(ov["rows"].([]any)) != 1 {
		t.Errorf("overview = %v", ov)
	}

	rec = ts.do(t, http.MethodGet, "/api/students?class=5", "")
	if got := decode(t, rec)["count"]; got != 1.0 {
		t.Errorf("list count = %v", got)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	id := admit(t, ts, admitAsha)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		status   int
		code     string
		badField string
	}{
		{"blank name", http.MethodPost, "/api/admissions", `{"name":" ","className":"5"}`, 422, "INVALID_INPUT", "name"},
		{"negative rate", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","totalFees":-10}`, 422, "INVALID_INPUT", "totalFees"},
		{"bad session", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","session":"2025-27"}`, 422, "INVALID_INPUT", "session"},
		{"unknown field", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","bogus":1}`, 422, "INVALID_INPUT", ""},
		{"malformed amount", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","totalFees":"abc"}`, 422, "INVALID_INPUT", ""},
		{"amount out of range", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","totalFees":4e17}`, 422, "INVALID_INPUT", ""},
		{"transfer without pnr", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","isTransferStudent":true}`, 422, "INVALID_INPUT", "pnrNumber"},
		{"empty body", http.MethodPost, "/api/admissions", "", 422, "INVALID_INPUT", ""},
		{"overpayment", http.MethodPost, "/api/admissions", `{"name":"A","className":"5","totalFees":100,"paidAmount":5000}`, 422, "INVALID_INPUT", ""},
		{"nothing selected", http.MethodPost, "/api/students/" + id + "/fees/2025-26/June/confirm", `{}`, 422, "INVALID_SELECTION", ""},
		{"unknown month", http.MethodPost, "/api/students/" + id + "/fees/2025-26/Smarch/confirm", `{"paySchool":true}`, 422, "INVALID_INPUT", ""},
		{"missing student", http.MethodGet, "/api/students/nope", "", 404, "NOT_FOUND", ""},
		{"missing session ledger", http.MethodGet, "/api/students/" + id + "/ledger?session=2030-31", "", 404, "NOT_FOUND", ""},
		{"session exists", http.MethodPost, "/api/students/" + id + "/readmissions", `{"className":"6","session":"2025-26"}`, 409, "CONFLICT", ""},
		{"payment on update", http.MethodPut, "/api/students/" + id, `{"name":"A","className":"5","paidAmount":10}`, 422, "INVALID_INPUT", ""},
		{"words without amount", http.MethodGet, "/api/words", "", 422, "INVALID_INPUT", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			body := decode(t, rec)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if tt.badField != "" {
				fields, _ := body["fields"].(map[string]any)
				if _, ok := fields[tt.badField]; !ok {
					t.Errorf("fields = %v, want an entry for %s", fields, tt.badField)
				}
			}
		})
	}
}

func TestUpdateReadmitDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	id := admit(t, ts, admitAsha)

	rec := ts.do(t, http.MethodPut, "/api/students/"+id,
		`{"name":"Asha K","className":"5A","totalFees":1200,"isTransferStudent":true,"pnrNumber":"PEN123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec); got["name"] != "Asha K" || got["className"] != "5A" || got["rollNumber"] != "1" || got["pnrNumber"] != "PEN123" {
		t.Errorf("update result = %v", got)
	}
	rec = ts.do(t, http.MethodGet, "/api/students/"+id, "")
	if got := decode(t, rec); got["className"] != "5A" || got["isTransferStudent"] != true {
		t.Errorf("stored after update = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/students/"+id+"/readmissions",
		`{"className":"6","session":"2026-27","totalFees":1200,"paidAmount":1200}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("readmit: %d %s", rec.Code, rec.Body.String())
	}
	if st := decode(t, rec)["student"].(map[string]any); st["className"] != "6" || st["session"] != "2026-27" {
		t.Errorf("readmitted student = %v", st)
	}

	if rec = ts.do(t, http.MethodDelete, "/api/students/"+id, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec = ts.do(t, http.MethodGet, "/api/students?session=2026-27", ""); decode(t, rec)["count"] != 0.0 {
		t.Errorf("deleted student still listed: %s", rec.Body.String())
	}
	for _, target := range []string{
		"/api/students/" + id,
		"/api/students/" + id + "/ledger",
		"/api/students/" + id + "/receipts/2026-27/April",
	} {
		if rec = ts.do(t, http.MethodGet, target, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s after delete: %d %s", target, rec.Code, rec.Body.String())
		}
	}
}

func TestParents(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/parents", `{"fatherName":"Ramesh Kumar","phone":"9876543210"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create parent: %d %s", rec.Code, rec.Body.String())
	}
	pid := decode(t, rec)["id"].(string)

	admit(t, ts, `{"name":"Ravi","className":"3","session":"2025-26","parentId":"`+pid+`","totalFees":800}`)

	rec = ts.do(t, http.MethodGet, "/api/parents/"+pid, "")
	if students := decode(t, rec)["students"].([]any); len(students) != 1 {
		t.Errorf("parent students = %v", students)
	}
	rec = ts.do(t, http.MethodGet, "/api/parents?search=ramesh", "")
	if got := decode(t, rec)["count"]; got != 1.0 {
		t.Errorf("parent search count = %v", got)
	}
	if rec = ts.do(t, http.MethodPost, "/api/parents", `{"phone":"1"}`); rec.Code != 422 {
		t.Errorf("nameless parent: status %d", rec.Code)
	}
}

func TestWordsAndAllocationPreview(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/words?amount=1,25,000", "")
	if got := decode(t, rec)["words"]; got != "One Lakh Twenty Five Thousand" {
		t.Errorf("words = %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/allocations/preview",
		`{"totalFees":1000,"isTransportEnabled":true,"busFees":300,"paidAmount":3000,"paidBusAmount":450}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	full := got["fullMonths"].(map[string]any)
	if full["school"] != 3.0 || full["bus"] != 1.0 {
		t.Errorf("fullMonths = %v", full)
	}
	if got["tuitionLabel"] != "Paid: April to June" {
		t.Errorf("tuitionLabel = %v", got["tuitionLabel"])
	}
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) { d.RateLimitPerMinute = 1 })

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("healthz: %d, request id %q", rec.Code, rec.Header().Get("X-Request-ID"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	ts.do(t, http.MethodPost, "/api/parents", `{"fatherName":"A"}`)
	rec = ts.do(t, http.MethodPost, "/api/parents", `{"fatherName":"B"}`)
	if rec.Code != http.StatusTooManyRequests || decode(t, rec)["code"] != "RATE_LIMITED" {
		t.Errorf("second write: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	// Reads are not limited.
	if rec = ts.do(t, http.MethodGet, "/api/parents", ""); rec.Code != http.StatusOK {
		t.Errorf("read after limit: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	if !strings.Contains(body, `jnschool_http_flagged_requests_total{reason="rate_limit"} 1`) {
		t.Errorf("rate limit not counted")
	}
	if !strings.Contains(body, `route="GET /healthz"`) {
		t.Errorf("route latency not recorded")
	}
}

func TestReadiness(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("database is locked") }
	})
	rec := ts.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrOverpayment, http.StatusUnprocessableEntity},
		{core.ErrNothingSelected, http.StatusUnprocessableEntity},
		{core.ErrStudentNotFound, http.StatusNotFound},
		{core.ErrDuplicateNumber, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
