package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/kv"
	"spendlog/internal/log"
	"spendlog/internal/services"
	"spendlog/internal/store"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type rowOut struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category"`
	Date            string          `json:"date"`
	FormattedAmount string          `json:"formatted_amount"`
	Highlight       bool            `json:"highlight"`
}

type viewOut struct {
	Mode       string                     `json:"mode"`
	Query      *string                    `json:"query"`
	Category   string                     `json:"category"`
	Records    int                        `json:"records"`
	Keys       []string                   `json:"keys"`
	Groups     map[string][]rowOut        `json:"groups"`
	Totals     map[string]decimal.Decimal `json:"totals"`
	GrandTotal decimal.Decimal            `json:"grand_total"`
	Categories []struct {
		Name      string `json:"name"`
		Highlight bool   `json:"highlight"`
	} `json:"categories"`
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	st := store.New(context.Background(), kv.NewStorage(kv.NewMemory(), nil))
	svc := services.NewRecordService(st, nil, nil)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		if strings.HasPrefix(body, "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func seed(t *testing.T, srv *Server) {
	t.Helper()
	for _, body := range []string{
		`{"id":"a","description":"Coffee beans","amount":"12.50","category":"groceries","date":"2024-01-10"}`,
		`{"id":"b","description":"Winter coat","amount":650,"category":"fashion","date":"2024-04-02"}`,
		`{"id":"c","description":"Bitcoin top-up","amount":"100","category":"cryptocurrency","date":"2023-12-01"}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d body=%s", rr.Code, rr.Body.String())
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rr.Code)
	}
	ready := decode[struct {
		Status  string `json:"status"`
		Records int    `json:"records"`
	}](t, rr)
	if ready.Status != "ready" || ready.Records != 3 {
		t.Fatalf("readyz = %+v", ready)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/api/categories", "")
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Referrer-Policy"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
	if id := rr.Header().Get(requestIDHeader); !strings.HasPrefix(id, "req_") {
		t.Errorf("request id = %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id not echoed: %q", got)
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/categories", "")
	got := decode[map[string][]string](t, rr)
	want := []string{"fashion", "groceries", "cryptocurrency"}
	if strings.Join(got["categories"], ",") != strings.Join(want, ",") {
		t.Fatalf("categories = %v, want %v", got["categories"], want)
	}
}

func TestCreateAndGetExpense(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"description":"Groceries run","amount":"42,10","category":"Groceries"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[rowOut](t, rr)
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if rr.Header().Get("Location") != "/api/expenses/"+created.ID {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}
	if created.Category != "groceries" || !created.Amount.Equal(decimal.RequireFromString("42.10")) {
		t.Errorf("created = %+v", created)
	}
	if created.Date != "2024-03-15T00:00:00.000Z" {
		t.Errorf("default date = %q, want today", created.Date)
	}
	if created.FormattedAmount != "€42.10" {
		t.Errorf("formatted = %q", created.FormattedAmount)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	if got := decode[rowOut](t, rr); got.Description != "Groceries run" {
		t.Errorf("get = %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rr.Code)
	}
}

func TestCreateExpenseFormBody(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPost, "/api/expenses", "description=Sneakers&amount=89.90&category=fashion&date=2024-02-29")
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[rowOut](t, rr); got.Date != "2024-02-29T00:00:00.000Z" {
		t.Errorf("date = %q", got.Date)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantField string
	}{
		{"empty description", `{"description":"  ","amount":"5","category":"fashion"}`, 422, "description"},
		{"short description", `{"description":"ab","amount":"5","category":"fashion"}`, 422, "description"},
		{"bad amount", `{"description":"Lunch","amount":"abc","category":"fashion"}`, 422, "amount"},
		{"amount below one", `{"description":"Lunch","amount":"0.50","category":"fashion"}`, 422, "amount"},
		{"missing category", `{"description":"Lunch","amount":"5"}`, 422, "category"},
		{"unknown category", `{"description":"Lunch","amount":"5","category":"travel"}`, 422, "category"},
		{"bad date", `{"description":"Lunch","amount":"5","category":"fashion","date":"31/12/2024"}`, 422, "date"},
		{"malformed json", `{"description":`, 400, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/expenses", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d, want %d (body=%s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			got := decode[errorBody](t, rr)
			if got.Field != tt.wantField {
				t.Errorf("field = %q, want %q", got.Field, tt.wantField)
			}
		})
	}

	if n := len(srv.svc.ListRecords()); n != 0 {
		t.Fatalf("invalid input stored %d records", n)
	}
}

func TestCreateDuplicateIDConflicts(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"id":"a","description":"Another","amount":"3","category":"fashion"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", rr.Code)
	}
	got, _ := srv.svc.GetRecord("a")
	if got.Description != "Coffee beans" {
		t.Errorf("duplicate overwrote record: %+v", got)
	}
}

func TestListExpenses(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/expenses", "")
	out := decode[viewOut](t, rr)
	if out.Mode != "monthly" || out.Records != 3 {
		t.Fatalf("out = %+v", out)
	}
	if got := strings.Join(out.Keys, ","); got != "April,December,January" {
		t.Errorf("monthly keys = %s", got)
	}
	if !out.GrandTotal.Equal(decimal.RequireFromString("762.5")) {
		t.Errorf("grand total = %s", out.GrandTotal)
	}
	if row := out.Groups["April"][0]; !row.Highlight || row.FormattedAmount != "€650.00" {
		t.Errorf("april row = %+v", row)
	}
	if row := out.Groups["January"][0]; row.Highlight {
		t.Errorf("january row should not be highlighted: %+v", row)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?q=COF+fee&annual=on", "")
	out = decode[viewOut](t, rr)
	if out.Mode != "annual" || out.Records != 1 {
		t.Fatalf("filtered out = %+v", out)
	}
	if out.Query == nil || *out.Query != "COF fee" {
		t.Errorf("query echoed as %v", out.Query)
	}
	if got := strings.Join(out.Keys, ","); got != "2024" {
		t.Errorf("annual keys = %s", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?q=nothing-matches&annual=true", "")
	out = decode[viewOut](t, rr)
	if out.Records != 3 {
		t.Errorf("no-match query should fall back to every record, got %d", out.Records)
	}
	if got := strings.Join(out.Keys, ","); got != "2024,2023" {
		t.Errorf("annual keys = %s", got)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	out := decode[viewOut](t, do(t, srv, http.MethodGet, "/api/stats", ""))
	if out.Category != "all" || out.Records != 3 {
		t.Fatalf("out = %+v", out)
	}
	for _, c := range out.Categories {
		if c.Highlight {
			t.Errorf("no category should be highlighted for all: %+v", c)
		}
	}

	out = decode[viewOut](t, do(t, srv, http.MethodGet, "/api/stats?category=fashion&annual=1", ""))
	if out.Category != "fashion" || out.Records != 1 {
		t.Fatalf("out = %+v", out)
	}
	if !out.Totals["2024"].Equal(decimal.NewFromInt(650)) {
		t.Errorf("totals = %v", out.Totals)
	}
	for _, c := range out.Categories {
		if c.Highlight != (c.Name == "fashion") {
			t.Errorf("category %s highlight=%v", c.Name, c.Highlight)
		}
	}
}

func TestUpdateExpense(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	rr := do(t, srv, http.MethodPut, "/api/expenses/a", `{"description":"Coffee capsules","amount":"20","category":"groceries","date":"2024-01-10"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[struct {
		Updated bool `json:"updated"`
	}](t, rr); !got.Updated {
		t.Error("expected updated=true")
	}

	out := decode[viewOut](t, do(t, srv, http.MethodGet, "/api/expenses?q=capsules", ""))
	if out.Records != 1 || out.Groups["January"][0].ID != "a" {
		t.Errorf("list after update = %+v", out)
	}

	before := srv.svc.ListRecords()
	rr = do(t, srv, http.MethodPut, "/api/expenses/ghost", `{"description":"Nobody","amount":"5","category":"fashion"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown id status=%d", rr.Code)
	}
	if got := decode[struct {
		Updated bool `json:"updated"`
	}](t, rr); got.Updated {
		t.Error("expected updated=false for unknown id")
	}
	if len(srv.svc.ListRecords()) != len(before) {
		t.Error("update with unknown id changed the record count")
	}

	rr = do(t, srv, http.MethodPut, "/api/expenses/a", `{"description":"x","amount":"5","category":"fashion"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid update status=%d", rr.Code)
	}
}

func TestDeleteExpense(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)

	rr := do(t, srv, http.MethodDelete, "/api/expenses/b", "")
	if got := decode[map[string]bool](t, rr); !got["deleted"] {
		t.Fatalf("delete = %v", got)
	}
	if rr := do(t, srv, http.MethodGet, "/api/expenses/b", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/b", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("second delete status=%d", rr.Code)
	}
	if got := decode[map[string]bool](t, rr); got["deleted"] {
		t.Error("second delete should report deleted=false")
	}

	out := decode[viewOut](t, do(t, srv, http.MethodGet, "/api/stats?category=fashion", ""))
	if out.Records != 0 || len(out.Keys) != 0 {
		t.Errorf("stats after delete = %+v", out)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodPatch, "/api/expenses", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d, want 405", rr.Code)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(2, time.Minute))

	body := `{"description":"Tea leaves","amount":"4","category":"groceries"}`
	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if rr := do(t, srv, http.MethodGet, "/api/expenses", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads should not be limited, status=%d", rr.Code)
	}
	if hits := srv.Security().RateLimitHits; hits != 1 {
		t.Errorf("rate limit hits = %d", hits)
	}
}

func TestHighlightLimitAndCurrencyOptions(t *testing.T) {
	srv := newTestServer(t, WithHighlightLimit(decimal.NewFromInt(10)), WithCurrency("USD"))
	seed(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/expenses/a", "")
	got := decode[rowOut](t, rr)
	if !got.Highlight || got.FormattedAmount != "$12.50" {
		t.Errorf("row = %+v", got)
	}
}

func TestIncomeRecords(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/expenses", `{"id":"pay","description":"Salary","amount":"-2000","category":"cryptocurrency","date":"2024-03-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signed income status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[rowOut](t, rr); !got.Amount.Equal(decimal.NewFromInt(-2000)) || got.Highlight {
		t.Errorf("income = %+v", got)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", "id=refund&description=Refund&amount=15&income=on&category=fashion&date=2024-03-02")
	if rr.Code != http.StatusCreated {
		t.Fatalf("flagged income status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[rowOut](t, rr); !got.Amount.Equal(decimal.NewFromInt(-15)) || got.FormattedAmount != "-€15.00" {
		t.Errorf("flagged income = %+v", got)
	}

	rr = do(t, srv, http.MethodPut, "/api/expenses/pay", `{"description":"Salary March","amount":"-2100","category":"cryptocurrency","date":"2024-03-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("edit income status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, _ := srv.svc.GetRecord("pay")
	if !got.Amount.Equal(decimal.NewFromInt(-2100)) || got.Description != "Salary March" {
		t.Errorf("edited income = %+v", got)
	}

	out := decode[viewOut](t, do(t, srv, http.MethodGet, "/api/expenses", ""))
	if !out.GrandTotal.Equal(decimal.NewFromInt(-2115)) {
		t.Errorf("grand total = %s", out.GrandTotal)
	}
}

func TestReadHandlersLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{
		Level:   slog.LevelDebug,
		Handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	srv := newTestServer(t, WithLogger(logger))
	seed(t, srv)

	tests := []struct {
		path string
		want []string
	}{
		{"/api/expenses?q=coat", []string{"List view served", "operation=list", "query=coat", "records=1"}},
		{"/api/stats?category=fashion", []string{"Stats view served", "operation=stats", "category=fashion"}},
		{"/api/expenses/b", []string{"Expense lookup", "operation=read", "record_id=b", "found=true"}},
		{"/api/expenses/nope", []string{"operation=read", "record_id=nope", "found=false"}},
	}

	for _, tt := range tests {
		buf.Reset()
		do(t, srv, http.MethodGet, tt.path, "")
		out := buf.String()
		for _, want := range tt.want {
			if !strings.Contains(out, want) {
				t.Errorf("GET %s: log missing %q:\n%s", tt.path, want, out)
			}
		}
		if !strings.Contains(out, "component=http") {
			t.Errorf("GET %s: log missing http component", tt.path)
		}
	}
}
