package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/ledger"
	"libradesk/internal/metrics"
	"libradesk/internal/stats"
	"libradesk/internal/storage/memory"
	"libradesk/internal/storage/storagetest"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	store *memory.Store
}

func newTestServer(t *testing.T, policy circulation.Policy, perMinute int) testServer {
	t.Helper()
	store := memory.NewStore()
	log := zap.NewNop()
	engine := circulation.NewService(store, policy, log, circulation.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}))

	ctx := context.Background()
	for _, isbn := range []string{"B1", "B2"} {
		_, err := engine.AddBook(ctx, storagetest.Book(isbn))
		require.NoError(t, err)
	}
	_, err := engine.RegisterReader(ctx, storagetest.Reader("R1"))
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Config{
		Records:            store,
		Engine:             engine,
		Stats:              stats.NewService(store, log),
		Health:             store.Ping,
		Log:                log,
		RateLimitPerMinute: perMinute,
	}))
	t.Cleanup(srv.Close)
	return testServer{Server: srv, store: store}
}

func (s testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func borrowBody(isbn, sub, date string) string {
	return `{"isbn":"` + isbn + `","subscriber_number":"` + sub + `","date":"` + date + `"}`
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)

	resp := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.store.Close())
	resp = s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBorrowAndReturnOverHTTP(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)

	resp := s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-01"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res circulation.BorrowResult
	decode(t, resp, &res)
	assert.Equal(t, "B1", res.Loan.BookISBN)
	assert.True(t, res.Loan.DueDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))

	resp = s.do(t, http.MethodGet, "/books/B1", "")
	var book catalog.Book
	decode(t, resp, &book)
	assert.Equal(t, catalog.StatusBorrowed, book.Status)

	resp = s.do(t, http.MethodGet, "/loans/overdue?date=2024-01-20", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var overdue []stats.OverdueLoan
	decode(t, resp, &overdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, 5, overdue[0].DaysOverdue)

	resp = s.do(t, http.MethodPost, "/loans/"+res.Loan.ID+"/return?date=2024-01-20", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loan ledger.Loan
	decode(t, resp, &loan)
	assert.True(t, loan.Returned)

	resp = s.do(t, http.MethodPost, "/loans/"+res.Loan.ID+"/return?date=2024-01-21", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorResponse
	decode(t, resp, &e)
	assert.Equal(t, "already_returned", e.Kind)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t, circulation.Policy{MonthlyLoanLimit: 1, EnforceMonthlyLimit: true, DefaultLoanDays: 14}, 0)

	resp := s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-02"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown book", http.MethodPost, "/loans", borrowBody("NOPE", "R1", ""), http.StatusNotFound, "not_found"},
		{"unknown reader", http.MethodPost, "/loans", borrowBody("B2", "NOPE", ""), http.StatusNotFound, "not_found"},
		{"already borrowed", http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-03"), http.StatusConflict, "already_borrowed"},
		{"monthly limit", http.MethodPost, "/loans", borrowBody("B2", "R1", "2024-01-03"), http.StatusUnprocessableEntity, "monthly_limit_exceeded"},
		{"bad date", http.MethodPost, "/loans", borrowBody("B2", "R1", "03/01/2024"), http.StatusBadRequest, "bad_request"},
		{"missing fields", http.MethodPost, "/loans", `{}`, http.StatusBadRequest, "bad_request"},
		{"bad json", http.MethodPost, "/loans", `{`, http.StatusBadRequest, "bad_request"},
		{"unknown loan", http.MethodPost, "/loans/nope/return", "", http.StatusNotFound, "not_found"},
		{"book on loan", http.MethodDelete, "/books/B1", "", http.StatusConflict, "conflict"},
		{"reader with loans", http.MethodDelete, "/readers/R1", "", http.StatusConflict, "conflict"},
		{"duplicate book", http.MethodPost, "/books", `{"isbn":"B2","title":"T","author":"A"}`, http.StatusConflict, "conflict"},
		{"invalid book", http.MethodPost, "/books", `{"isbn":"B9"}`, http.StatusBadRequest, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var e errorResponse
			decode(t, resp, &e)
			assert.Equal(t, tt.kind, e.Kind)
		})
	}
}

func TestMonthlyLimitOverride(t *testing.T) {
	s := newTestServer(t, circulation.Policy{MonthlyLoanLimit: 1, EnforceMonthlyLimit: true, DefaultLoanDays: 14}, 0)

	resp := s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-02"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/loans",
		`{"isbn":"B2","subscriber_number":"R1","date":"2024-01-03","override_monthly_limit":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res circulation.BorrowResult
	decode(t, resp, &res)
	assert.True(t, res.LimitOverridden)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)

	resp := s.do(t, http.MethodPost, "/books", `{"isbn":"B3","title":"Dune","author":"Herbert","year":1965,"status":"BORROWED"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var book catalog.Book
	decode(t, resp, &book)
	assert.Equal(t, catalog.StatusAvailable, book.Status)

	resp = s.do(t, http.MethodPut, "/books/B3", `{"title":"Dune Messiah","author":"Herbert","year":1969}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/books", "")
	var books []catalog.Book
	decode(t, resp, &books)
	require.Len(t, books, 3)
	assert.Equal(t, "Dune Messiah", books[2].Title)

	resp = s.do(t, http.MethodPost, "/readers", `{"subscriber_number":"R2","first_name":"Ada","last_name":"Lovelace","max_loan_days":7}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/readers/R2/eligibility?isbn=B3&date=2024-02-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var elig circulation.Eligibility
	decode(t, resp, &elig)
	assert.True(t, elig.Available)
	assert.True(t, elig.DueDate.Equal(time.Date(2024, 2, 8, 0, 0, 0, 0, time.UTC)))

	resp = s.do(t, http.MethodDelete, "/books/B3", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/books/B3", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/readers/R2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestReaderLoansAndStats(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)

	resp := s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-01"))
	var first circulation.BorrowResult
	decode(t, resp, &first)
	s.do(t, http.MethodPost, "/loans/"+first.Loan.ID+"/return?date=2024-01-05", "")
	s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-06"))
	s.do(t, http.MethodPost, "/loans", borrowBody("B2", "R1", "2024-01-06"))

	resp = s.do(t, http.MethodGet, "/readers/R1/loans", "")
	var loans []ledger.Loan
	decode(t, resp, &loans)
	assert.Len(t, loans, 3)

	resp = s.do(t, http.MethodGet, "/readers/R1/loans?active=true", "")
	loans = nil
	decode(t, resp, &loans)
	assert.Len(t, loans, 2)

	resp = s.do(t, http.MethodGet, "/readers/NOPE/loans", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/stats/top-books?n=1", "")
	var top []stats.BookCount
	decode(t, resp, &top)
	require.Len(t, top, 1)
	assert.Equal(t, "B1", top[0].ISBN)
	assert.Equal(t, 2, top[0].Count)

	resp = s.do(t, http.MethodGet, "/stats/loans-by-reader", "")
	var counts map[string]int
	decode(t, resp, &counts)
	assert.Equal(t, map[string]int{"R1": 3}, counts)

	resp = s.do(t, http.MethodGet, "/stats/readers", "")
	var rows []stats.ReaderCount
	decode(t, resp, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, stats.ReaderCount{SubscriberNumber: "R1", Name: "First Last R1", Count: 3}, rows[0])

	resp = s.do(t, http.MethodGet, "/stats/summary?date=2024-02-01", "")
	var sum stats.Summary
	decode(t, resp, &sum)
	assert.Equal(t, stats.Summary{Books: 2, Readers: 1, Loans: 3, OpenLoans: 2, OverdueLoans: 2}, sum)

	resp = s.do(t, http.MethodGet, "/stats/top-books?n=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSummaryRefreshesOverdueGaugeForToday(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)
	s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-01"))
	metrics.OverdueLoans.Set(-1)

	resp := s.do(t, http.MethodGet, "/stats/summary?date=2024-01-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(-1), gaugeValue(t, metrics.OverdueLoans))

	resp = s.do(t, http.MethodGet, "/stats/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum stats.Summary
	decode(t, resp, &sum)
	assert.Equal(t, 1, sum.OverdueLoans)
	assert.Equal(t, float64(1), gaugeValue(t, metrics.OverdueLoans))
}

func TestJournalEndpoint(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)
	s.do(t, http.MethodPost, "/loans", borrowBody("B1", "R1", "2024-01-01"))

	resp := s.do(t, http.MethodGet, "/journal?after=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []struct {
		Seq  int64  `json:"seq"`
		Type string `json:"type"`
	}
	decode(t, resp, &events)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].Seq)

	resp = s.do(t, http.MethodGet, "/journal?after=99", "")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(body))
}

func TestImportAndExport(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 0)

	resp := s.do(t, http.MethodPost, "/import/books",
		`[{"isbn":"B1","title":"Dup","author":"A"},{"isbn":"B7","title":"New","author":"A","status":"borrowed"},{"isbn":"","title":"x"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report circulation.ImportReport
	decode(t, resp, &report)
	assert.Equal(t, circulation.ImportReport{Imported: 1, Skipped: 1, Invalid: 1, Normalized: 1}, report)

	resp = s.do(t, http.MethodPost, "/import/books", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/import/loans", `[]`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/export/books?format=xml", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/xml", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("<isbn>B7</isbn>")))

	resp = s.do(t, http.MethodGet, "/export/readers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	resp = s.do(t, http.MethodGet, "/export/books?format=csv", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, circulation.DefaultPolicy, 2)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/books", "").StatusCode)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/books", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodGet, "/books", "").StatusCode)

	// health and metrics sit outside the limiter
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", "").StatusCode)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/metrics", "").StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(circulation.KindOf(catalog.ErrBookNotFound)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(circulation.KindOf(errors.New("disk on fire"))))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
