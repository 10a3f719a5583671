// internal/clients/desk_client.go
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"libradesk/internal/circulation"
	"libradesk/internal/ledger"
	"libradesk/internal/stats"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx answer from the desk server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Kind)
}

// DeskClient talks to a running libradesk server.
type DeskClient struct {
	baseURL string
	http    *http.Client
}

func NewDeskClient(baseURL string, httpClient *http.Client) *DeskClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &DeskClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *DeskClient) Borrow(ctx context.Context, isbn, subscriberNumber string, date time.Time, override bool) (*circulation.BorrowResult, error) {
	req := struct {
		ISBN                 string `json:"isbn"`
		SubscriberNumber     string `json:"subscriber_number"`
		Date                 string `json:"date,omitempty"`
		OverrideMonthlyLimit bool   `json:"override_monthly_limit"`
	}{
		ISBN:                 isbn,
		SubscriberNumber:     subscriberNumber,
		Date:                 formatDate(date),
		OverrideMonthlyLimit: override,
	}

	var result circulation.BorrowResult
	if err := c.do(ctx, http.MethodPost, "/loans", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *DeskClient) Return(ctx context.Context, loanID string, date time.Time) (*ledger.Loan, error) {
	var loan ledger.Loan
	path := "/loans/" + url.PathEscape(loanID) + "/return"
	if err := c.do(ctx, http.MethodPost, path, dateQuery(date), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// Overdue lists overdue loans, for one reader when subscriberNumber is set.
func (c *DeskClient) Overdue(ctx context.Context, subscriberNumber string, date time.Time) ([]stats.OverdueLoan, error) {
	path := "/loans/overdue"
	if subscriberNumber != "" {
		path = "/readers/" + url.PathEscape(subscriberNumber) + "/overdue"
	}

	var loans []stats.OverdueLoan
	if err := c.do(ctx, http.MethodGet, path, dateQuery(date), nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *DeskClient) Summary(ctx context.Context, date time.Time) (*stats.Summary, error) {
	var summary stats.Summary
	if err := c.do(ctx, http.MethodGet, "/stats/summary", dateQuery(date), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *DeskClient) TopBooks(ctx context.Context, n int) ([]stats.BookCount, error) {
	var top []stats.BookCount
	q := url.Values{"n": []string{strconv.Itoa(n)}}
	if err := c.do(ctx, http.MethodGet, "/stats/top-books", q, nil, &top); err != nil {
		return nil, err
	}
	return top, nil
}

func (c *DeskClient) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil {
			apiErr.Message, apiErr.Kind = e.Error, e.Kind
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ledger.DateLayout)
}

func dateQuery(t time.Time) url.Values {
	if t.IsZero() {
		return nil
	}
	return url.Values{"date": []string{formatDate(t)}}
}
