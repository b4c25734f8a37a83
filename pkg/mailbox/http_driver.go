package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// HTTPDriver fetches records from an Exchange-compatible gateway over HTTP.
// Paging uses a continuation token; the gateway is responsible for
// server-side retries of transient mailbox errors.
type HTTPDriver struct {
	endpoint string
	token    string
	pageSize int
	client   *http.Client
}

// NewHTTPDriver creates a driver for the given gateway endpoint. The bearer
// token is read from credentialsEnv at construction time.
func NewHTTPDriver(endpoint, credentialsEnv string, pageSize int) *HTTPDriver {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &HTTPDriver{
		endpoint: endpoint,
		token:    os.Getenv(credentialsEnv),
		pageSize: pageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type fetchPage struct {
	Records []Record `json:"records"`
	Next    string   `json:"next,omitempty"`
}

// Fetch implements Fetcher. It pages through each folder in turn and
// returns the concatenated records.
func (d *HTTPDriver) Fetch(ctx context.Context, window Window, folders []string) ([]Record, error) {
	var all []Record
	for _, folder := range folders {
		recs, err := d.fetchFolder(ctx, window, folder)
		if err != nil {
			return nil, fmt.Errorf("folder %q: %w", folder, err)
		}
		all = append(all, recs...)
	}
	slog.Info("Mailbox fetch complete",
		"folders", len(folders), "records", len(all),
		"window_start", window.Start, "window_end", window.End)
	return all, nil
}

func (d *HTTPDriver) fetchFolder(ctx context.Context, window Window, folder string) ([]Record, error) {
	var out []Record
	next := ""
	for {
		page, err := d.fetchPage(ctx, window, folder, next)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.Next == "" {
			return out, nil
		}
		next = page.Next
	}
}

func (d *HTTPDriver) fetchPage(ctx context.Context, window Window, folder, next string) (*fetchPage, error) {
	q := url.Values{}
	q.Set("folder", folder)
	q.Set("start", window.Start.Format(time.RFC3339))
	q.Set("end", window.End.Format(time.RFC3339))
	q.Set("limit", fmt.Sprint(d.pageSize))
	if next != "" {
		q.Set("next", next)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.endpoint+"/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailbox request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mailbox returned HTTP %d: %s", resp.StatusCode, body)
	}

	var page fetchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode mailbox page: %w", err)
	}
	return &page, nil
}
