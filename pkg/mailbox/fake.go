package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FakeFetcher serves records from memory or a JSON fixture file. Used by
// tests and dry runs; window filtering matches the driver contract.
type FakeFetcher struct {
	Records []Record
	Err     error
}

// NewFakeFromFile loads a JSON array of records as a fixture driver.
func NewFakeFromFile(path string) (*FakeFetcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return &FakeFetcher{Records: recs}, nil
}

// Fetch implements Fetcher.
func (f *FakeFetcher) Fetch(_ context.Context, window Window, _ []string) ([]Record, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	var out []Record
	for _, r := range f.Records {
		if r.ReceivedAt.Before(window.Start) || !r.ReceivedAt.Before(window.End) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
