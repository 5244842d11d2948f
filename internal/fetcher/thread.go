package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
)

// ThreadLimits bounds thread walking by total request count and total
// bytes, not depth alone, per spec.md §4.6 ("Thread walking ... is bounded
// by total-request-count and total-bytes, not depth alone").
type ThreadLimits struct {
	MaxRequests int
	MaxBytes    int64
}

// DefaultThreadLimits matches the transport response-size default scaled to
// a reasonable thread fetch budget.
func DefaultThreadLimits() ThreadLimits {
	return ThreadLimits{MaxRequests: 50, MaxBytes: 20 * 1024 * 1024}
}

// WalkThread follows an object's `inReplyTo`/`replies` chain (context,
// conversation) starting from rootURL, stopping once either limit is
// reached. It returns the objects fetched, in fetch order.
func (f *Fetcher) WalkThread(ctx context.Context, rootURL string, limits ThreadLimits, opts Options) ([]map[string]interface{}, error) {
	if limits.MaxRequests <= 0 {
		limits.MaxRequests = DefaultThreadLimits().MaxRequests
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultThreadLimits().MaxBytes
	}

	visited := make(map[string]bool)
	var out []map[string]interface{}
	var totalBytes int64
	queue := []string{rootURL}

	for len(queue) > 0 && len(out) < limits.MaxRequests {
		url := queue[0]
		queue = queue[1:]
		if url == "" || visited[url] {
			continue
		}
		visited[url] = true

		doc, err := f.FetchObject(ctx, url, opts)
		if err != nil {
			return out, fmt.Errorf("fetcher: walk thread at %s: %w", url, err)
		}

		raw, _ := json.Marshal(doc)
		totalBytes += int64(len(raw))
		if totalBytes > limits.MaxBytes {
			return out, nil
		}
		out = append(out, doc)

		if next := stringField(doc["inReplyTo"]); next != "" {
			queue = append(queue, next)
		}
		if repliesURL := stringField(doc["replies"]); repliesURL != "" {
			queue = append(queue, repliesURL)
		}
	}
	return out, nil
}
