package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the CMS has no document with the
// requested id.
var ErrNotFound = errors.New("document not found")

// cmsRequestsPerSecond paces requests against the CMS API so a full
// sync over a large site does not starve the CMS of connections.
const cmsRequestsPerSecond = 10

// Client reads documents from the host CMS over its JSON API. The CMS
// owns the documents; this client never mutates them.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a CMS client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(cmsRequestsPerSecond, cmsRequestsPerSecond),
	}
}

// ListPublished returns every published document of the given types,
// ordered by creation time (ties broken by id) so full syncs walk
// documents in a stable order.
func (c *Client) ListPublished(ctx context.Context, types []string) ([]Document, error) {
	q := url.Values{}
	q.Set("status", StatusPublished)
	if len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}

	var docs []Document
	if err := c.getJSON(ctx, "/api/documents?"+q.Encode(), &docs); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// Get fetches a single document by id. Returns ErrNotFound for unknown
// ids.
func (c *Client) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.getJSON(ctx, "/api/documents/"+url.PathEscape(id), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cms request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("cms request %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cms response decode: %w", err)
	}
	return nil
}
