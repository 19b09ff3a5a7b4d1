package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-hclog"
	"github.com/meikuraledutech/bridge"
)

// DefaultCacheTTL is how long a fetched catalog is reused before the
// host is asked again.
const DefaultCacheTTL = 60 * time.Second

// Client fetches the node definition registry from a running host's
// /object_info endpoint and caches it. A cached catalog value is
// immutable; refreshing swaps the whole value, so catalogs already
// handed out stay valid for in-flight compile/execute calls.
type Client struct {
	baseURL string
	http    *http.Client
	log     hclog.Logger
	ttl     time.Duration

	mu        sync.Mutex
	cached    bridge.Catalog
	fetchedAt time.Time
}

// NewClient creates a Client for the host at baseURL.
func NewClient(baseURL string, log hclog.Logger) *Client {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Named("catalog"),
		ttl:     DefaultCacheTTL,
	}
}

// Catalog returns the current registry, fetching it if the cache is
// empty or stale.
func (c *Client) Catalog(ctx context.Context) (bridge.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	cat, err := c.fetch(ctx)
	if err != nil {
		if c.cached != nil {
			c.log.Warn("catalog refresh failed, serving stale copy", "error", err)
			return c.cached, nil
		}
		return nil, err
	}
	c.cached = cat
	c.fetchedAt = time.Now()
	c.log.Debug("catalog refreshed", "classes", len(cat))
	return cat, nil
}

func (c *Client) fetch(ctx context.Context) (bridge.Catalog, error) {
	url := c.baseURL + "/object_info"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &bridge.CatalogError{Message: "build request: " + err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &bridge.CatalogError{Message: fmt.Sprintf("fetch %s: %v", url, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &bridge.CatalogError{Message: fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &bridge.CatalogError{Message: "read response: " + err.Error()}
	}

	// Some hosts wrap the registry in a node_definitions envelope.
	var envelope struct {
		NodeDefinitions json.RawMessage `json:"node_definitions"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.NodeDefinitions) > 0 {
		body = envelope.NodeDefinitions
	}
	return Parse(body)
}
