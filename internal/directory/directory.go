// ABOUTME: Facility-directory lookup capability boundary, invoked only by the job worker
// ABOUTME: Source is one queryable directory; the worker fans out across all configured sources

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carenav/navigator/internal/store"
)

// Source is a single facility directory the search worker can query.
type Source interface {
	// Name identifies the source in logs and warning details.
	Name() string
	// Lookup returns facilities matching the criteria string.
	Lookup(ctx context.Context, criteria string) ([]store.Facility, error)
}

// HTTPSource queries a directory over HTTP. The endpoint is expected to
// accept a ?q= criteria parameter and return a JSON array of facilities.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
}

// DefaultLookupTimeout bounds each upstream directory request.
const DefaultLookupTimeout = 15 * time.Second

// NewHTTPSource creates an HTTP-backed directory source.
func NewHTTPSource(name, baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &HTTPSource{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the configured source name.
func (s *HTTPSource) Name() string { return s.name }

// Lookup queries the directory endpoint.
func (s *HTTPSource) Lookup(ctx context.Context, criteria string) ([]store.Facility, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing source URL: %w", err)
	}
	q := u.Query()
	q.Set("q", criteria)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building directory request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying directory %s: %w", s.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory %s returned status %d", s.name, resp.StatusCode)
	}

	var facilities []store.Facility
	if err := json.NewDecoder(resp.Body).Decode(&facilities); err != nil {
		return nil, fmt.Errorf("decoding directory response: %w", err)
	}
	return facilities, nil
}

// StaticSource serves a fixed facility list, used in development and tests.
type StaticSource struct {
	name       string
	facilities []store.Facility
	err        error
}

// NewStaticSource creates a source that always returns the given facilities.
func NewStaticSource(name string, facilities []store.Facility) *StaticSource {
	return &StaticSource{name: name, facilities: facilities}
}

// NewFailingSource creates a source that always fails, for testing the
// partial-failure path.
func NewFailingSource(name string, err error) *StaticSource {
	return &StaticSource{name: name, err: err}
}

// Name returns the configured source name.
func (s *StaticSource) Name() string { return s.name }

// Lookup returns the fixed facility list or the configured error.
func (s *StaticSource) Lookup(ctx context.Context, criteria string) ([]store.Facility, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]store.Facility(nil), s.facilities...), nil
}
