// ABOUTME: Background search worker - crawls directory sources and aggregates results
// ABOUTME: Checks the cancellation flag at every phase boundary; partial source failures degrade gracefully

package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/carenav/navigator/internal/store"
)

// maxConcurrentLookups bounds how many directory sources are queried at once.
const maxConcurrentLookups = 4

// run executes one search job: queued -> crawling -> processing_data ->
// completed | completed_with_warnings | failed. Each arrow is a phase
// boundary where the cancellation flag is checked; once a cancel has been
// accepted the worker emits nothing further.
func (t *Tracker) run(ctx context.Context, job *store.SearchJob, handle *jobHandle) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.running, job.ID)
		t.mu.Unlock()
	}()

	// queued -> crawling
	if !t.transition(ctx, job, handle, store.JobCrawling) {
		return
	}

	results, sourceErrs := t.crawl(ctx, job.Criteria)

	// crawling -> processing_data
	if !t.transition(ctx, job, handle, store.JobProcessingData) {
		return
	}

	job.Results = normalizeResults(results)

	// processing_data -> terminal
	switch {
	case len(job.Results) == 0 && len(sourceErrs) > 0:
		job.ErrorDetail = "all directory sources failed: " + strings.Join(sourceErrs, "; ")
		t.transition(ctx, job, handle, store.JobFailed)
	case len(sourceErrs) > 0:
		job.ErrorDetail = "some directory sources failed: " + strings.Join(sourceErrs, "; ")
		t.transition(ctx, job, handle, store.JobCompletedWithWarnings)
	default:
		t.transition(ctx, job, handle, store.JobCompleted)
	}
}

// crawl queries every configured directory source concurrently. Source
// failures are collected, not propagated: a failed source costs its results,
// not the whole job.
func (t *Tracker) crawl(ctx context.Context, criteria string) ([]store.Facility, []string) {
	found := make([][]store.Facility, len(t.sources))
	errs := make([]error, len(t.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, src := range t.sources {
		g.Go(func() error {
			facilities, err := src.Lookup(gctx, criteria)
			if err != nil {
				t.logger.Warn("directory source failed",
					"source", src.Name(),
					"error", err)
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			found[i] = facilities
			return nil
		})
	}
	_ = g.Wait() // closures never return errors; failures live in errs

	var results []store.Facility
	for _, batch := range found {
		results = append(results, batch...)
	}
	var errStrs []string
	for _, err := range errs {
		if err != nil {
			errStrs = append(errStrs, err.Error())
		}
	}
	return results, errStrs
}

// normalizeResults deduplicates facilities and orders them deterministically
// so repeated status queries against a terminal job return identical
// payloads.
func normalizeResults(results []store.Facility) []store.Facility {
	seen := make(map[string]bool, len(results))
	out := make([]store.Facility, 0, len(results))
	for _, f := range results {
		key := strings.ToLower(f.Name) + "|" + strings.ToLower(f.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
