// ABOUTME: Facility search specialist - returns fresh job results or launches a background search
// ABOUTME: Never blocks on job completion; the acknowledgement reply carries the job reference

package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carenav/navigator/internal/store"
)

// freshResultWindow is how long a completed job's results are considered
// fresh enough to return without launching a new search.
const freshResultWindow = 30 * time.Minute

// JobStarter is the slice of the job tracker the facility specialist needs.
type JobStarter interface {
	Start(ctx context.Context, userID, criteria string) (*store.SearchJob, error)
	Latest(ctx context.Context, userID string) (*store.SearchJob, error)
}

// FacilitySearch launches and reuses background facility searches.
type FacilitySearch struct {
	jobs   JobStarter
	logger *slog.Logger
}

// NewFacilitySearch creates the facility search specialist.
func NewFacilitySearch(jobs JobStarter, logger *slog.Logger) *FacilitySearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &FacilitySearch{
		jobs:   jobs,
		logger: logger.With("component", "facility_search"),
	}
}

// Handle returns fresh completed results when they exist, otherwise starts
// a new search job and acknowledges immediately. This call never waits for
// the job to finish.
func (f *FacilitySearch) Handle(ctx context.Context, req *Request) (*Reply, error) {
	latest, err := f.jobs.Latest(ctx, req.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up latest job: %w", err)
	}

	if latest != nil && isFresh(latest) {
		f.logger.Info("returning fresh search results",
			"user_id", req.UserID,
			"job_id", latest.ID,
			"results", len(latest.Results))
		return &Reply{
			Text:         formatResults(latest),
			JobReference: latest.ID,
			Results:      latest.Results,
		}, nil
	}

	criteria := buildCriteria(req.Fields)
	job, err := f.jobs.Start(ctx, req.UserID, criteria)
	if err != nil {
		return nil, fmt.Errorf("starting search job: %w", err)
	}

	f.logger.Info("search job launched",
		"user_id", req.UserID,
		"job_id", job.ID,
		"criteria", criteria)

	return &Reply{
		Text: "I've started searching for treatment facilities that match what you're looking for. " +
			"This can take a little while - I'll have results ready shortly, and you can ask me for an update any time.",
		JobReference: job.ID,
	}, nil
}

// isFresh reports whether a job completed recently enough to reuse.
func isFresh(job *store.SearchJob) bool {
	if job.Status != store.JobCompleted && job.Status != store.JobCompletedWithWarnings {
		return false
	}
	return time.Since(job.UpdatedAt) < freshResultWindow
}

// buildCriteria condenses the intake fields into a search criteria string.
func buildCriteria(fields store.IntakeFields) string {
	var parts []string
	if fields.TreatmentType != "" {
		parts = append(parts, fields.TreatmentType)
	}
	if fields.Location != "" {
		parts = append(parts, "near "+fields.Location)
	}
	if fields.PaymentMethod != "" {
		parts = append(parts, "accepting "+fields.PaymentMethod)
	}
	if fields.InsuranceProvider != "" && fields.InsuranceProvider != "unknown" {
		parts = append(parts, fields.InsuranceProvider)
	}
	return strings.Join(parts, ", ")
}

// formatResults renders a completed job's facilities as a reply.
func formatResults(job *store.SearchJob) string {
	if len(job.Results) == 0 {
		return "My last search didn't find facilities matching your criteria. We can adjust the search - a different location or treatment type might help."
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Here are %d facilities from my search:\n", len(job.Results)))
	for _, fac := range job.Results {
		b.WriteString("- " + fac.Name)
		if fac.Address != "" {
			b.WriteString(", " + fac.Address)
		}
		if fac.Phone != "" {
			b.WriteString(" (" + fac.Phone + ")")
		}
		b.WriteString("\n")
	}
	if job.Status == store.JobCompletedWithWarnings {
		b.WriteString("\nSome directories couldn't be reached, so this list may be incomplete. I can run a fresh search if you'd like.")
	}
	return b.String()
}
