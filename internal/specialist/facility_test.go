// ABOUTME: Tests for the facility search specialist's job reuse and launch behavior
// ABOUTME: Covers fresh-result reuse, stale results, and the non-blocking acknowledgement

package specialist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/store"
)

type stubJobStarter struct {
	latest  *store.SearchJob
	started *store.SearchJob
	starts  int
}

func (s *stubJobStarter) Start(_ context.Context, userID, criteria string) (*store.SearchJob, error) {
	s.starts++
	job := &store.SearchJob{
		ID:       "job-new",
		UserID:   userID,
		Criteria: criteria,
		Status:   store.JobQueued,
	}
	s.started = job
	return job, nil
}

func (s *stubJobStarter) Latest(_ context.Context, _ string) (*store.SearchJob, error) {
	if s.latest == nil {
		return nil, store.ErrNotFound
	}
	return s.latest, nil
}

func TestFacilitySearch_FreshResultsReused(t *testing.T) {
	jobs := &stubJobStarter{
		latest: &store.SearchJob{
			ID:        "job-1",
			UserID:    "user-1",
			Status:    store.JobCompleted,
			UpdatedAt: time.Now().UTC().Add(-time.Minute),
			Results: []store.Facility{
				{ID: "f-1", Name: "Riverside Recovery", Address: "Denver", Phone: "555-0100"},
			},
		},
	}
	f := NewFacilitySearch(jobs, nil)

	reply, err := f.Handle(t.Context(), &Request{UserID: "user-1"})

	require.NoError(t, err)
	assert.Zero(t, jobs.starts, "fresh results must not trigger a new search")
	assert.Equal(t, "job-1", reply.JobReference)
	assert.Contains(t, reply.Text, "Riverside Recovery")
	assert.Len(t, reply.Results, 1)
}

func TestFacilitySearch_StaleResultsTriggerNewSearch(t *testing.T) {
	jobs := &stubJobStarter{
		latest: &store.SearchJob{
			ID:        "job-old",
			UserID:    "user-1",
			Status:    store.JobCompleted,
			UpdatedAt: time.Now().UTC().Add(-2 * time.Hour),
		},
	}
	f := NewFacilitySearch(jobs, nil)

	reply, err := f.Handle(t.Context(), &Request{
		UserID: "user-1",
		Fields: store.IntakeFields{Location: "Denver", TreatmentType: "outpatient"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.starts)
	assert.Equal(t, "job-new", reply.JobReference)
	assert.Contains(t, jobs.started.Criteria, "outpatient")
	assert.Contains(t, jobs.started.Criteria, "near Denver")
}

func TestFacilitySearch_NoPriorJobStartsOne(t *testing.T) {
	jobs := &stubJobStarter{}
	f := NewFacilitySearch(jobs, nil)

	reply, err := f.Handle(t.Context(), &Request{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.starts)
	assert.NotEmpty(t, reply.JobReference)
	assert.Contains(t, reply.Text, "started searching")
}

func TestFacilitySearch_ActiveJobNotReused(t *testing.T) {
	// A crawling job is not fresh; a new start supersedes it downstream.
	jobs := &stubJobStarter{
		latest: &store.SearchJob{
			ID:        "job-running",
			UserID:    "user-1",
			Status:    store.JobCrawling,
			UpdatedAt: time.Now().UTC(),
		},
	}
	f := NewFacilitySearch(jobs, nil)

	_, err := f.Handle(t.Context(), &Request{UserID: "user-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.starts)
}

func TestBuildCriteria_UnknownProviderOmitted(t *testing.T) {
	got := buildCriteria(store.IntakeFields{
		TreatmentType:     "detox",
		Location:          "Denver",
		PaymentMethod:     "private insurance",
		InsuranceProvider: "unknown",
	})

	assert.NotContains(t, got, "unknown")
	assert.Contains(t, got, "detox")
}
