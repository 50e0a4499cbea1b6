// ABOUTME: Tests for the job update broadcaster fan-out
// ABOUTME: Covers subscribe, publish, isolation, context cleanup, close-at-terminal

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/store"
)

func makeUpdate(jobID string, status store.JobStatus) Update {
	return Update{
		JobID:  jobID,
		UserID: "user-1",
		Status: status,
		At:     time.Now().UTC(),
	}
}

func TestBroadcaster_SingleSubscriberReceivesUpdate(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "job-1")

	b.Publish(makeUpdate("job-1", store.JobCrawling))

	select {
	case got := <-ch:
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, store.JobCrawling, got.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestBroadcaster_MultipleSubscribersReceiveSameUpdate(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "job-1")
	ch2, _ := b.Subscribe(t.Context(), "job-1")
	ch3, _ := b.Subscribe(t.Context(), "job-1")

	b.Publish(makeUpdate("job-1", store.JobProcessingData))

	for i, ch := range []<-chan Update{ch1, ch2, ch3} {
		select {
		case got := <-ch:
			assert.Equal(t, store.JobProcessingData, got.Status, "subscriber %d got wrong update", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_JobsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "job-1")
	ch2, _ := b.Subscribe(t.Context(), "job-2")

	b.Publish(makeUpdate("job-1", store.JobCompleted))

	select {
	case got := <-ch1:
		assert.Equal(t, "job-1", got.JobID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for job-1 timed out")
	}

	select {
	case got := <-ch2:
		t.Fatalf("subscriber for job-2 received %q update", got.JobID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_ContextCancelCleansUpSubscription(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx, "job-1")
	cancel()

	// The channel is closed once the cleanup goroutine runs.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "job-1")
	b.Unsubscribe("job-1", subID)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_CloseJobClosesAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "job-1")
	ch2, _ := b.Subscribe(t.Context(), "job-1")

	b.CloseJob("job-1")

	for _, ch := range []<-chan Update{ch1, ch2} {
		select {
		case _, open := <-ch:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("channel not closed")
		}
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Never drained: the buffer fills and further publishes must not block.
	b.Subscribe(t.Context(), "job-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize+10; i++ {
			b.Publish(makeUpdate("job-1", store.JobCrawling))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var drained sync.WaitGroup
	for i := 0; i < 8; i++ {
		ch, _ := b.Subscribe(t.Context(), "job-1")
		drained.Add(1)
		go func() {
			defer drained.Done()
			for range ch {
			}
		}()
	}

	var published sync.WaitGroup
	for i := 0; i < 8; i++ {
		published.Add(1)
		go func() {
			defer published.Done()
			for j := 0; j < 50; j++ {
				b.Publish(makeUpdate("job-1", store.JobCrawling))
			}
		}()
	}

	published.Wait()
	b.CloseJob("job-1")
	drained.Wait()
}

func TestBroadcaster_PublishDuringUnsubscribeNeverPanics(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	// Unsubscribe and CloseJob close channels Publish may be sending to; the
	// send must be ordered against the close, never land after it.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5000; j++ {
				b.Publish(makeUpdate("job-1", store.JobCrawling))
			}
		}()
	}

	ctx := t.Context()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 5000; j++ {
			_, subID := b.Subscribe(ctx, "job-1")
			if j%2 == 0 {
				b.Unsubscribe("job-1", subID)
			} else {
				b.CloseJob("job-1")
			}
		}
	}()

	wg.Wait()
}
