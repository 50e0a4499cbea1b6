// ABOUTME: In-memory fan-out broadcaster for search job status updates
// ABOUTME: Publishes every transition to all subscribers of a job and closes them at terminal states

package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carenav/navigator/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Update is the payload published on every job transition. It mirrors the
// status-query response so polling and streaming consumers see the same data.
type Update struct {
	JobID       string           `json:"job_id"`
	UserID      string           `json:"user_id"`
	Status      store.JobStatus  `json:"status"`
	Results     []store.Facility `json:"results,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	At          time.Time        `json:"at"`
}

// Broadcaster provides in-memory pub/sub for job status updates.
// Subscribers register for a job ID and receive an Update on each
// transition. Delivery is at-least-once per transition for subscribers
// that keep up; events are dropped for subscribers whose channels are full,
// which is harmless because status reads are idempotent.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // jobID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "job_broadcaster"),
	}
}

// Subscribe registers a subscriber for updates on the given job. Returns a
// channel that receives updates and a subscription ID. The subscription is
// automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, jobID string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[jobID]; !ok {
		b.subscribers[jobID] = make(map[string]chan Update)
	}
	b.subscribers[jobID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "job_id", jobID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(jobID, subID)
	}()

	return ch, subID
}

// Publish sends an update to all subscribers of the given job.
// Non-blocking: updates are dropped for subscribers whose channels are full.
// Sends happen under the read lock, so a channel can never be closed by
// Unsubscribe or CloseJob (both take the write lock) mid-send.
func (b *Broadcaster) Publish(update Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[update.JobID] {
		select {
		case ch <- update:
			// Sent
		default:
			b.logger.Debug("dropped update for slow subscriber",
				"job_id", update.JobID,
				"status", update.Status)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(jobID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[jobID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, jobID)
	}

	b.logger.Debug("subscriber removed", "job_id", jobID, "sub_id", subID)
}

// CloseJob closes every subscriber channel for a job. Called after the
// terminal update has been published; a closed channel is the signal that
// no further transitions will occur.
func (b *Broadcaster) CloseJob(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[jobID]
	if !ok {
		return
	}
	for subID, ch := range subs {
		close(ch)
		delete(subs, subID)
	}
	delete(b.subscribers, jobID)

	b.logger.Debug("job stream closed", "job_id", jobID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for jobID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, jobID)
	}

	b.logger.Debug("broadcaster closed")
}
