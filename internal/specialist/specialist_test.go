// ABOUTME: Tests for the closed dispatch registry
// ABOUTME: Covers unknown kinds, duplicate registration, and failure-to-fallback conversion

package specialist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/store"
)

type stubHandler struct {
	reply *Reply
	err   error
}

func (h *stubHandler) Handle(_ context.Context, _ *Request) (*Reply, error) {
	return h.reply, h.err
}

func TestRegistry_DispatchRoutesToHandler(t *testing.T) {
	r := NewRegistry(store.NewMockStore(), nil)
	require.NoError(t, r.Register(KindInsurance, &stubHandler{reply: &Reply{Text: "verified"}}))

	reply, err := r.Dispatch(t.Context(), KindInsurance, &Request{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "verified", reply.Text)
}

func TestRegistry_UnknownKindRejected(t *testing.T) {
	r := NewRegistry(store.NewMockStore(), nil)

	_, err := r.Dispatch(t.Context(), Kind("billing"), &Request{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = r.Register(Kind("billing"), &stubHandler{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry_DuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry(store.NewMockStore(), nil)
	require.NoError(t, r.Register(KindReminder, &stubHandler{}))

	err := r.Register(KindReminder, &stubHandler{})
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistry_HandlerFailureBecomesFallbackReply(t *testing.T) {
	st := store.NewMockStore()
	r := NewRegistry(st, nil)
	require.NoError(t, r.Register(KindFacilitySearch, &stubHandler{err: errors.New("directory exploded")}))

	reply, err := r.Dispatch(t.Context(), KindFacilitySearch, &Request{UserID: "user-1"})

	require.NoError(t, err, "internal failures must not surface as errors")
	assert.Equal(t, fallbackReplies[KindFacilitySearch], reply.Text)
	assert.NotContains(t, reply.Text, "exploded", "raw error text must never reach the user")

	// The failure is audited.
	kind := store.TraceSpecialistFailure
	entries, terr := st.ListTrace(t.Context(), store.TraceFilter{Kind: &kind})
	require.NoError(t, terr)
	require.Len(t, entries, 1)
	assert.Equal(t, "facility_search", entries[0].Detail["specialist"])
}

func TestContextKeywords_EveryKindCovered(t *testing.T) {
	for _, kind := range ValidKinds {
		assert.NotEmpty(t, ContextKeywords(kind), "kind %s has no context keywords", kind)
	}
}
