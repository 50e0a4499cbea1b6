// ABOUTME: Tests for the HTTP directory source
// ABOUTME: Covers criteria encoding, JSON decoding, and upstream failure handling

package directory

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceLookup(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Harbor Recovery Center","address":"12 Main St, Denver","phone":"555-0100"}]`))
	}))
	defer srv.Close()

	src := NewHTTPSource("test-dir", srv.URL, time.Second)
	assert.Equal(t, "test-dir", src.Name())

	facilities, err := src.Lookup(t.Context(), "outpatient near Denver")
	require.NoError(t, err)
	assert.Equal(t, "outpatient near Denver", gotQuery)
	require.Len(t, facilities, 1)
	assert.Equal(t, "Harbor Recovery Center", facilities[0].Name)
	assert.Equal(t, "12 Main St, Denver", facilities[0].Address)
}

func TestHTTPSourceNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource("test-dir", srv.URL, time.Second)
	_, err := src.Lookup(t.Context(), "detox")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSourceBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource("test-dir", srv.URL, time.Second)
	_, err := src.Lookup(t.Context(), "detox")
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource("static", nil)
	facilities, err := src.Lookup(t.Context(), "anything")
	require.NoError(t, err)
	assert.Empty(t, facilities)
}
