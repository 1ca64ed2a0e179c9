package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/resilience"
)

func TestTextSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/textsearch/json", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "plumbers in Austin, TX", r.URL.Query().Get("query"))
		assert.Empty(t, r.URL.Query().Get("pagetoken"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"results": [
				{"place_id": "ChIJabc", "name": "Ace Plumbing", "formatted_address": "100 Main St, Austin, TX 78701, USA"}
			],
			"next_page_token": "tok-2",
			"status": "OK"
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), "plumbers", "Austin, TX", "")

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ChIJabc", resp.Results[0].PlaceID)
	assert.Equal(t, "Ace Plumbing", resp.Results[0].Name)
	assert.Equal(t, "tok-2", resp.NextPageToken)
	assert.NotEmpty(t, resp.Raw)
}

func TestTextSearch_PageTokenOmitsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-2", r.URL.Query().Get("pagetoken"))
		assert.Empty(t, r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"results": [], "status": "OK"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), "plumbers", "Austin, TX", "tok-2")
	require.NoError(t, err)
}

func TestTextSearch_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [], "status": "ZERO_RESULTS"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.TextSearch(context.Background(), "unicorn wranglers", "Nowhere, KS", "")

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Empty(t, resp.NextPageToken)
}

func TestTextSearch_OverQueryLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [], "status": "OVER_QUERY_LIMIT"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), "plumbers", "Austin, TX", "")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsMisconfig(err))
}

func TestTextSearch_RequestDeniedIsMisconfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [], "status": "REQUEST_DENIED", "error_message": "The provided API key is invalid."}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.TextSearch(context.Background(), "plumbers", "Austin, TX", "")

	require.Error(t, err)
	assert.True(t, resilience.IsMisconfig(err))
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "API key")
}

func TestTextSearch_HTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			_, err := client.TextSearch(context.Background(), "plumbers", "Austin, TX", "")

			require.Error(t, err)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestDetails_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details/json", r.URL.Path)
		assert.Equal(t, "ChIJabc", r.URL.Query().Get("place_id"))
		assert.Equal(t, DetailFields, r.URL.Query().Get("fields"))

		_, _ = w.Write([]byte(`{
			"result": {
				"place_id": "ChIJabc",
				"name": "Ace Plumbing",
				"formatted_address": "100 Main St, Austin, TX 78701, USA",
				"formatted_phone_number": "(512) 555-0100",
				"international_phone_number": "+1 512-555-0100",
				"website": "https://aceplumbing.example.com/",
				"types": ["plumber", "point_of_interest"],
				"rating": 4.7,
				"user_ratings_total": 211
			},
			"status": "OK"
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.Details(context.Background(), "ChIJabc")

	require.NoError(t, err)
	assert.Equal(t, "Ace Plumbing", resp.Result.Name)
	assert.Equal(t, "(512) 555-0100", resp.Result.FormattedPhoneNumber)
	assert.Equal(t, "https://aceplumbing.example.com/", resp.Result.Website)
	assert.Equal(t, []string{"plumber", "point_of_interest"}, resp.Result.Types)
	assert.InDelta(t, 4.7, resp.Result.Rating, 0.001)
	assert.Equal(t, 211, resp.Result.UserRatingsTotal)
}

func TestDetails_NotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "NOT_FOUND"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Details(context.Background(), "ChIJgone")

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsMisconfig(err))
}
