package api_test

import (
	"context"
	"github.com/chatscope/chatscope/internal/api"
	"github.com/chatscope/chatscope/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := api.NewClient(api.Config{BaseURL: srv.URL, TunnelBypass: true}, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	return client
}

func TestNewClient_rejectsInvalidBaseURL(t *testing.T) {
	for _, baseURL := range []string{"", "localhost:8000", "ftp://example.com", "http://"} {
		_, err := api.NewClient(api.Config{BaseURL: baseURL}, testhelpers.NewLogger(io.Discard))
		require.ErrorIs(t, err, api.ErrInvalidBaseURL, baseURL)
	}
}

func TestRequest_errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "string detail",
			status:      http.StatusNotFound,
			body:        `{"detail":"Group not found"}`,
			wantMessage: "Group not found",
		},
		{
			name:        "structured detail is JSON encoded",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail": [{"loc": ["body", "num_chats"], "msg": "too large"}]}`,
			wantMessage: `[{"loc":["body","num_chats"],"msg":"too large"}]`,
		},
		{
			name:        "null detail is JSON encoded",
			status:      http.StatusBadRequest,
			body:        `{"detail":null}`,
			wantMessage: "null",
		},
		{
			name:        "no detail falls back to status text",
			status:      http.StatusConflict,
			body:        `{"error":"nope"}`,
			wantMessage: "Conflict",
		},
		{
			name:        "empty body falls back to status text",
			status:      http.StatusInternalServerError,
			body:        "",
			wantMessage: "Internal Server Error",
		},
		{
			name:        "non-JSON body is the message",
			status:      http.StatusBadGateway,
			body:        "upstream timed out",
			wantMessage: "upstream timed out",
		},
		{
			name:        "JSON array body falls back to status text",
			status:      http.StatusServiceUnavailable,
			body:        `["a"]`,
			wantMessage: "Service Unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := client.ListGroups(context.Background())
			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.status == http.StatusNotFound, api.IsNotFound(err))
			assert.Equal(t, tt.status, api.StatusCode(err))
		})
	}
}

func TestRequest_success(t *testing.T) {
	t.Run("empty body is null", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		groups, err := client.ListGroups(context.Background())
		require.NoError(t, err)
		require.Nil(t, groups)
	})

	t.Run("plain-text success body is null", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "OK not json")
		})
		groups, err := client.ListGroups(context.Background())
		require.NoError(t, err)
		require.Nil(t, groups)
	})

	t.Run("plain-text success body of a mutation is accepted", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, "<html>tunnel warning</html>")
		})
		result, err := client.TriggerAnalysis(context.Background(), "g1")
		require.NoError(t, err)
		require.Zero(t, result)
	})

	t.Run("JSON of the wrong shape is a decode error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"groups": "none"}`)
		})
		_, err := client.ListGroups(context.Background())
		var decodeErr *api.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		require.Equal(t, http.StatusOK, decodeErr.Status)
		require.Contains(t, decodeErr.Body, "none")
		require.Zero(t, api.StatusCode(err))
	})

	t.Run("sends default headers", func(t *testing.T) {
		var got http.Header
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			_, _ = io.WriteString(w, `[{"id":"howly","label":"Howly"}]`)
		})
		businesses, err := client.ListBusinesses(context.Background())
		require.NoError(t, err)
		require.Len(t, businesses, 1)
		require.Equal(t, "howly", businesses[0].ID)
		require.Equal(t, "true", got.Get(api.TunnelBypassHeader))
		require.Equal(t, "application/json", got.Get("Accept"))
	})
}

func TestRequest_transportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()
	client, err := api.NewClient(api.Config{BaseURL: baseURL}, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	_, err = client.ListGroups(context.Background())
	require.Error(t, err)
	require.Zero(t, api.StatusCode(err))
}
