package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/newsletter-ai/internal/config"
	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retries := 2
	c := NewClient(config.BackendConfig{BaseURL: server.URL + "/", APIKey: "secret", TimeoutSeconds: 5, MaxRetries: &retries})
	c.SetHTTPClient(server.Client(), httpretry.WithBackoff(time.Millisecond, 5*time.Millisecond))
	return c
}

func TestClient_FetchReference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrapeRef", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"url": "https://ref.example.com"}, body)

		w.Write([]byte(`{"reference":"page text"}`))
	})

	ref, err := c.FetchReference(context.Background(), "https://ref.example.com")
	require.NoError(t, err)
	assert.Equal(t, "page text", ref)
}

func TestClient_FetchReferenceEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"reference":"  "}`))
	})

	_, err := c.FetchReference(context.Background(), "https://ref.example.com")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestClient_Persist(t *testing.T) {
	doc := &domain.Newsletter{
		ID:       "n1",
		Title:    "Mars Weekly",
		Tag:      "space",
		Category: domain.CategorySpaceResearch,
		Date:     domain.Date{Year: 2024, Month: time.May, Day: 17},
		Sections: []domain.Section{{Subtitle: "Rovers", Paragraph: "Clay."}},
	}

	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantErr  bool
	}{
		{name: "stored", status: http.StatusOK, body: `{"code":200}`, wantCode: 200},
		{name: "rejected in body", status: http.StatusOK, body: `{"code":500}`, wantCode: 500},
		{name: "missing code", status: http.StatusOK, body: `{}`, wantCode: 0},
		{name: "http error", status: http.StatusBadRequest, body: `bad doc`, wantCode: 400, wantErr: true},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantCode: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/addData", r.URL.Path)
				var got map[string]interface{}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				assert.Equal(t, "Mars Weekly", got["title"])
				assert.Equal(t, "2024-05-17", got["date"])
				assert.Len(t, got["content"], 1)
				assert.NotContains(t, got, "id")

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			code, err := c.Persist(context.Background(), doc)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_Dispatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendEmail", r.URL.Path)
		var got domain.EmailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "Mars Weekly", got.Title)
		assert.Equal(t, domain.CategorySpaceResearch, got.Category)
		assert.Equal(t, []string{"a@x.com", ""}, got.Emails)

		w.Write([]byte(`{"status":"Email sent to 1 of 2 subscribers"}`))
	})

	status, err := c.Dispatch(context.Background(), domain.EmailRequest{
		Title:       "Mars Weekly",
		Link:        "https://news.example.com/?=Mars%20Weekly",
		Description: "Clay.",
		Category:    domain.CategorySpaceResearch,
		Emails:      []string{"a@x.com", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Email sent to 1 of 2 subscribers", status)
}

func TestClient_RetriesScrapeOnly(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body), "body is replayed on retry")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"reference":"page text"}`))
	})

	ref, err := c.FetchReference(context.Background(), "https://ref.example.com")
	require.NoError(t, err)
	assert.Equal(t, "page text", ref)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_WritesAreSentOnce(t *testing.T) {
	counts := map[string]*int32{"/addData": new(int32), "/sendEmail": new(int32)}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(counts[r.URL.Path], 1)
		w.WriteHeader(http.StatusGatewayTimeout)
	})

	_, err := c.Dispatch(context.Background(), domain.EmailRequest{Title: "t", Emails: []string{"a@x.com"}})
	require.Error(t, err)
	_, err = c.Persist(context.Background(), &domain.Newsletter{Title: "t"})
	require.Error(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(counts["/sendEmail"]))
	assert.Equal(t, int32(1), atomic.LoadInt32(counts["/addData"]))
}

func TestClient_ZeroRetriesDisablesScrapeRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	zero := 0
	c := NewClient(config.BackendConfig{BaseURL: server.URL, TimeoutSeconds: 5, MaxRetries: &zero})
	_, err := c.FetchReference(context.Background(), "https://ref.example.com")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key\n"))
	})

	_, err := c.Dispatch(context.Background(), domain.EmailRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/sendEmail", apiErr.Path)
	assert.Equal(t, "invalid key", apiErr.Body)
}

func TestClient_Ping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	})
	assert.NoError(t, c.Ping(context.Background()))
}
