package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "ws://localhost:8000"})
	require.Error(t, err)

	c, err := NewClient(ClientConfig{BaseURL: "https://localhost:8000/", InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8000", c.BaseURL())
}

func TestSubmitPostsPayload(t *testing.T) {
	var gotPath, gotType string
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"task_id":"abc-123"}`))
	}))

	id, err := c.Submit(context.Background(), TranscribeRequest{
		OutputCSVName: "out.csv",
		Method:        TranscribeElevenLabs,
		APIKey:        "sk-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "/tasks/transcribe", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "sk-1", gotBody["api_key"])
	assert.Equal(t, "elevenlabs", gotBody["method"])
}

func TestSubmitValidatesBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := c.Submit(context.Background(), TranscribeRequest{OutputCSVName: "o.csv", Method: TranscribeElevenLabs})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))

	_, err = c.Submit(context.Background(), SplitRequest{})
	require.True(t, errors.As(err, &ve))

	assert.Zero(t, calls.Load())
}

func TestSubmitExecutorErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{"error field", http.StatusBadRequest, `{"error":"playlist_url is required"}`, 400, "playlist_url is required"},
		{"detail field", http.StatusUnprocessableEntity, `{"detail":"bad payload"}`, 422, "bad payload"},
		{"plain text", http.StatusInternalServerError, "boom\n", 500, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.Submit(context.Background(), ScrapeRequest{PlaylistURL: "u"})
			var te *TransportError
			require.True(t, errors.As(err, &te), "got %v", err)
			assert.Equal(t, tt.wantCode, te.StatusCode)
			assert.Equal(t, tt.wantMsg, te.Message)
			assert.Equal(t, "submit scrape", te.Op)
		})
	}
}

func TestSubmitMissingTaskID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := c.Submit(context.Background(), ScrapeRequest{PlaylistURL: "u"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, te.Error(), "task_id")
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), ScrapeRequest{PlaylistURL: "u"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.NotNil(t, te.Unwrap())
}

func TestListCSVs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/csvs", r.URL.Path)
		_, _ = w.Write([]byte(`["a.csv","b.csv"]`))
	}))

	names, err := c.ListCSVs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)
}

func TestUploadReportsProgress(t *testing.T) {
	var gotName, gotContent string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotContent = hdr.Filename, string(b)
		_, _ = w.Write([]byte(`{"task_id":"up-1"}`))
	}))

	content := strings.Repeat("x", 10_000)
	var last, total int64
	id, err := c.Upload(context.Background(), "/videos/clip.mp4", strings.NewReader(content), int64(len(content)),
		func(sent, size int64) { last, total = sent, size })
	require.NoError(t, err)

	assert.Equal(t, "up-1", id)
	assert.Equal(t, "clip.mp4", gotName)
	assert.Equal(t, content, gotContent)
	assert.Equal(t, int64(len(content)), last)
	assert.Equal(t, int64(len(content)), total)
}
