package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/surfwatch/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL,
		WithTimeout(2*time.Second),
		WithInitialInterval(5*time.Millisecond),
	)
}

func TestClient_AnalyzeHazard_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathAnalyze, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Rip Current", r.FormValue("hazard_type"))

		files := r.MultipartForm.File["images"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.jpg", files[0].Filename)
		f, err := files[0].Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "jpeg-a", string(b))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(analyzeResponse{
			Success:         true,
			DetectedHazards: []string{"rip current"},
			ConfidenceScore: 0.87,
			Suggestions:     "Swim parallel to shore",
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	a, err := c.AnalyzeHazard(context.Background(), "Rip Current", []Image{
		{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("jpeg-a")},
		{Name: "b.png", MimeType: "image/png", Data: []byte("png-b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rip current"}, a.DetectedHazards)
	assert.Equal(t, 0.87, a.ConfidenceScore)
	assert.Equal(t, "Swim parallel to shore", a.Suggestions)
}

func TestClient_AnalyzeHazard_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"success":false,"error":"model not loaded"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).AnalyzeHazard(context.Background(), "Other", []Image{{Name: "a.jpg", Data: []byte("x")}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstream))
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestClient_AnalyzeHazard_NoImages(t *testing.T) {
	_, err := testClient("http://127.0.0.1:1").AnalyzeHazard(context.Background(), "Other", nil)
	assert.True(t, errors.Is(err, model.ErrUpstream))
}

func TestClient_RecomputeRisk_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathRescore, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "spot-1", body["surf_spot_id"])

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).RecomputeRisk(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RecomputeRisk_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown spot"}`))
	}))
	defer srv.Close()

	err := testClient(srv.URL).RecomputeRisk(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstream))
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RespectsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := testClient(srv.URL).RecomputeRisk(ctx, "spot-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUpstream))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathHealth, r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL+"/").Health(context.Background()))
}

func TestNew_DisabledWithoutBaseURL(t *testing.T) {
	c := New("")
	_, ok := c.(Disabled)
	require.True(t, ok)

	assert.ErrorIs(t, c.RecomputeRisk(context.Background(), "x"), model.ErrUpstream)
	_, err := c.AnalyzeHazard(context.Background(), "Other", []Image{{}})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Error(t, c.Health(context.Background()))

	_, ok = New("http://scoring:5000").(*Client)
	assert.True(t, ok)
}

func TestClient_HealthIsSingleShortAttempt(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url,
		WithTimeout(30*time.Second),
		WithInitialInterval(5*time.Millisecond),
		WithHealthTimeout(200*time.Millisecond),
	)

	start := time.Now()
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstream)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_HealthDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	require.Error(t, testClient(srv.URL).Health(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithTimeout_LeavesCallerClientUntouched(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := NewClient("http://scoring:5000", WithHTTPClient(shared), WithTimeout(3*time.Second))

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)
}
