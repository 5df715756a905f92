package transfer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunedrop/internal/metadata"
	"tunedrop/internal/transfer"
)

type receivedUpload struct {
	Filename      string
	Metadata      metadata.Metadata
	PartFilename  string
	PartType      string
	Content       string
	Authorization string
	ContentLength int64
	BodyLength    int64
}

// parseUpload reads the full body so Content-Length can be checked, then
// decodes the multipart parts.
func parseUpload(t *testing.T, r *http.Request) receivedUpload {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	got := receivedUpload{
		Authorization: r.Header.Get("Authorization"),
		ContentLength: r.ContentLength,
		BodyLength:    int64(len(raw)),
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)
	reader := multipart.NewReader(strings.NewReader(string(raw)), params["boundary"])
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		switch part.FormName() {
		case "filename":
			got.Filename = string(data)
		case "metadata":
			require.NoError(t, json.Unmarshal(data, &got.Metadata))
		case "file":
			got.PartFilename = part.FileName()
			got.PartType = part.Header.Get("Content-Type")
			got.Content = string(data)
		}
	}
	return got
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openSession(t *testing.T, baseURL, token string, mutate func(*transfer.Options)) *transfer.Session {
	t.Helper()
	opts := transfer.Options{
		UploadTimeout: 5 * time.Second,
		RetryBackoff:  10 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	session, err := transfer.NewClient(opts).Open(transfer.Authorization{BaseURL: baseURL, Token: token})
	require.NoError(t, err)
	return session
}

func TestUploadSendsMultipartWithExactLength(t *testing.T) {
	var got receivedUpload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		got = parseUpload(t, r)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	path := writeTemp(t, `Tr"ack 01.mp3`, "ID3 fake audio bytes")
	session := openSession(t, srv.URL, "tok-1", nil)
	md := metadata.Metadata{Title: "Song", Artist: "Band", TrackNumber: 1}

	outcome, err := session.Upload(context.Background(), path, md)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusAccepted, outcome.Status)
	assert.Equal(t, http.StatusCreated, outcome.StatusCode)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int64(len("ID3 fake audio bytes")), outcome.Bytes)

	assert.Equal(t, "Bearer tok-1", got.Authorization)
	assert.Equal(t, got.BodyLength, got.ContentLength)
	assert.Equal(t, `Tr"ack 01.mp3`, got.Filename)
	assert.Equal(t, `Tr"ack 01.mp3`, got.PartFilename)
	assert.Equal(t, "audio/mpeg", got.PartType)
	assert.Equal(t, "ID3 fake audio bytes", got.Content)
	assert.Equal(t, md, got.Metadata)
}

func TestUploadStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, transfer.ErrUnauthorized},
		{http.StatusForbidden, transfer.ErrUnauthorized},
		{http.StatusRequestEntityTooLarge, transfer.ErrPayloadTooLarge},
		{http.StatusInternalServerError, transfer.ErrServerError},
		{http.StatusBadRequest, transfer.ErrServerError},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			session := openSession(t, srv.URL, "tok", nil)
			_, err := session.Upload(context.Background(), writeTemp(t, "a.mp3", "x"), metadata.Metadata{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, int32(1), calls.Load(), "statuses are never retried")

			var uerr *transfer.UploadError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, tc.status, uerr.StatusCode)
			assert.Equal(t, 1, uerr.Attempts)
		})
	}
}

func dropConnection(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	_, _ = io.Copy(io.Discard, r.Body)
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	_ = conn.Close()
}

func TestUploadRetriesConnectionResetOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			dropConnection(t, w, r)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	session := openSession(t, srv.URL, "tok", nil)
	outcome, err := session.Upload(context.Background(), writeTemp(t, "a.flac", "data"), metadata.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUploadGivesUpAfterSecondReset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		dropConnection(t, w, r)
	}))
	defer srv.Close()

	session := openSession(t, srv.URL, "tok", nil)
	_, err := session.Upload(context.Background(), writeTemp(t, "a.flac", "data"), metadata.Metadata{})
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrConnectionReset)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUploadAttemptTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	session := openSession(t, srv.URL, "tok", func(o *transfer.Options) { o.UploadTimeout = 100 * time.Millisecond })
	outcome, err := session.Upload(context.Background(), writeTemp(t, "a.mp3", "data"), metadata.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestUploadExpiredTokenSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := token.SignedString([]byte("peer-secret"))
	require.NoError(t, err)

	session := openSession(t, srv.URL, signed, nil)
	_, err = session.Upload(context.Background(), writeTemp(t, "a.mp3", "data"), metadata.Metadata{})
	assert.ErrorIs(t, err, transfer.ErrUnauthorized)
	assert.Equal(t, int32(0), calls.Load())
}

func TestOpenValidatesAuthorization(t *testing.T) {
	client := transfer.NewClient(transfer.Options{})
	_, err := client.Open(transfer.Authorization{BaseURL: "http://10.0.0.1:8080", Token: ""})
	assert.Error(t, err)
	_, err = client.Open(transfer.Authorization{BaseURL: "ftp://10.0.0.1", Token: "t"})
	assert.Error(t, err)
	_, err = client.Open(transfer.Authorization{BaseURL: "http://10.0.0.1:8080/", Token: "t"})
	assert.NoError(t, err)
}

func TestInfoAndSupports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/info", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deviceName":          "Phone",
			"knownFileExtensions": []string{"mp3", ".opus"},
			"supportedMimetypes":  []string{"audio/mpeg", "audio/x-flac"},
			"appName":             "Player",
			"appVersion":          42,
		})
	}))
	defer srv.Close()

	session := openSession(t, srv.URL, "tok", nil)
	info, err := session.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Phone", info.DeviceName)
	assert.Equal(t, 42, info.AppVersion)

	assert.True(t, info.Supports("/m/a.mp3"))
	assert.True(t, info.Supports("/m/b.flac"), "x- subtype fallback")
	assert.True(t, info.Supports("/m/c.OPUS"), "extension match")
	assert.False(t, info.Supports("/m/d.wav"))
	assert.False(t, info.Supports("/m/noext"))
}

func TestInfoUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := openSession(t, srv.URL, "tok", nil).Info(context.Background())
	assert.ErrorIs(t, err, transfer.ErrUnauthorized)
}

func collect(ch <-chan transfer.Result) map[int]transfer.Result {
	out := map[int]transfer.Result{}
	for res := range ch {
		out[res.Index] = res
	}
	return out
}

func TestUploadBatchUnauthorizedSkipsRemaining(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := parseUpload(t, r)
		if got.Filename == "b.mp3" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var jobs []transfer.Job
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3", "d.mp3"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		jobs = append(jobs, transfer.Job{Path: path})
	}

	session := openSession(t, srv.URL, "tok", nil)
	results := collect(session.UploadBatch(context.Background(), jobs, 1))
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, transfer.ErrUnauthorized)
	assert.False(t, results[1].Skipped)
	for _, i := range []int{2, 3} {
		assert.True(t, results[i].Skipped, "job %d should be skipped", i)
		assert.ErrorIs(t, results[i].Err, transfer.ErrSkipped)
	}
}

func TestUploadBatchRespectsConcurrency(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var jobs []transfer.Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, transfer.Job{Path: writeTemp(t, "f.mp3", "x")})
	}
	session := openSession(t, srv.URL, "tok", nil)
	results := collect(session.UploadBatch(context.Background(), jobs, 2))
	require.Len(t, results, 6)
	for i, res := range results {
		assert.NoError(t, res.Err, "job %d", i)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

type recordingProgress struct {
	mu       sync.Mutex
	bytes    int64
	finished []error
}

func (p *recordingProgress) Start(string, int64) transfer.ProgressTracker { return p }

func (p *recordingProgress) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.bytes += int64(len(b))
	p.mu.Unlock()
	return len(b), nil
}

func (p *recordingProgress) Finish(err error) {
	p.mu.Lock()
	p.finished = append(p.finished, err)
	p.mu.Unlock()
}

func TestUploadReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	progress := &recordingProgress{}
	session := openSession(t, srv.URL, "tok", func(o *transfer.Options) { o.Progress = progress })
	content := strings.Repeat("z", 100_000)
	_, err := session.Upload(context.Background(), writeTemp(t, "big.mp3", content), metadata.Metadata{})
	require.NoError(t, err)

	progress.mu.Lock()
	defer progress.mu.Unlock()
	assert.Equal(t, int64(len(content)), progress.bytes)
	require.Len(t, progress.finished, 1)
	assert.NoError(t, progress.finished[0])
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", transfer.ContentType("x.MP3"))
	assert.Equal(t, "audio/flac", transfer.ContentType("x.flac"))
	assert.Equal(t, "application/octet-stream", transfer.ContentType("x.unknownext"))
}
