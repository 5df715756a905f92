package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tunedrop/internal/logging"
	"tunedrop/internal/metadata"
)

// maxAttempts bounds tries per file; only connection resets are retried.
const maxAttempts = 2

// Status is the transport-level result of an upload.
type Status string

// StatusAccepted means the device answered with a 2xx status.
const StatusAccepted Status = "accepted"

// Outcome describes a completed upload.
type Outcome struct {
	Path       string
	Status     Status
	StatusCode int
	Attempts   int
	Bytes      int64
	Duration   time.Duration
}

// Upload sends one file and its metadata to the device. A connection reset is
// retried once after the configured backoff; any HTTP status ends the upload.
func (s *Session) Upload(ctx context.Context, path string, md metadata.Metadata) (*Outcome, error) {
	logger := logging.WithContext(ctx, s.client.logger).With(logging.String(logging.FieldFile, path))

	if tokenExpired(s.token, s.client.now()) {
		return nil, &UploadError{Path: path, Err: fmt.Errorf("%w: session token expired", ErrUnauthorized)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &UploadError{Path: path, Err: fmt.Errorf("stat: %w", err)}
	}
	if info.IsDir() {
		return nil, &UploadError{Path: path, Err: errors.New("path is a directory")}
	}
	size := info.Size()

	start := time.Now()
	for attempt := 1; ; attempt++ {
		code, err := s.attempt(ctx, path, size, md)
		if err == nil {
			logger.Info("upload accepted",
				logging.Int("status", code),
				logging.Int("attempt", attempt),
				logging.Int64("bytes", size),
			)
			return &Outcome{
				Path:       path,
				Status:     StatusAccepted,
				StatusCode: code,
				Attempts:   attempt,
				Bytes:      size,
				Duration:   time.Since(start),
			}, nil
		}

		retryable := code == 0 && errors.Is(err, ErrConnectionReset) && ctx.Err() == nil
		if !retryable || attempt >= maxAttempts {
			return nil, &UploadError{Path: path, Attempts: attempt, StatusCode: code, Err: err}
		}

		logger.Info("upload connection reset; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", s.client.retryBackoff),
			logging.Error(err),
		)
		timer := time.NewTimer(s.client.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &UploadError{Path: path, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// attempt performs one POST /upload. It returns the HTTP status when one was
// received.
func (s *Session) attempt(ctx context.Context, path string, size int64, md metadata.Metadata) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	filename := filepath.Base(path)
	envelope, err := newEnvelope(filename, ContentType(path), md)
	if err != nil {
		return 0, err
	}

	var content io.Reader = io.LimitReader(file, size)
	var tracker ProgressTracker
	if s.client.progress != nil {
		tracker = s.client.progress.Start(path, size)
		content = io.TeeReader(content, tracker)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.client.uploadTimeout)
	defer cancel()

	body := io.MultiReader(bytes.NewReader(envelope.prefix), content, bytes.NewReader(envelope.suffix))
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.endpoint("upload"), body)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = envelope.length(size)
	req.Header.Set("Content-Type", envelope.contentType)
	s.authorize(req)

	resp, err := s.client.http.Do(req)
	if err != nil {
		if tracker != nil {
			tracker.Finish(err)
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %w", ErrConnectionReset, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if tracker != nil {
			tracker.Finish(nil)
		}
		return resp.StatusCode, nil
	}
	statusErr := fmt.Errorf("%w: status %d", classifyStatus(resp.StatusCode), resp.StatusCode)
	if tracker != nil {
		tracker.Finish(statusErr)
	}
	return resp.StatusCode, statusErr
}

// envelope is the multipart framing around the file bytes, prepared up front
// so the request can carry an exact Content-Length.
type envelope struct {
	prefix      []byte
	suffix      []byte
	contentType string
}

func (e envelope) length(fileSize int64) int64 {
	return int64(len(e.prefix)) + fileSize + int64(len(e.suffix))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func newEnvelope(filename, fileType string, md metadata.Metadata) (envelope, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("filename", filename); err != nil {
		return envelope{}, fmt.Errorf("write filename part: %w", err)
	}

	payload, err := json.Marshal(md)
	if err != nil {
		return envelope{}, fmt.Errorf("encode metadata: %w", err)
	}
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="metadata"`)
	metaHeader.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(metaHeader)
	if err != nil {
		return envelope{}, fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return envelope{}, fmt.Errorf("write metadata part: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	fileHeader.Set("Content-Type", fileType)
	if _, err := mw.CreatePart(fileHeader); err != nil {
		return envelope{}, fmt.Errorf("create file part: %w", err)
	}

	prefix := append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	if err := mw.Close(); err != nil {
		return envelope{}, fmt.Errorf("close multipart: %w", err)
	}
	return envelope{
		prefix:      prefix,
		suffix:      append([]byte(nil), buf.Bytes()...),
		contentType: mw.FormDataContentType(),
	}, nil
}
