package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// DeviceInfo is the device's self-description from GET /info.
type DeviceInfo struct {
	DeviceName          string   `json:"deviceName"`
	KnownFileExtensions []string `json:"knownFileExtensions"`
	SupportedMimeTypes  []string `json:"supportedMimetypes"`
	AppName             string   `json:"appName"`
	AppVersion          int      `json:"appVersion"`
}

// SupportsType reports whether the device accepts the MIME type, also trying
// the x- prefixed subtype.
func (d *DeviceInfo) SupportsType(contentType string) bool {
	if d == nil {
		return false
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	major, minor, ok := strings.Cut(contentType, "/")
	if !ok {
		return false
	}
	alt := major + "/x-" + minor
	for _, supported := range d.SupportedMimeTypes {
		s := strings.ToLower(strings.TrimSpace(supported))
		if s == contentType || s == alt {
			return true
		}
	}
	return false
}

// SupportsExtension reports whether the device lists the file's extension.
func (d *DeviceInfo) SupportsExtension(path string) bool {
	if d == nil {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return false
	}
	for _, known := range d.KnownFileExtensions {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(known)), ".") == ext {
			return true
		}
	}
	return false
}

// Supports reports whether the device should accept path, by MIME type or
// extension.
func (d *DeviceInfo) Supports(path string) bool {
	return d.SupportsType(ContentType(path)) || d.SupportsExtension(path)
}

// Info fetches the device description.
func (s *Session) Info(ctx context.Context) (*DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.client.infoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("info"), nil)
	if err != nil {
		return nil, fmt.Errorf("build info request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get info: %w", ErrConnectionReset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: get info: status %d", classifyStatus(resp.StatusCode), resp.StatusCode)
	}

	var info DeviceInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode info: %w", ErrServerError, err)
	}
	return &info, nil
}
