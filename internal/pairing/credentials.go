package pairing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Credentials is everything needed to reach a paired device again. It is
// stored as the device's opaque data.
type Credentials struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	URLLAN     string     `json:"url_lan"`
	Token      string     `json:"token"`
	PushToken  *PushToken `json:"push_token,omitempty"`
	Version    int        `json:"version"`
}

// Resumable reports whether the device shared a push token.
func (c Credentials) Resumable() bool {
	return c.PushToken != nil && c.PushToken.User != "" && c.PushToken.Device != ""
}

// Encode serializes credentials for storage.
func (c Credentials) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	return string(data), nil
}

// DecodeCredentials parses stored credentials.
func DecodeCredentials(data string) (Credentials, error) {
	var creds Credentials
	if strings.TrimSpace(data) == "" {
		return creds, fmt.Errorf("decode credentials: empty")
	}
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return creds, fmt.Errorf("decode credentials: %w", err)
	}
	if creds.Version == 0 {
		creds.Version = ProtocolVersion
	}
	return creds, nil
}

// resumeURL derives the websocket resume endpoint from the stored LAN URL.
func (c Credentials) resumeURL() (string, error) {
	parsed, err := url.Parse(c.URLLAN)
	if err != nil {
		return "", fmt.Errorf("parse url_lan: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("url_lan %q has unsupported scheme", c.URLLAN)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url_lan %q has no host", c.URLLAN)
	}
	parsed.Path = "/resume"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
