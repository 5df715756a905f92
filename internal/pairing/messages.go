package pairing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ProtocolVersion is the handshake protocol spoken by this sender.
const ProtocolVersion = 1

// Message types.
const (
	TypeHello   = "hello"
	TypeWelcome = "welcome"
	TypeLANURL  = "lan_url"
	TypeResume  = "resume"
	TypeError   = "error"
)

// DeviceIdentity names the peer device.
type DeviceIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PushToken lets a saved device be reached again without a code.
type PushToken struct {
	User   string `json:"user"`
	Device string `json:"device"`
}

// Hello is the peer's first handshake message.
type Hello struct {
	Type    string         `json:"type"`
	Version int            `json:"version"`
	Code    string         `json:"code"`
	Device  DeviceIdentity `json:"device"`
}

// Welcome is the sender's reply to a hello carrying the right code.
type Welcome struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	IsSaved bool   `json:"is_saved"`
	Sender  string `json:"sender"`
}

// LANURL carries the peer's upload endpoint and session token.
type LANURL struct {
	Type      string     `json:"type"`
	URLLAN    string     `json:"url_lan"`
	Token     string     `json:"token"`
	PushToken *PushToken `json:"push_token,omitempty"`
}

// ResumeRequest asks a saved device to reopen a session.
type ResumeRequest struct {
	Type      string    `json:"type"`
	Version   int       `json:"version"`
	DeviceID  string    `json:"device_id"`
	PushToken PushToken `json:"push_token"`
}

// ErrorMessage reports a refusal from either side.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// wire shapes use pointers so absent fields can be told apart from zero values.
type envelope struct {
	Type    *string `json:"type"`
	Version *int    `json:"version"`
}

type wireDevice struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

type wireHello struct {
	Version *int        `json:"version"`
	Code    *string     `json:"code"`
	Device  *wireDevice `json:"device"`
}

type wireLANURL struct {
	URLLAN    *string        `json:"url_lan"`
	Token     *string        `json:"token"`
	PushToken *wirePushToken `json:"push_token"`
}

type wirePushToken struct {
	User   *string `json:"user"`
	Device *string `json:"device"`
}

type wireResume struct {
	Version   *int           `json:"version"`
	DeviceID  *string        `json:"device_id"`
	PushToken *wirePushToken `json:"push_token"`
}

type wireError struct {
	Reason *string `json:"reason"`
}

func peerRejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPeerRejected, fmt.Sprintf(format, args...))
}

func versionMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVersionMismatch, fmt.Sprintf(format, args...))
}

// peekType validates the envelope and returns the message type. A version, when
// present, must match ProtocolVersion. Error messages are surfaced as
// ErrPeerRejected carrying the peer's reason.
func peekType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", peerRejected("malformed message: %v", err)
	}
	if env.Type == nil || strings.TrimSpace(*env.Type) == "" {
		return "", peerRejected("message type missing")
	}
	if env.Version != nil && *env.Version != ProtocolVersion {
		return "", versionMismatch("peer speaks version %d, want %d", *env.Version, ProtocolVersion)
	}
	msgType := *env.Type
	switch msgType {
	case TypeHello, TypeWelcome, TypeLANURL, TypeResume:
		return msgType, nil
	case TypeError:
		var msg wireError
		_ = json.Unmarshal(data, &msg)
		reason := "no reason given"
		if msg.Reason != nil && strings.TrimSpace(*msg.Reason) != "" {
			reason = *msg.Reason
		}
		return "", peerRejected("peer error: %s", reason)
	default:
		return "", versionMismatch("unknown message type %q", msgType)
	}
}

func expectType(data []byte, want string) error {
	got, err := peekType(data)
	if err != nil {
		return err
	}
	if got != want {
		return peerRejected("expected %s message, got %s", want, got)
	}
	return nil
}

func requireString(field string, value *string) (string, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return "", peerRejected("%s missing", field)
	}
	return strings.TrimSpace(*value), nil
}

// DecodeHello strictly parses a hello message.
func DecodeHello(data []byte) (*Hello, error) {
	if err := expectType(data, TypeHello); err != nil {
		return nil, err
	}
	var wire wireHello
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, peerRejected("malformed hello: %v", err)
	}
	if wire.Version == nil {
		return nil, peerRejected("version missing")
	}
	code, err := requireString("code", wire.Code)
	if err != nil {
		return nil, err
	}
	if wire.Device == nil {
		return nil, peerRejected("device missing")
	}
	id, err := requireString("device.id", wire.Device.ID)
	if err != nil {
		return nil, err
	}
	name, err := requireString("device.name", wire.Device.Name)
	if err != nil {
		return nil, err
	}
	return &Hello{
		Type:    TypeHello,
		Version: *wire.Version,
		Code:    code,
		Device:  DeviceIdentity{ID: id, Name: name},
	}, nil
}

// DecodeLANURL strictly parses a lan_url message. The URL must be absolute
// http or https.
func DecodeLANURL(data []byte) (*LANURL, error) {
	if err := expectType(data, TypeLANURL); err != nil {
		return nil, err
	}
	var wire wireLANURL
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, peerRejected("malformed lan_url: %v", err)
	}
	rawURL, err := requireString("url_lan", wire.URLLAN)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, peerRejected("url_lan %q is not an http url", rawURL)
	}
	token, err := requireString("token", wire.Token)
	if err != nil {
		return nil, err
	}
	msg := &LANURL{Type: TypeLANURL, URLLAN: strings.TrimRight(rawURL, "/"), Token: token}
	if wire.PushToken != nil {
		push, err := decodePushToken(wire.PushToken)
		if err != nil {
			return nil, err
		}
		msg.PushToken = push
	}
	return msg, nil
}

// DecodeResume strictly parses a resume request. Used by peers.
func DecodeResume(data []byte) (*ResumeRequest, error) {
	if err := expectType(data, TypeResume); err != nil {
		return nil, err
	}
	var wire wireResume
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, peerRejected("malformed resume: %v", err)
	}
	if wire.Version == nil {
		return nil, peerRejected("version missing")
	}
	deviceID, err := requireString("device_id", wire.DeviceID)
	if err != nil {
		return nil, err
	}
	if wire.PushToken == nil {
		return nil, peerRejected("push_token missing")
	}
	push, err := decodePushToken(wire.PushToken)
	if err != nil {
		return nil, err
	}
	return &ResumeRequest{Type: TypeResume, Version: *wire.Version, DeviceID: deviceID, PushToken: *push}, nil
}

// DecodeWelcome strictly parses a welcome message. Used by peers.
func DecodeWelcome(data []byte) (*Welcome, error) {
	if err := expectType(data, TypeWelcome); err != nil {
		return nil, err
	}
	var wire struct {
		Version *int    `json:"version"`
		IsSaved *bool   `json:"is_saved"`
		Sender  *string `json:"sender"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, peerRejected("malformed welcome: %v", err)
	}
	if wire.Version == nil || wire.IsSaved == nil {
		return nil, peerRejected("welcome missing version or is_saved")
	}
	msg := &Welcome{Type: TypeWelcome, Version: *wire.Version, IsSaved: *wire.IsSaved}
	if wire.Sender != nil {
		msg.Sender = *wire.Sender
	}
	return msg, nil
}

func decodePushToken(wire *wirePushToken) (*PushToken, error) {
	user, err := requireString("push_token.user", wire.User)
	if err != nil {
		return nil, err
	}
	device, err := requireString("push_token.device", wire.Device)
	if err != nil {
		return nil, err
	}
	return &PushToken{User: user, Device: device}, nil
}

// peerErrorReason reports whether data is an error message and its reason.
func peerErrorReason(data []byte) (string, bool) {
	var msg struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeError {
		return "", false
	}
	return msg.Reason, true
}
