package metadata

import (
	"sort"
	"strings"

	"github.com/dhowden/tag"
)

const musicBrainzProvider = "http://musicbrainz.org"

var (
	recordingKeys = map[string]struct{}{
		"musicbrainztrackid":     {},
		"musicbrainzrecordingid": {},
	}
	isrcKeys = map[string]struct{}{
		"isrc": {},
		"tsrc": {},
	}
)

// externalID prefers the MusicBrainz recording ID and falls back to ISRC.
// Keys are visited in sorted order so duplicate frames resolve the same way
// on every run.
func externalID(raw map[string]interface{}) string {
	if len(raw) == 0 {
		return ""
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var recording, isrc string
	for _, key := range keys {
		name, value := rawEntry(key, raw[key])
		if value == "" {
			continue
		}
		if _, ok := recordingKeys[name]; ok && recording == "" {
			recording = value
		}
		if _, ok := isrcKeys[name]; ok && isrc == "" {
			isrc = value
		}
	}
	if recording != "" {
		return recording
	}
	return isrc
}

// rawEntry reduces a raw tag entry to a normalized name and its text value.
// ID3 TXXX frames carry their name in the description; UFID frames are keyed
// by provider.
func rawEntry(key string, value interface{}) (string, string) {
	switch v := value.(type) {
	case string:
		return normalizeKey(key), strings.TrimSpace(v)
	case []string:
		if len(v) == 0 {
			return "", ""
		}
		return normalizeKey(key), strings.TrimSpace(v[0])
	case *tag.Comm:
		if v == nil {
			return "", ""
		}
		return normalizeKey(v.Description), strings.TrimSpace(v.Text)
	case *tag.UFID:
		if v == nil || !strings.EqualFold(strings.TrimSpace(v.Provider), musicBrainzProvider) {
			return "", ""
		}
		return "musicbrainzrecordingid", strings.TrimSpace(strings.TrimRight(string(v.Identifier), "\x00"))
	default:
		return "", ""
	}
}

// normalizeKey lowercases a tag key and strips separators and any
// "----:com.apple.iTunes:" style namespace prefix.
func normalizeKey(key string) string {
	if idx := strings.LastIndex(key, ":"); idx >= 0 {
		key = key[idx+1:]
	}
	if idx := strings.Index(key, "_"); idx == 4 && strings.ToUpper(key[:4]) == key[:4] {
		// Duplicate ID3 frames are suffixed, e.g. TXXX_0.
		key = key[:4]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
