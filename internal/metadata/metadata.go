package metadata

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
	"golang.org/x/text/unicode/norm"
)

// ErrUnreadableFile reports that a file could not be opened or its tag
// container could not be parsed.
var ErrUnreadableFile = errors.New("unreadable file")

// Metadata holds the optional tag fields sent with an upload. Empty strings
// and a zero TrackNumber mean the tag was absent.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
}

// IsEmpty reports whether no field was populated.
func (m Metadata) IsEmpty() bool {
	return m == Metadata{}
}

// id3v1Size is the length of the ID3v1 trailer the tag reader falls back to.
const id3v1Size = 128

// Extract reads the tags embedded in path. Files too short to hold any tag
// container yield empty Metadata.
func Extract(path string) (Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: open %s: %w", ErrUnreadableFile, path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: stat %s: %w", ErrUnreadableFile, path, err)
	}
	if info.IsDir() {
		return Metadata{}, fmt.Errorf("%w: %s is a directory", ErrUnreadableFile, path)
	}

	tags, err := tag.ReadFrom(file)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) || info.Size() < id3v1Size {
			return Metadata{}, nil
		}
		return Metadata{}, fmt.Errorf("%w: parse tags %s: %w", ErrUnreadableFile, path, err)
	}
	return FromTags(tags), nil
}

// FromTags converts parsed tags into Metadata.
func FromTags(tags tag.Metadata) Metadata {
	if tags == nil {
		return Metadata{}
	}
	track, _ := tags.Track()
	if track < 0 {
		track = 0
	}
	return Metadata{
		Title:       clean(tags.Title()),
		Artist:      clean(firstNonEmpty(tags.Artist(), tags.AlbumArtist())),
		Album:       clean(tags.Album()),
		TrackNumber: track,
		ExternalID:  clean(externalID(tags.Raw())),
	}
}

func clean(value string) string {
	value = strings.TrimRight(value, "\x00")
	return norm.NFC.String(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
