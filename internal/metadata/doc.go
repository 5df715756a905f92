// Package metadata reads embedded tags from media files and reduces them to
// the fields a paired device receives alongside each upload.
//
// Extraction is pure: it opens the file read-only, parses ID3, MP4, FLAC or
// Ogg tags with github.com/dhowden/tag, and never touches the network or the
// device store. Files without tags produce an empty Metadata value rather than
// an error; only files that cannot be opened or parsed fail, with
// ErrUnreadableFile.
package metadata
