package devicestore

import (
	"time"

	"tunedrop/internal/metadata"
)

// Device is a peer that completed pairing and asked to be remembered.
type Device struct {
	ID   string
	Name string
	// Data is the peer's serialized connection data. The store never
	// interprets it.
	Data      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileRecord is a local path confirmed as received by a device.
type FileRecord struct {
	ID         int64
	DeviceID   string
	Path       string
	MetadataID int64
	Metadata   metadata.Metadata
	UploadedAt time.Time
}

// DeviceSummary augments a device with its transfer history size.
type DeviceSummary struct {
	Device
	FileCount    int
	LastUploadAt time.Time
}
