package devicestore_test

import (
	"context"
	"errors"
	"testing"

	"tunedrop/internal/devicestore"
	"tunedrop/internal/metadata"
	"tunedrop/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	version, err := store.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version < 1 {
		t.Fatalf("expected migrations to be applied, got version %d", version)
	}
}

func TestReopenKeepsDevices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	store, err := devicestore.Open(ctx, cfg.DatabasePath())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.SaveDevice(ctx, devicestore.Device{ID: "dev-1", Name: "Phone", Data: `{"v":1}`}); err != nil {
		t.Fatalf("SaveDevice failed: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	device, err := reopened.FindDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("FindDevice failed: %v", err)
	}
	if device == nil || device.Name != "Phone" {
		t.Fatalf("expected device to survive reopen, got %#v", device)
	}
}

func TestSaveThenFindRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SaveDevice(t, store, "abc-123", "Kitchen Phone", `{"url_lan":"http://10.0.0.5:8080","token":"t"}`)

	byID, err := store.FindDevice(ctx, "abc-123")
	if err != nil {
		t.Fatalf("FindDevice by id failed: %v", err)
	}
	byName, err := store.FindDevice(ctx, "Kitchen Phone")
	if err != nil {
		t.Fatalf("FindDevice by name failed: %v", err)
	}
	for _, d := range []*devicestore.Device{byID, byName} {
		if d == nil {
			t.Fatal("expected device")
		}
		if d.ID != "abc-123" || d.Name != "Kitchen Phone" || d.Data != `{"url_lan":"http://10.0.0.5:8080","token":"t"}` {
			t.Fatalf("unexpected device: %#v", d)
		}
	}

	missing, err := store.FindDevice(ctx, "nope")
	if err != nil {
		t.Fatalf("FindDevice missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown device, got %#v", missing)
	}
}

func TestSaveDeviceOverwritesNameAndData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SaveDevice(t, store, "dev", "Old", "one")
	testsupport.SaveDevice(t, store, "dev", "New", "two")

	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected a single device, got %d", len(devices))
	}
	if devices[0].Name != "New" || devices[0].Data != "two" {
		t.Fatalf("expected overwritten device, got %#v", devices[0])
	}
}

func TestSaveDeviceRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	err := store.SaveDevice(context.Background(), devicestore.Device{Name: "x"})
	if !errors.Is(err, devicestore.ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
}

func TestRecordUploadUpsertsByPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SaveDevice(t, store, "dev", "Phone", "{}")

	first, err := store.RecordUpload(ctx, "dev", "/music/a.mp3", metadata.Metadata{Title: "A"})
	if err != nil {
		t.Fatalf("first RecordUpload failed: %v", err)
	}
	second, err := store.RecordUpload(ctx, "dev", "/music/a.mp3", metadata.Metadata{Title: "A (remaster)", TrackNumber: 4})
	if err != nil {
		t.Fatalf("second RecordUpload failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same file row, got %d and %d", first.ID, second.ID)
	}
	if first.MetadataID == second.MetadataID {
		t.Fatal("expected a fresh metadata row on re-upload")
	}

	files, err := store.Files(ctx, "dev")
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file row, got %d", len(files))
	}
	if files[0].MetadataID != second.MetadataID || files[0].Metadata.Title != "A (remaster)" || files[0].Metadata.TrackNumber != 4 {
		t.Fatalf("expected file to reference latest metadata, got %#v", files[0])
	}

	count, err := store.MetadataCount(ctx, "dev")
	if err != nil {
		t.Fatalf("MetadataCount failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two metadata rows, got %d", count)
	}
}

func TestRecordUploadScopesPathPerDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SaveDevice(t, store, "one", "Phone", "{}")
	testsupport.SaveDevice(t, store, "two", "Tablet", "{}")

	a, err := store.RecordUpload(ctx, "one", "/music/a.mp3", metadata.Metadata{})
	if err != nil {
		t.Fatalf("RecordUpload one failed: %v", err)
	}
	b, err := store.RecordUpload(ctx, "two", "/music/a.mp3", metadata.Metadata{})
	if err != nil {
		t.Fatalf("RecordUpload two failed: %v", err)
	}
	if a.ID == b.ID || a.MetadataID == b.MetadataID {
		t.Fatalf("expected independent rows per device, got %#v and %#v", a, b)
	}
}

func TestRecordUploadUnknownDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.RecordUpload(context.Background(), "ghost", "/music/a.mp3", metadata.Metadata{})
	if !errors.Is(err, devicestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordUploadStoresEmptyMetadataAsNull(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SaveDevice(t, store, "dev", "Phone", "{}")

	if _, err := store.RecordUpload(ctx, "dev", "/music/untagged.wav", metadata.Metadata{}); err != nil {
		t.Fatalf("RecordUpload failed: %v", err)
	}
	record, err := store.FileByPath(ctx, "dev", "/music/untagged.wav")
	if err != nil {
		t.Fatalf("FileByPath failed: %v", err)
	}
	if record == nil || !record.Metadata.IsEmpty() {
		t.Fatalf("expected empty metadata, got %#v", record)
	}

	missing, err := store.FileByPath(ctx, "dev", "/music/other.wav")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record for unknown path, got %#v, %v", missing, err)
	}
}

func TestForgetDeviceRemovesHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SaveDevice(t, store, "dev", "Phone", "{}")
	if _, err := store.RecordUpload(ctx, "dev", "/music/a.mp3", metadata.Metadata{Title: "A"}); err != nil {
		t.Fatalf("RecordUpload failed: %v", err)
	}

	if err := store.ForgetDevice(ctx, "dev"); err != nil {
		t.Fatalf("ForgetDevice failed: %v", err)
	}
	device, err := store.FindDevice(ctx, "dev")
	if err != nil || device != nil {
		t.Fatalf("expected device removed, got %#v, %v", device, err)
	}
	count, err := store.MetadataCount(ctx, "dev")
	if err != nil || count != 0 {
		t.Fatalf("expected metadata removed, got %d, %v", count, err)
	}

	if err := store.ForgetDevice(ctx, "dev"); !errors.Is(err, devicestore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second forget, got %v", err)
	}
}

func TestListDevicesCountsFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SaveDevice(t, store, "dev", "Phone", "{}")
	for _, p := range []string{"/a.mp3", "/b.mp3", "/a.mp3"} {
		if _, err := store.RecordUpload(ctx, "dev", p, metadata.Metadata{}); err != nil {
			t.Fatalf("RecordUpload %s failed: %v", p, err)
		}
	}

	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].FileCount != 2 {
		t.Fatalf("expected one device with two files, got %#v", devices)
	}
	if devices[0].LastUploadAt.IsZero() {
		t.Fatal("expected last upload time")
	}
}
