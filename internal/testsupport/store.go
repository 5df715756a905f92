package testsupport

import (
	"context"
	"testing"

	"tunedrop/internal/config"
	"tunedrop/internal/devicestore"
)

// MustOpenStore opens a devicestore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *devicestore.Store {
	t.Helper()

	store, err := devicestore.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("devicestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveDevice stores a device for tests using the provided store.
func SaveDevice(t testing.TB, store *devicestore.Store, id, name, data string) devicestore.Device {
	t.Helper()

	device := devicestore.Device{ID: id, Name: name, Data: data}
	if err := store.SaveDevice(context.Background(), device); err != nil {
		t.Fatalf("store.SaveDevice: %v", err)
	}
	return device
}
