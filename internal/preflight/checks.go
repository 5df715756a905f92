package preflight

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tunedrop/internal/devicestore"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies that path is a regular file the process can read.
func CheckReadableFile(path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: path, Detail: "does not exist"}
		}
		return Result{Name: path, Detail: fmt.Sprintf("stat: %v", err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: path, Detail: "not a regular file"}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: path, Detail: fmt.Sprintf("not readable: %v", err)}
	}
	return Result{Name: path, Passed: true, Detail: fmt.Sprintf("%d bytes", info.Size())}
}

// CheckListenAddr verifies that the pairing listener address can be bound.
func CheckListenAddr(ctx context.Context, addr string) Result {
	const name = "Pairing listener"
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	bound := listener.Addr().String()
	_ = listener.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (bind ok)", bound)}
}

// CheckDatabase opens the device database, applying migrations, and reports
// the schema version and number of saved devices.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Device database"
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := devicestore.Open(checkCtx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()

	version, err := store.SchemaVersion(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: schema version: %v)", path, err)}
	}
	devices, err := store.ListDevices(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: list devices: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema v%d, %d saved devices)", path, version, len(devices))}
}
