package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunedrop/internal/devicestore"
	"tunedrop/internal/emulator"
	"tunedrop/internal/pairing"
	"tunedrop/internal/services"
	"tunedrop/internal/testsupport"
	"tunedrop/internal/workflow"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("TUNEDROP_NTFY_TOPIC", "")
	t.Setenv("TUNEDROP_ADVERTISE_HOST", "")

	env := &cliTestEnv{
		configPath: filepath.Join(base, "tunedrop.toml"),
		dataDir:    filepath.Join(base, "data"),
		baseDir:    base,
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[pairing]
listen_addr = "127.0.0.1:0"
advertise_host = "127.0.0.1"
timeout_seconds = 5

[transfer]
retry_backoff_ms = 10

[logging]
level = "error"
`, env.dataDir, filepath.Join(base, "logs"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// saveEmulatedDevice stores resumable credentials for peer in the env's database.
func saveEmulatedDevice(t *testing.T, env *cliTestEnv, peer *emulator.Peer, name string) {
	t.Helper()
	token, err := peer.IssueToken()
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	push := peer.PushToken()
	data, err := pairing.Credentials{
		DeviceID:   peer.DeviceID(),
		DeviceName: name,
		URLLAN:     peer.URL(),
		Token:      token,
		PushToken:  &push,
		Version:    pairing.ProtocolVersion,
	}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	store, err := devicestore.Open(context.Background(), filepath.Join(env.dataDir, "library.db"))
	if err != nil {
		t.Fatalf("devicestore.Open: %v", err)
	}
	defer store.Close()
	if err := store.SaveDevice(context.Background(), devicestore.Device{ID: peer.DeviceID(), Name: name, Data: data}); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}
}

func startEmulator(t *testing.T) *emulator.Peer {
	t.Helper()
	peer, err := emulator.New(emulator.Options{DeviceID: "emu-1", DeviceName: "Test Phone", RequestSave: true})
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}
	if err := peer.Start(context.Background()); err != nil {
		t.Fatalf("emulator start: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })
	return peer
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, filepath.Join(env.dataDir, "library.db"))
	requireContains(t, out, "Upload concurrency")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	requireContains(t, out, "Pairing listen")
	requireContains(t, out, "advertise_host")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestDevicesListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"devices", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("devices list: %v", err)
	}
	requireContains(t, out, "No saved devices")
}

func TestDevicesListAndForget(t *testing.T) {
	env := setupCLITestEnv(t)
	peer := startEmulator(t)
	saveEmulatedDevice(t, env, peer, "Test Phone")

	out, _, err := runCLI(t, []string{"devices", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("devices list: %v", err)
	}
	requireContains(t, out, "emu-1")
	requireContains(t, out, "Test Phone")
	requireContains(t, out, "yes")

	out, _, err = runCLI(t, []string{"devices", "forget", "Test Phone"}, env.configPath)
	if err != nil {
		t.Fatalf("devices forget: %v", err)
	}
	requireContains(t, out, "Forgot Test Phone (emu-1)")

	out, _, err = runCLI(t, []string{"devices", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("devices list: %v", err)
	}
	requireContains(t, out, "No saved devices")
}

func TestDevicesForgetUnknown(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"devices", "forget", "ghost"}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if exitCode(err) != services.ExitUsage {
		t.Fatalf("exit code = %d, want %d", exitCode(err), services.ExitUsage)
	}
}

func TestSendResumesSavedDevice(t *testing.T) {
	env := setupCLITestEnv(t)
	peer := startEmulator(t)
	saveEmulatedDevice(t, env, peer, "Test Phone")

	track := testsupport.WriteTrack(t, t.TempDir(), "song.mp3", 4096)

	out, _, err := runCLI(t, []string{"send", "--device", "emu-1", "--no-progress", track}, env.configPath)
	if err != nil {
		t.Fatalf("send: %v\n%s", err, out)
	}
	requireContains(t, out, "Reconnected to Test Phone")
	requireContains(t, out, "1/1 accepted")
	if len(peer.Uploads()) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(peer.Uploads()))
	}

	out, _, err = runCLI(t, []string{"devices", "files", "emu-1"}, env.configPath)
	if err != nil {
		t.Fatalf("devices files: %v", err)
	}
	requireContains(t, out, "song.mp3")
}

func TestSendReportsPartialUpload(t *testing.T) {
	env := setupCLITestEnv(t)
	peer := startEmulator(t)
	saveEmulatedDevice(t, env, peer, "Test Phone")

	dir := t.TempDir()
	track := testsupport.WriteTrack(t, dir, "song.mp3", 4096)
	missing := filepath.Join(dir, "missing.mp3")

	out, _, err := runCLI(t, []string{"send", "-d", "Test Phone", "--no-progress", track, missing}, env.configPath)
	if err == nil {
		t.Fatal("expected partial upload error")
	}
	if exitCode(err) != services.ExitPartialUpload {
		t.Fatalf("exit code = %d, want %d", exitCode(err), services.ExitPartialUpload)
	}
	requireContains(t, out, "1/2 accepted")
}

func TestSendDirectoryRequiresRecursive(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"send", t.TempDir()}, env.configPath)
	if err == nil || exitCode(err) != services.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestExpandInputsRecursive(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.flac", "a.mp3", "notes.txt", filepath.Join(".hidden", "c.mp3")} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := expandInputs([]string{dir}, true)
	if err != nil {
		t.Fatalf("expandInputs: %v", err)
	}
	want := []string{filepath.Join(dir, "a.mp3"), filepath.Join(dir, "b.flac")}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}

	if _, err := expandInputs(nil, false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for no args, got %v", err)
	}
}

func TestRenderQR(t *testing.T) {
	qr, err := renderQR("ws://127.0.0.1:4000/pair?code=123456&v=1")
	if err != nil {
		t.Fatalf("renderQR: %v", err)
	}
	if len(strings.Split(strings.TrimSpace(qr), "\n")) < 10 {
		t.Fatalf("unexpectedly small qr code:\n%s", qr)
	}
}

func TestDoctorPasses(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Device database")
	requireContains(t, out, "Data directory")
}

func TestExitCodeMapping(t *testing.T) {
	if got := exitCode(&partialError{notAccepted: 1, total: 3}); got != services.ExitPartialUpload {
		t.Fatalf("partial exit code = %d", got)
	}
	if got := exitCode(services.Wrap(services.ErrTimeout, "pairing", "await peer", "", nil)); got != services.ExitPairing {
		t.Fatalf("timeout exit code = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != services.ExitFailure {
		t.Fatalf("generic exit code = %d", got)
	}
}

func TestPrintReportFlagsUnsavedDevice(t *testing.T) {
	saveErr := services.Wrap(services.ErrStore, "save device", "write", "", errors.New("disk full"))
	report := &workflow.Report{
		DeviceID:      "emu-1",
		DeviceName:    "Test Phone",
		Resumable:     true,
		DeviceSaveErr: saveErr,
		Files:         []workflow.FileReport{{Path: "/music/a.mp3", Status: workflow.StatusUploadedNotRecorded, Err: saveErr}},
	}

	var out bytes.Buffer
	printReport(&out, report)
	requireContains(t, out.String(), "Test Phone could not be saved")
	requireContains(t, out.String(), "disk full")
	if strings.Contains(out.String(), "did not ask to be saved") {
		t.Fatalf("unexpected resumability hint:\n%s", out.String())
	}
	if exitCode(report.DeviceSaveErr) != services.ExitStore {
		t.Fatalf("exit code = %d, want %d", exitCode(report.DeviceSaveErr), services.ExitStore)
	}
}
