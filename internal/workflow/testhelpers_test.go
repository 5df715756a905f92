package workflow_test

import (
	"context"
	"sync"
	"testing"

	"tunedrop/internal/config"
	"tunedrop/internal/devicestore"
	"tunedrop/internal/emulator"
	"tunedrop/internal/notifications"
	"tunedrop/internal/testsupport"
	"tunedrop/internal/transfer"
	"tunedrop/internal/workflow"
)

// peerPresenter joins the pairing with the emulator as soon as a code is shown.
type peerPresenter struct {
	t    *testing.T
	peer *emulator.Peer

	mu          sync.Mutex
	pairings    int
	connections []bool
	onConnected func()
}

func (p *peerPresenter) PairingStarted(_ string, descriptor string) {
	p.mu.Lock()
	p.pairings++
	p.mu.Unlock()
	if p.peer == nil {
		return
	}
	go func() {
		if err := p.peer.Pair(context.Background(), descriptor); err != nil {
			p.t.Logf("emulator pair: %v", err)
		}
	}()
}

func (p *peerPresenter) Connected(_ string, resumed bool) {
	p.mu.Lock()
	p.connections = append(p.connections, resumed)
	hook := p.onConnected
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (p *peerPresenter) pairingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pairings
}

type recordingNotifier struct {
	mu        sync.Mutex
	paired    []string
	summaries []notifications.RunSummary
	errors    []error
}

func (n *recordingNotifier) NotifyPaired(_ context.Context, deviceName string, _ bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paired = append(n.paired, deviceName)
	return nil
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, summary notifications.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, err)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

// startHookProgress runs hook when the first upload starts.
type startHookProgress struct {
	once sync.Once
	hook func()
}

func (p *startHookProgress) Start(string, int64) transfer.ProgressTracker {
	p.once.Do(p.hook)
	return nopTracker{}
}

type nopTracker struct{}

func (nopTracker) Write(b []byte) (int, error) { return len(b), nil }
func (nopTracker) Finish(error)                {}

type harness struct {
	cfg       *config.Config
	store     *devicestore.Store
	peer      *emulator.Peer
	presenter *peerPresenter
	notifier  *recordingNotifier
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	peer, err := emulator.New(emulator.Options{DeviceID: "emu-1", DeviceName: "Emulated Phone", RequestSave: true})
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}
	if err := peer.Start(context.Background()); err != nil {
		t.Fatalf("emulator start: %v", err)
	}
	t.Cleanup(func() { _ = peer.Close() })

	return &harness{
		cfg:       cfg,
		store:     store,
		peer:      peer,
		presenter: &peerPresenter{t: t, peer: peer},
		notifier:  &recordingNotifier{},
	}
}

func (h *harness) orchestrator(extra ...workflow.Option) *workflow.Orchestrator {
	opts := []workflow.Option{workflow.WithPresenter(h.presenter), workflow.WithNotifier(h.notifier)}
	opts = append(opts, extra...)
	return workflow.New(h.cfg, h.store, nil, opts...)
}
