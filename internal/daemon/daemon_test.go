package daemon_test

import (
	"context"
	"testing"

	"podscribe/internal/daemon"
	"podscribe/internal/notifications"
	"podscribe/internal/testsupport"
	"podscribe/internal/workflow"
)

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManagerWithClients(cfg, store, nil, nil, workflow.Clients{})
	d, err := daemon.New(cfg, store, manager, notifications.NewService(cfg), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManagerWithClients(cfg, store, nil, nil, workflow.Clients{})

	first, err := daemon.New(cfg, store, manager, notifications.NewService(cfg), nil)
	if err != nil {
		t.Fatalf("first instance: %v", err)
	}
	defer first.Close()

	if _, err := daemon.New(cfg, store, manager, notifications.NewService(cfg), nil); err == nil {
		t.Fatal("second instance should fail while the lock is held")
	}
}

func TestStartStopStatus(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("double Start should fail")
	}

	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running after Start")
	}
	if status.DatabasePath == "" {
		t.Fatal("status should carry the database path")
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running after Stop")
	}
}
