package lock

import (
	"testing"
	"time"

	"github.com/lvdashuaibi/onevote/config"
)

func TestLocalLockExclusive(t *testing.T) {
	l := NewLocalLock()

	ok, err := l.AcquireLock("leader", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first AcquireLock() = %v, %v", ok, err)
	}
	ok, err = l.AcquireLock("leader", time.Minute)
	if err != nil || ok {
		t.Errorf("second AcquireLock() = %v, %v, want false", ok, err)
	}

	if err := l.ReleaseLock("leader"); err != nil {
		t.Fatalf("ReleaseLock() error = %v", err)
	}
	if ok, _ := l.AcquireLock("leader", time.Minute); !ok {
		t.Error("AcquireLock() after release should succeed")
	}
}

func TestLocalLockExpires(t *testing.T) {
	l := NewLocalLock()
	now := time.Now()
	l.now = func() time.Time { return now }

	if ok, _ := l.AcquireLock("leader", time.Second); !ok {
		t.Fatal("AcquireLock() failed")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := l.AcquireLock("leader", time.Second); !ok {
		t.Error("expired lock was not reacquired")
	}
}

func TestLocalLockRefresh(t *testing.T) {
	l := NewLocalLock()

	if _, err := l.RefreshLock("missing", time.Second); err == nil {
		t.Error("RefreshLock() on unheld lock should fail")
	}
	l.AcquireLock("leader", time.Second)
	if ok, err := l.RefreshLock("leader", time.Minute); err != nil || !ok {
		t.Errorf("RefreshLock() = %v, %v", ok, err)
	}

	l.ReleaseAllLocks()
	if ok, _ := l.AcquireLock("leader", time.Second); !ok {
		t.Error("ReleaseAllLocks() left the lock held")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{Lock: config.LockConfig{Backend: "none"}}
	l, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New(none) error = %v", err)
	}
	if _, ok := l.(*LocalLock); !ok {
		t.Errorf("New(none) = %T, want *LocalLock", l)
	}

	cfg.Lock.Backend = "zookeeper"
	if _, err := New(cfg, nil); err == nil {
		t.Error("New(unknown) should fail")
	}
}

func TestLeaseTTL(t *testing.T) {
	if got := leaseTTL(time.Second); got != minLeaseTTL {
		t.Errorf("leaseTTL(1s) = %d, want %d", got, minLeaseTTL)
	}
	if got := leaseTTL(30 * time.Second); got != 30 {
		t.Errorf("leaseTTL(30s) = %d, want 30", got)
	}
}
