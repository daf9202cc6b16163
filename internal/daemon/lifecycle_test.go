package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquirePIDFile_WritesAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trakd.pid")

	info, err := AcquirePIDFile(path, 8787, "")
	if err != nil {
		t.Fatalf("AcquirePIDFile: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}

	read := ReadPIDFile(path)
	if read == nil || read.Port != 8787 {
		t.Fatalf("ReadPIDFile = %+v, want port 8787", read)
	}
}

func TestAcquirePIDFile_RejectsWhenOwnerLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trakd.pid")

	if _, err := AcquirePIDFile(path, 8787, ""); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err := AcquirePIDFile(path, 9000, "")
	if err == nil {
		t.Fatal("expected second acquire to fail while first owner is live")
	}
	lockErr, ok := err.(*LockError)
	if !ok {
		t.Fatalf("error type = %T, want *LockError", err)
	}
	if lockErr.Owner == nil || lockErr.Owner.Port != 8787 {
		t.Errorf("Owner = %+v, want port 8787", lockErr.Owner)
	}
}

func TestAcquirePIDFile_RemovesStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trakd.pid")

	// A PID that is very unlikely to be alive.
	stale := PIDInfo{PID: 999999, Port: 1, StartedAt: "2020-01-01T00:00:00Z"}
	data, _ := json.Marshal(stale)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("seed stale pid file: %v", err)
	}

	info, err := AcquirePIDFile(path, 8787, "")
	if err != nil {
		t.Fatalf("AcquirePIDFile over stale lock: %v", err)
	}
	if info.Port != 8787 {
		t.Errorf("Port = %d, want 8787", info.Port)
	}
}

func TestReleasePIDFile_MissingIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created.pid")
	if err := ReleasePIDFile(path); err != nil {
		t.Errorf("ReleasePIDFile on missing file: %v", err)
	}
}

