package dnsmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Record is the previous-configuration snapshot captured before an apply.
// It is persisted before the OS is touched, so a crashed or killed session
// can still be restored by a later invocation.
type Record struct {
	Interface   string    `json:"interface"`
	PreviousDNS []string  `json:"previousDns"`
	Backend     string    `json:"backend"`
	CreatedAt   time.Time `json:"createdAt"`
}

// defaultStateDir returns the per-OS directory for the session record.
func defaultStateDir() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Application Support/dnschanger"
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMDATA"), "dnschanger")
	default:
		return "/var/lib/dnschanger"
	}
}

func (m *Manager) statePath() string {
	dir := m.stateDir
	if dir == "" {
		dir = defaultStateDir()
	}
	return filepath.Join(dir, "previous-dns.json")
}

// saveRecord persists the record, creating the state directory if needed.
func (m *Manager) saveRecord(rec *Record) error {
	rec.CreatedAt = time.Now()

	path := m.statePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// loadRecord reads the persisted record. Returns (nil, nil) when no record
// exists.
func (m *Manager) loadRecord() (*Record, error) {
	data, err := os.ReadFile(m.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &rec, nil
}

// clearRecord removes the persisted record after a successful restore.
func (m *Manager) clearRecord() error {
	err := os.Remove(m.statePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PendingRestore reports whether a previous session left a record behind,
// meaning DNS was changed and never restored.
func (m *Manager) PendingRestore() bool {
	rec, err := m.loadRecord()
	return err == nil && rec != nil
}
