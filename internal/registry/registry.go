// Package registry implements the on-disk catalog of daemon and session
// records under <home>/.agent-worker/: the daemon.json liveness record,
// one sessions/<id>.json file per session, and the default-session
// pointer file.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("registry: session not found")
	ErrAmbiguous = errors.New("registry: id prefix matches more than one session")
)

// DaemonRecord mirrors daemon.json.
type DaemonRecord struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
	Token     string    `json:"token,omitempty"`
}

// ScheduleConfig mirrors the data model's ScheduleConfig.
type ScheduleConfig struct {
	Wakeup string `json:"wakeup"`
	Prompt string `json:"prompt,omitempty"`
}

// SessionInfo is the per-session registry record.
type SessionInfo struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Workflow    string          `json:"workflow,omitempty"`
	Tag         string          `json:"tag,omitempty"`
	ContextDir  string          `json:"contextDir,omitempty"`
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Backend     string          `json:"backend,omitempty"`
	Address     string          `json:"address,omitempty"`
	PID         int             `json:"pid"`
	CreatedAt   time.Time       `json:"createdAt"`
	IdleTimeout *int64          `json:"idleTimeout,omitempty"` // ms, nil = default
	Schedule    *ScheduleConfig `json:"schedule,omitempty"`
}

// Registry owns the directory layout under home. One process (the daemon
// that created the records) is the writer; other processes only read.
type Registry struct {
	mu   sync.Mutex
	home string
}

// New ensures the directory layout exists under home and returns a
// Registry rooted there.
func New(home string) (*Registry, error) {
	sessionsDir := filepath.Join(home, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create sessions dir: %w", err)
	}
	return &Registry{home: home}, nil
}

func (r *Registry) daemonPath() string    { return filepath.Join(r.home, "daemon.json") }
func (r *Registry) defaultPath() string   { return filepath.Join(r.home, "default") }
func (r *Registry) sessionsDir() string   { return filepath.Join(r.home, "sessions") }
func (r *Registry) sessionPath(id string) string {
	return filepath.Join(r.sessionsDir(), id+".json")
}

// WriteDaemonRecord writes daemon.json atomically.
func (r *Registry) WriteDaemonRecord(rec DaemonRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.home, r.daemonPath(), data)
}

// RemoveDaemonRecord deletes daemon.json; unlink failures are swallowed
// per the error-handling design's "graceful shutdown is best-effort".
func (r *Registry) RemoveDaemonRecord() {
	_ = os.Remove(r.daemonPath())
}

// ReadDaemonRecord reads the live daemon record, if any.
func (r *Registry) ReadDaemonRecord() (*DaemonRecord, error) {
	data, err := os.ReadFile(r.daemonPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec DaemonRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IsRunning checks liveness via signal 0; on ESRCH it unregisters the
// session, removes its ready file, and returns false.
func (r *Registry) IsRunning(info SessionInfo) bool {
	if info.PID <= 0 {
		return false
	}
	err := syscall.Kill(info.PID, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) {
		_ = r.Unregister(info.ID)
		_ = os.Remove(filepath.Join(r.sessionsDir(), info.ID+".ready"))
	}
	return false
}

// Register writes the session file and, if no default exists yet, makes
// this session the default.
func (r *Registry) Register(info SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(r.sessionsDir(), r.sessionPath(info.ID), data); err != nil {
		return err
	}

	if _, err := os.ReadFile(r.defaultPath()); os.IsNotExist(err) {
		_ = atomicWrite(r.home, r.defaultPath(), []byte(info.ID))
	}
	return nil
}

// Unregister locates the session by exact id, then by name, then by a
// unique id-prefix, and deletes its file. If it was the default, another
// remaining session becomes the new default, or the default file is
// removed if none remain.
func (r *Registry) Unregister(idOrName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := r.lookupLocked(idOrName)
	if err != nil {
		return err
	}

	_ = os.Remove(r.sessionPath(info.ID))

	defaultID, _ := r.readDefaultLocked()
	if defaultID == info.ID {
		remaining, _ := r.listLocked()
		if len(remaining) > 0 {
			_ = atomicWrite(r.home, r.defaultPath(), []byte(remaining[0].ID))
		} else {
			_ = os.Remove(r.defaultPath())
		}
	}
	return nil
}

// Get looks up a session by exact id, by name, or by unique id-prefix.
func (r *Registry) Get(idOrName string) (SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(idOrName)
}

func (r *Registry) lookupLocked(idOrName string) (SessionInfo, error) {
	if data, err := os.ReadFile(r.sessionPath(idOrName)); err == nil {
		var info SessionInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return SessionInfo{}, err
		}
		return info, nil
	}

	all, err := r.listLocked()
	if err != nil {
		return SessionInfo{}, err
	}

	for _, info := range all {
		if info.Name == idOrName {
			return info, nil
		}
	}

	var matches []SessionInfo
	for _, info := range all {
		if strings.HasPrefix(info.ID, idOrName) {
			matches = append(matches, info)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return SessionInfo{}, ErrNotFound
	default:
		return SessionInfo{}, ErrAmbiguous
	}
}

// List returns every registered session.
func (r *Registry) List() ([]SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() ([]SessionInfo, error) {
	entries, err := os.ReadDir(r.sessionsDir())
	if err != nil {
		return nil, err
	}
	var out []SessionInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.sessionsDir(), e.Name()))
		if err != nil {
			continue
		}
		var info SessionInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Registry) readDefaultLocked() (string, error) {
	data, err := os.ReadFile(r.defaultPath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WaitForReady polls every 50ms, up to timeout, for the session's ready
// file (<sessionsDir>/<id>.ready) to appear.
func (r *Registry) WaitForReady(idOrName string, timeout time.Duration) error {
	info, err := r.Get(idOrName)
	if err != nil {
		return err
	}
	readyPath := filepath.Join(r.sessionsDir(), info.ID+".ready")

	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(readyPath); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("registry: session %s not ready after %s", idOrName, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// NewSessionID mints a session id. Kept distinct from auto-generated
// display names (GenerateAutoName) — this is the opaque registry key.
func NewSessionID() string {
	return uuid.NewString()
}

const autoNameAlphabet = "abcdefghijklmnopqrstuvwxyz"

// GenerateAutoName yields the first unused name in the sequence
// a0..a9, b0..z9 (260 slots), falling back to "agent-<6 hex>" once
// exhausted.
func GenerateAutoName(taken map[string]bool) string {
	for _, letter := range autoNameAlphabet {
		for digit := 0; digit <= 9; digit++ {
			name := fmt.Sprintf("%c%d", letter, digit)
			if !taken[name] {
				return name
			}
		}
	}
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return "agent-" + hex.EncodeToString(buf)
}

func atomicWrite(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "registry-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
