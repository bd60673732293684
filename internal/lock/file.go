package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// FileLocker implements Locker with a kernel flock on <dir>/<name>.lock.
// The kernel drops the lock when the holding process exits, so a crashed
// run never leaves the lock behind. Next to it an owner marker
// <dir>/<name>.owner records who holds the lock; it is informational only.
type FileLocker struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

type marker struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func NewFileLocker(dir string, logger *zap.Logger) *FileLocker {
	return &FileLocker{dir: dir, logger: logger, now: time.Now}
}

func (l *FileLocker) lockPath(name string) string {
	return filepath.Join(l.dir, name+".lock")
}

func (l *FileLocker) markerPath(name string) string {
	return filepath.Join(l.dir, name+".owner")
}

func (l *FileLocker) TryAcquire(_ context.Context, name string) (Lease, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(l.lockPath(name))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %q: %w", name, err)
	}
	if !ok {
		if m, err := readMarker(l.markerPath(name)); err == nil {
			l.logger.Debug("lock held",
				zap.String("lock", name),
				zap.String("owner", m.Owner),
				zap.Int("pid", m.PID),
				zap.String("host", m.Host),
			)
		}
		return nil, fmt.Errorf("lock %q: %w", name, domain.ErrConcurrentRun)
	}

	host, _ := os.Hostname()
	m := marker{
		Owner:      uuid.NewString(),
		PID:        os.Getpid(),
		Host:       host,
		AcquiredAt: l.now().UTC(),
	}
	lease := &fileLease{fl: fl, marker: l.markerPath(name), owner: m.Owner}
	if err := writeMarker(lease.marker, m); err != nil {
		l.logger.Warn("failed to write lock owner marker", zap.String("lock", name), zap.Error(err))
	}
	return lease, nil
}

func readMarker(path string) (marker, error) {
	var m marker
	raw, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(raw, &m)
	return m, err
}

// writeMarker replaces the marker atomically so readers never see a
// half-written file.
func writeMarker(path string, m marker) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + "." + m.Owner
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

type fileLease struct {
	fl     *flock.Flock
	marker string
	owner  string

	once sync.Once
	err  error
}

func (f *fileLease) Owner() string { return f.owner }

// Release removes the owner marker if it still names this lease, then drops
// the flock. The lock file itself stays so every process locks the same inode.
func (f *fileLease) Release(_ context.Context) error {
	f.once.Do(func() {
		if m, err := readMarker(f.marker); err == nil && m.Owner == f.owner {
			if err := os.Remove(f.marker); err != nil && !errors.Is(err, os.ErrNotExist) {
				f.err = fmt.Errorf("remove lock marker: %w", err)
			}
		}
		if err := f.fl.Unlock(); err != nil {
			f.err = errors.Join(f.err, fmt.Errorf("unlock: %w", err))
		}
	})
	return f.err
}
