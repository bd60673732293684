package lock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
)

func TestFileLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	l := NewFileLocker(t.TempDir(), zap.NewNop())

	lease, err := l.TryAcquire(ctx, "deploy")
	require.NoError(t, err)
	assert.NotEmpty(t, lease.Owner())

	_, err = l.TryAcquire(ctx, "deploy")
	assert.ErrorIs(t, err, domain.ErrConcurrentRun)

	other, err := l.TryAcquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx), "second release is a no-op")

	again, err := l.TryAcquire(ctx, "deploy")
	require.NoError(t, err)
	assert.NotEqual(t, lease.Owner(), again.Owner())
	require.NoError(t, again.Release(ctx))
}

func TestFileLocker_SeparateLockersShareTheLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := NewFileLocker(dir, zap.NewNop())
	b := NewFileLocker(dir, zap.NewNop())

	lease, err := a.TryAcquire(ctx, "deploy")
	require.NoError(t, err)
	_, err = b.TryAcquire(ctx, "deploy")
	assert.ErrorIs(t, err, domain.ErrConcurrentRun)

	require.NoError(t, lease.Release(ctx))
	lease, err = b.TryAcquire(ctx, "deploy")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestFileLocker_OneWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		leases  = make(chan Lease, 8)
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := NewFileLocker(dir, zap.NewNop()).TryAcquire(ctx, "deploy")
			if err == nil {
				winners.Add(1)
				leases <- lease
				return
			}
			assert.ErrorIs(t, err, domain.ErrConcurrentRun)
		}()
	}
	wg.Wait()
	close(leases)

	assert.Equal(t, int32(1), winners.Load())
	for lease := range leases {
		require.NoError(t, lease.Release(ctx))
	}
}

func TestFileLocker_MarkerContents(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLocker(dir, zap.NewNop())

	lease, err := l.TryAcquire(context.Background(), "deploy")
	require.NoError(t, err)

	m, err := readMarker(filepath.Join(dir, "deploy.owner"))
	require.NoError(t, err)
	assert.Equal(t, lease.Owner(), m.Owner)
	assert.Equal(t, os.Getpid(), m.PID)

	require.NoError(t, lease.Release(context.Background()))
	_, err = os.Stat(filepath.Join(dir, "deploy.owner"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileLocker_LeftoversOfDeadHolderDoNotBlock(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.lock"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.owner"), []byte(`{"owner":"ghost","pid":1}`), 0o644))

	l := NewFileLocker(dir, zap.NewNop())
	lease, err := l.TryAcquire(context.Background(), "deploy")
	require.NoError(t, err)
	defer lease.Release(context.Background())

	m, err := readMarker(filepath.Join(dir, "deploy.owner"))
	require.NoError(t, err)
	assert.Equal(t, lease.Owner(), m.Owner)
}

func TestFileLocker_ReleaseLeavesForeignMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.owner")
	l := NewFileLocker(dir, zap.NewNop())

	lease, err := l.TryAcquire(context.Background(), "deploy")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"owner":"someone-else"}`), 0o644))
	require.NoError(t, lease.Release(context.Background()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "someone-else")
}
