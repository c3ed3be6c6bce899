package uvcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFs_SyncRoundTrip(t *testing.T) {
	l := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "sync.txt")
	req := NewFsReq()
	defer req.Free()

	fd := FsOpen(l, req, path, unix.O_CREAT|unix.O_TRUNC|unix.O_WRONLY, 0o644, nil)
	require.GreaterOrEqual(t, fd, 0)
	assert.Equal(t, FsTypeOpen, req.Op)
	assert.Equal(t, 5, FsWrite(l, req, fd, [][]byte{[]byte("he"), []byte("llo")}, -1, nil))
	assert.Equal(t, OK, FsClose(l, req, fd, nil))

	fd = FsOpen(l, req, path, unix.O_RDONLY, 0, nil)
	require.GreaterOrEqual(t, fd, 0)
	buf := make([]byte, 16)
	assert.Equal(t, 3, FsRead(l, req, fd, [][]byte{buf}, 2, nil))
	assert.Equal(t, "llo", string(buf[:3]))
	assert.Equal(t, OK, FsFstat(l, req, fd, nil))
	assert.Equal(t, int64(5), req.Statbuf.Size)
	assert.Equal(t, OK, FsClose(l, req, fd, nil))

	assert.Equal(t, OK, FsUnlink(l, req, path, nil))
	assert.Equal(t, ENOENT, FsStat(l, req, path, nil))
	assert.Equal(t, int64(ENOENT), req.Result)
}

func TestFs_AsyncStat(t *testing.T) {
	l := newTestLoop(t)
	path := filepath.Join(t.TempDir(), "async.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	req := NewFsReq()
	calls := 0
	require.Equal(t, OK, FsStat(l, req, path, func(r *FsReq) {
		calls++
		assert.Same(t, req, r)
		assert.Equal(t, FsTypeStat, r.Op)
		assert.Equal(t, int64(0), r.Result)
		assert.Equal(t, int64(10), r.Statbuf.Size)
		assert.False(t, r.Statbuf.Mtim.IsZero())
	}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, EBUSY, FsStat(l, req, path, nil))
	runFor(t, l, 5*time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, OK, req.Free())
}

func TestFs_OpenMissing(t *testing.T) {
	l := newTestLoop(t)
	req := NewFsReq()
	var result int64
	require.Equal(t, OK, FsOpen(l, req, filepath.Join(t.TempDir(), "nope"), unix.O_RDONLY, 0, func(r *FsReq) {
		result = r.Result
	}))
	runFor(t, l, 5*time.Second)
	assert.Equal(t, int64(ENOENT), result)
	assert.Equal(t, OK, req.Free())
}
