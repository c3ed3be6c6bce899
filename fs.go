package uvloop

import (
	"os"
	"time"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"golang.org/x/sys/unix"
)

// File is an open file descriptor. File operations run on the loop's
// thread pool and complete on the loop goroutine.
type File int

// Fd returns the descriptor.
func (f File) Fd() int { return int(f) }

// FileStat is the result of Stat and Fstat.
type FileStat struct {
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
	Mode    os.FileMode
	Uid     uint32
	Gid     uint32
}

// IsDir reports whether the stat describes a directory.
func (s FileStat) IsDir() bool { return s.Mode.IsDir() }

// IsRegular reports whether the stat describes a regular file.
func (s FileStat) IsRegular() bool { return s.Mode.IsRegular() }

func fileStat(st *uvcore.Stat) FileStat {
	return FileStat{
		Atime:   st.Atim,
		Mtime:   st.Mtim,
		Ctime:   st.Ctim,
		Dev:     st.Dev,
		Ino:     st.Ino,
		Nlink:   st.Nlink,
		Rdev:    st.Rdev,
		Size:    st.Size,
		Blksize: st.Blksize,
		Blocks:  st.Blocks,
		Mode:    fileMode(st.Mode),
		Uid:     st.Uid,
		Gid:     st.Gid,
	}
}

func fileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0o777)
	switch m & unix.S_IFMT {
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	case unix.S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	}
	if m&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if m&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if m&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}

// fsResult is what a completed request leaves behind once it is freed.
type fsResult struct {
	stat   uvcore.Stat
	result int64
}

func (r fsResult) err() error {
	if r.result < 0 {
		return codeError(int(r.result))
	}
	return nil
}

// fsIssue runs one file system request. fail receives failures detected
// before the request is started, cont the result of a started request.
func fsIssue(l *Loop, cont func(fsResult), fail func(error), start func(req *uvcore.FsReq) int) {
	if err := l.checkThread(); err != nil {
		l.fail(err, fail)
		return
	}
	req := uvcore.NewFsReq()
	var g reqGuard
	g.init(l, &req.Req, req.Free, cont)
	defer g.release()
	if rc := start(req); rc != uvcore.OK {
		l.fail(codeError(rc), fail)
		return
	}
	g.disarm()
}

func fsTrampoline(req *uvcore.FsReq) {
	l := loopOf(req.Loop())
	if l == nil {
		return
	}
	res := fsResult{result: req.Result}
	if req.Op == uvcore.FsTypeStat || req.Op == uvcore.FsTypeFstat {
		res.stat = req.Statbuf
	}
	uvcore.FsReqCleanup(req)
	v, ok := complete(l, req.Data, req.Free)
	if !ok {
		return
	}
	cont := v.(func(fsResult))
	l.invoke(func() { cont(res) })
}

// Open opens path with mode and the mode's default permission.
func Open(l *Loop, path string, mode OpenMode, onOpen func(File, error)) {
	OpenFile(l, path, mode, mode.DefaultPerm(), onOpen)
}

// OpenFile opens path with mode, creating files with perm.
func OpenFile(l *Loop, path string, mode OpenMode, perm os.FileMode, onOpen func(File, error)) {
	if onOpen == nil {
		onOpen = func(File, error) {}
	}
	fail := func(err error) { onOpen(-1, err) }
	if !mode.valid() {
		l.fail(ArgumentError("invalid open mode %d", int(mode)), fail)
		return
	}
	fsIssue(l,
		func(r fsResult) {
			if err := r.err(); err != nil {
				onOpen(-1, err)
				return
			}
			onOpen(File(r.result), nil)
		},
		fail,
		func(req *uvcore.FsReq) int {
			return uvcore.FsOpen(l.core, req, path, mode.Flags(), uint32(perm.Perm()), fsTrampoline)
		})
}

// Close closes f. onClose may be nil; the request is released either way.
func Close(l *Loop, f File, onClose func(error)) {
	if onClose == nil {
		onClose = func(err error) {
			if err != nil {
				if b := l.diag.limited(logCategoryClose); b != nil {
					b.Int("fd", int(f)).Err(err).Log("uvloop: file close failed")
				}
			}
		}
	}
	fsIssue(l,
		func(r fsResult) { onClose(r.err()) },
		onClose,
		func(req *uvcore.FsReq) int { return uvcore.FsClose(l.core, req, int(f), fsTrampoline) })
}

// Stat describes the file at path.
func Stat(l *Loop, path string, onStat func(FileStat, error)) {
	fail := func(err error) { onStat(FileStat{}, err) }
	fsIssue(l,
		func(r fsResult) {
			if err := r.err(); err != nil {
				fail(err)
				return
			}
			onStat(fileStat(&r.stat), nil)
		},
		fail,
		func(req *uvcore.FsReq) int { return uvcore.FsStat(l.core, req, path, fsTrampoline) })
}

// Fstat describes the open file f.
func Fstat(l *Loop, f File, onStat func(FileStat, error)) {
	fail := func(err error) { onStat(FileStat{}, err) }
	fsIssue(l,
		func(r fsResult) {
			if err := r.err(); err != nil {
				fail(err)
				return
			}
			onStat(fileStat(&r.stat), nil)
		},
		fail,
		func(req *uvcore.FsReq) int { return uvcore.FsFstat(l.core, req, int(f), fsTrampoline) })
}

// Unlink removes path.
func Unlink(l *Loop, path string, onUnlink func(error)) {
	if onUnlink == nil {
		onUnlink = nopErr
	}
	fsIssue(l,
		func(r fsResult) { onUnlink(r.err()) },
		onUnlink,
		func(req *uvcore.FsReq) int { return uvcore.FsUnlink(l.core, req, path, fsTrampoline) })
}

// Read reads up to size bytes at offset, or at the current position if
// offset is negative. The buffer is only valid during onRead; an empty
// buffer means end of file.
func Read(l *Loop, f File, size int, offset int64, onRead func(Buffer, error)) {
	fail := func(err error) { onRead(Buffer{}, err) }
	if size <= 0 {
		l.fail(ArgumentError("read size %d is not positive", size), fail)
		return
	}
	buf := l.buffers.get(size)
	done := false
	defer func() {
		if !done {
			l.buffers.put(buf)
		}
	}()
	fsIssue(l,
		func(r fsResult) {
			defer l.buffers.put(buf)
			if err := r.err(); err != nil {
				fail(err)
				return
			}
			onRead(Buffer{b: buf[:r.result]}, nil)
		},
		fail,
		func(req *uvcore.FsReq) int {
			rc := uvcore.FsRead(l.core, req, int(f), [][]byte{buf}, offset, fsTrampoline)
			done = rc == uvcore.OK
			return rc
		})
}

// Write writes data at offset, or at the current position if offset is
// negative, reporting the number of bytes written. data must not be
// modified until onWrite runs.
func Write(l *Loop, f File, data []byte, offset int64, onWrite func(int, error)) {
	if onWrite == nil {
		onWrite = func(int, error) {}
	}
	fail := func(err error) { onWrite(0, err) }
	fsIssue(l,
		func(r fsResult) {
			if err := r.err(); err != nil {
				fail(err)
				return
			}
			onWrite(int(r.result), nil)
		},
		fail,
		func(req *uvcore.FsReq) int {
			return uvcore.FsWrite(l.core, req, int(f), [][]byte{data}, offset, fsTrampoline)
		})
}
