package uvcore

import (
	"time"

	"golang.org/x/sys/unix"
)

// FsType identifies the operation of a file system request.
type FsType int

const (
	FsTypeUnknown FsType = iota
	FsTypeOpen
	FsTypeClose
	FsTypeRead
	FsTypeWrite
	FsTypeStat
	FsTypeFstat
	FsTypeUnlink
)

// FsCb is called on the loop when a file system request completes.
type FsCb func(req *FsReq)

// Stat mirrors struct stat.
type Stat struct {
	Atim    time.Time
	Mtim    time.Time
	Ctim    time.Time
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint64
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Size    int64
	Blksize int64
	Blocks  int64
}

// FsReq is a file system request. Result holds the operation's return
// value: a file descriptor, a byte count, zero, or a negative status.
type FsReq struct {
	Req
	loop    *Loop
	cb      FsCb
	Path    string
	Bufs    [][]byte
	Statbuf Stat
	work    work
	Result  int64
	Offset  int64
	File    int
	Flags   int
	Mode    uint32
	Op      FsType
}

// Loop returns the loop the request was issued on.
func (r *FsReq) Loop() *Loop { return r.loop }

// Cancel cancels a queued request, see WorkReq.Cancel.
func (r *FsReq) Cancel() int {
	if !r.active {
		return EINVAL
	}
	return r.loop.pool.cancel(&r.work)
}

// FsReqCleanup drops the references a completed request holds.
func FsReqCleanup(req *FsReq) {
	req.Path = ""
	req.Bufs = nil
}

// FsOpen opens path. With a nil cb the call is synchronous and returns the
// descriptor or a negative status.
func FsOpen(l *Loop, req *FsReq, path string, flags int, mode uint32, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeOpen); rc != OK {
		return rc
	}
	req.Path, req.Flags, req.Mode = path, flags, mode
	return l.fsSubmit(req, cb, func() int64 {
		for {
			fd, err := unix.Open(path, flags|unix.O_CLOEXEC, mode)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return int64(status(err))
			}
			return int64(fd)
		}
	})
}

// FsClose closes file.
func FsClose(l *Loop, req *FsReq, file int, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeClose); rc != OK {
		return rc
	}
	req.File = file
	return l.fsSubmit(req, cb, func() int64 {
		return int64(status(unix.Close(file)))
	})
}

// FsRead reads into bufs at offset, or at the current position when offset
// is negative. Result is the byte count, zero at end of file.
func FsRead(l *Loop, req *FsReq, file int, bufs [][]byte, offset int64, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeRead); rc != OK {
		return rc
	}
	req.File, req.Bufs, req.Offset = file, bufs, offset
	return l.fsSubmit(req, cb, func() int64 {
		for {
			var n int
			var err error
			switch {
			case len(bufs) == 1 && offset < 0:
				n, err = unix.Read(file, bufs[0])
			case len(bufs) == 1:
				n, err = unix.Pread(file, bufs[0], offset)
			case offset < 0:
				n, err = unix.Readv(file, bufs)
			default:
				n, err = unix.Preadv(file, bufs, offset)
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return int64(status(err))
			}
			return int64(n)
		}
	})
}

// FsWrite writes bufs at offset, or at the current position when offset is
// negative. Result is the byte count, which may be short.
func FsWrite(l *Loop, req *FsReq, file int, bufs [][]byte, offset int64, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeWrite); rc != OK {
		return rc
	}
	req.File, req.Bufs, req.Offset = file, bufs, offset
	return l.fsSubmit(req, cb, func() int64 {
		for {
			var n int
			var err error
			switch {
			case len(bufs) == 1 && offset < 0:
				n, err = unix.Write(file, bufs[0])
			case len(bufs) == 1:
				n, err = unix.Pwrite(file, bufs[0], offset)
			case offset < 0:
				n, err = unix.Writev(file, bufs)
			default:
				n, err = unix.Pwritev(file, bufs, offset)
			}
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return int64(status(err))
			}
			return int64(n)
		}
	})
}

// FsStat stats path into req.Statbuf.
func FsStat(l *Loop, req *FsReq, path string, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeStat); rc != OK {
		return rc
	}
	req.Path = path
	return l.fsSubmit(req, cb, func() int64 {
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			return int64(status(err))
		}
		req.Statbuf = convertStat(&st)
		return 0
	})
}

// FsFstat stats an open descriptor into req.Statbuf.
func FsFstat(l *Loop, req *FsReq, file int, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeFstat); rc != OK {
		return rc
	}
	req.File = file
	return l.fsSubmit(req, cb, func() int64 {
		var st unix.Stat_t
		if err := unix.Fstat(file, &st); err != nil {
			return int64(status(err))
		}
		req.Statbuf = convertStat(&st)
		return 0
	})
}

// FsUnlink removes path.
func FsUnlink(l *Loop, req *FsReq, path string, cb FsCb) int {
	if rc := fsInit(l, req, FsTypeUnlink); rc != OK {
		return rc
	}
	req.Path = path
	return l.fsSubmit(req, cb, func() int64 {
		return int64(status(unix.Unlink(path)))
	})
}

func fsInit(l *Loop, req *FsReq, typ FsType) int {
	if req == nil || l == nil || l.closed {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	req.loop = l
	req.Op = typ
	req.Result = 0
	return OK
}

func (l *Loop) fsSubmit(req *FsReq, cb FsCb, op func() int64) int {
	if cb == nil {
		req.Result = op()
		return int(req.Result)
	}
	req.cb = cb
	req.work.run = func() { req.Result = op() }
	req.work.done = func(st int) {
		req.end(l)
		if st != OK {
			req.Result = int64(st)
		}
		req.cb(req)
	}
	req.begin(l)
	l.threadPool().submit(&req.work)
	return OK
}

func convertStat(st *unix.Stat_t) Stat {
	return Stat{
		Dev:     uint64(st.Dev),
		Ino:     uint64(st.Ino),
		Mode:    uint32(st.Mode),
		Nlink:   uint64(st.Nlink),
		Uid:     st.Uid,
		Gid:     st.Gid,
		Rdev:    uint64(st.Rdev),
		Size:    st.Size,
		Blksize: int64(st.Blksize),
		Blocks:  st.Blocks,
		Atim:    time.Unix(st.Atim.Unix()),
		Mtim:    time.Unix(st.Mtim.Unix()),
		Ctim:    time.Unix(st.Ctim.Unix()),
	}
}
