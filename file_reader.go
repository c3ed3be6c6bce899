package uvloop

import (
	"sync/atomic"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// FsReadResult is one event of a FileReader: FsReadData, FsReadEnd or
// FsReadError.
type FsReadResult interface {
	isFsReadResult()
}

// FsReadData carries one chunk. The buffer is only valid during the
// continuation.
type FsReadData struct {
	Buffer Buffer
}

// FsReadEnd is the last event of a successful read, with the total number
// of bytes delivered.
type FsReadEnd struct {
	Total int64
}

// FsReadError is the last event of a failed read.
type FsReadError struct {
	Err error
}

func (FsReadData) isFsReadResult()  {}
func (FsReadEnd) isFsReadResult()   {}
func (FsReadError) isFsReadResult() {}

var defaultChunkSize atomic.Int64

func init() { defaultChunkSize.Store(1024) }

// DefaultChunkSize returns the process-wide read chunk size used when neither
// the reader nor its loop set one.
func DefaultChunkSize() int { return int(defaultChunkSize.Load()) }

// SetDefaultChunkSize sets the process-wide read chunk size. Values below one
// are ignored.
func SetDefaultChunkSize(n int) {
	if n > 0 {
		defaultChunkSize.Store(int64(n))
	}
}

// ReaderOption configures a FileReader.
type ReaderOption func(*FileReader)

// WithChunkSize sets the size of each read.
func WithChunkSize(n int) ReaderOption {
	return func(r *FileReader) {
		if n > 0 {
			r.chunk = n
		}
	}
}

// WithReadPosition starts reading at offset instead of zero.
func WithReadPosition(offset int64) ReaderOption {
	return func(r *FileReader) {
		if offset >= 0 {
			r.position = offset
		}
	}
}

// WithReadLength stops reading after n bytes.
func WithReadLength(n int64) ReaderOption {
	return func(r *FileReader) {
		if n >= 0 {
			r.length = n
		}
	}
}

// FileReader reads a file sequentially, one chunk per request, at an
// advancing offset. It emits zero or more FsReadData events followed by
// exactly one FsReadEnd or FsReadError. A reader runs once.
type FileReader struct {
	loop     *Loop
	onResult func(FsReadResult)
	file     File
	chunk    int
	position int64
	length   int64
	total    int64
	started  bool
	done     bool
}

// NewFileReader creates a reader for f.
func NewFileReader(l *Loop, f File, opts ...ReaderOption) *FileReader {
	r := &FileReader{
		loop:   l,
		file:   f,
		chunk:  l.opts.readChunkSize,
		length: -1,
	}
	if r.chunk <= 0 {
		r.chunk = DefaultChunkSize()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Total returns the number of bytes delivered so far.
func (r *FileReader) Total() int64 { return r.total }

// Start begins reading. Starting a reader twice delivers an FsReadError to
// the second continuation.
func (r *FileReader) Start(onResult func(FsReadResult)) {
	if onResult == nil {
		return
	}
	if r.started {
		r.loop.fail(ArgumentError("file reader already started"), func(err error) {
			onResult(FsReadError{Err: err})
		})
		return
	}
	r.started = true
	r.onResult = onResult
	r.step()
}

func (r *FileReader) step() {
	size := r.chunk
	if r.length >= 0 {
		remaining := r.length - r.total
		if remaining <= 0 {
			r.finish(FsReadEnd{Total: r.total})
			return
		}
		if remaining < int64(size) {
			size = int(remaining)
		}
	}
	buf := r.loop.buffers.get(size)
	issued := false
	defer func() {
		if !issued {
			r.loop.buffers.put(buf)
		}
	}()
	fsIssue(r.loop,
		func(res fsResult) {
			defer r.loop.buffers.put(buf)
			r.onChunk(res, buf, size)
		},
		func(err error) { r.finish(FsReadError{Err: err}) },
		func(req *uvcore.FsReq) int {
			rc := uvcore.FsRead(r.loop.core, req, int(r.file), [][]byte{buf}, r.position+r.total, fsTrampoline)
			issued = rc == uvcore.OK
			return rc
		})
}

func (r *FileReader) onChunk(res fsResult, buf []byte, size int) {
	if err := res.err(); err != nil {
		r.finish(FsReadError{Err: err})
		return
	}
	n := int(res.result)
	if n > 0 {
		r.total += int64(n)
		r.onResult(FsReadData{Buffer: Buffer{b: buf[:n]}})
	}
	if r.done {
		return
	}
	if n < size {
		r.finish(FsReadEnd{Total: r.total})
		return
	}
	r.step()
}

func (r *FileReader) finish(res FsReadResult) {
	if r.done {
		return
	}
	r.done = true
	r.onResult(res)
}

// ReadAll reads f from its start to the end.
func ReadAll(l *Loop, f File, onDone func([]byte, error)) {
	var out []byte
	NewFileReader(l, f).Start(func(res FsReadResult) {
		switch res := res.(type) {
		case FsReadData:
			out = append(out, res.Buffer.Bytes()...)
		case FsReadEnd:
			if out == nil {
				out = []byte{}
			}
			onDone(out, nil)
		case FsReadError:
			onDone(nil, res.Err)
		}
	})
}

// ReadFile opens, reads and closes the file at path.
func ReadFile(l *Loop, path string, onDone func([]byte, error)) {
	Open(l, path, ModeRead, func(f File, err error) {
		if err != nil {
			onDone(nil, err)
			return
		}
		ReadAll(l, f, func(data []byte, err error) {
			Close(l, f, func(cerr error) {
				if err == nil {
					err = cerr
				}
				onDone(data, err)
			})
		})
	})
}
