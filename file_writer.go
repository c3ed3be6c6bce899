package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// WriterOption configures a FileWriter.
type WriterOption func(*FileWriter)

// WithWritePosition writes starting at offset. A negative offset, the
// default, writes at the file's current position.
func WithWritePosition(offset int64) WriterOption {
	return func(w *FileWriter) { w.offset = offset }
}

// WithWriteProgress calls fn with the byte count of every partial write.
func WithWriteProgress(fn func(n int)) WriterOption {
	return func(w *FileWriter) { w.progress = fn }
}

// FileWriter writes a byte slice with as many partial writes as needed.
// It stops when everything is written, on the first error, or when a write
// reports zero bytes, delivering the position reached.
type FileWriter struct {
	loop     *Loop
	onDone   func(int, error)
	progress func(int)
	data     []byte
	file     File
	offset   int64
	pos      int
	started  bool

	// writeAt issues one write of buf at offset, completing through
	// fsTrampoline.
	writeAt func(req *uvcore.FsReq, buf []byte, offset int64) int
}

// NewFileWriter creates a writer of data to f. data must not be modified
// until the writer is done.
func NewFileWriter(l *Loop, f File, data []byte, opts ...WriterOption) *FileWriter {
	w := &FileWriter{loop: l, file: f, data: data, offset: -1}
	w.writeAt = func(req *uvcore.FsReq, buf []byte, offset int64) int {
		return uvcore.FsWrite(l.core, req, int(f), [][]byte{buf}, offset, fsTrampoline)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Position returns the number of bytes written so far.
func (w *FileWriter) Position() int { return w.pos }

// Start begins writing. onDone receives the final position and the error,
// if any. Starting a writer twice delivers an error to the second
// continuation.
func (w *FileWriter) Start(onDone func(pos int, err error)) {
	if onDone == nil {
		onDone = func(int, error) {}
	}
	if w.started {
		w.loop.fail(ArgumentError("file writer already started"), func(err error) { onDone(0, err) })
		return
	}
	w.started = true
	w.onDone = onDone
	if len(w.data) == 0 {
		w.loop.post(func() { onDone(0, nil) })
		return
	}
	w.step()
}

func (w *FileWriter) step() {
	offset := w.offset
	if offset >= 0 {
		offset += int64(w.pos)
	}
	fsIssue(w.loop,
		w.onWrite,
		func(err error) { w.onDone(w.pos, err) },
		func(req *uvcore.FsReq) int {
			return w.writeAt(req, w.data[w.pos:], offset)
		})
}

func (w *FileWriter) onWrite(res fsResult) {
	if err := res.err(); err != nil {
		w.onDone(w.pos, err)
		return
	}
	n := int(res.result)
	if n > 0 {
		w.pos += n
		if w.progress != nil {
			w.progress(n)
		}
	}
	if n == 0 || w.pos >= len(w.data) {
		w.onDone(w.pos, nil)
		return
	}
	w.step()
}

// WriteFile creates or truncates the file at path and writes data to it.
func WriteFile(l *Loop, path string, data []byte, onDone func(error)) {
	if onDone == nil {
		onDone = nopErr
	}
	Open(l, path, ModeWrite, func(f File, err error) {
		if err != nil {
			onDone(err)
			return
		}
		NewFileWriter(l, f, data).Start(func(pos int, err error) {
			if err == nil && pos < len(data) {
				err = codeError(uvcore.EPIPE)
			}
			Close(l, f, func(cerr error) {
				if err == nil {
					err = cerr
				}
				onDone(err)
			})
		})
	})
}
