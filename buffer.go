package uvloop

import (
	"bytes"
	"sync"
)

// Buffer is an ordered byte sequence handed to read continuations. Buffers
// delivered by reads are only valid for the duration of the continuation;
// use Copy to keep the data.
type Buffer struct {
	b []byte
}

// NewBuffer wraps b without copying.
func NewBuffer(b []byte) Buffer { return Buffer{b: b} }

// Bytes returns the underlying bytes.
func (b Buffer) Bytes() []byte { return b.b }

// Len returns the number of bytes.
func (b Buffer) Len() int { return len(b.b) }

// Copy returns a copy of the bytes that outlives the buffer.
func (b Buffer) Copy() []byte { return bytes.Clone(b.b) }

func (b Buffer) String() string { return string(b.b) }

// bufferPool recycles read buffers by power-of-two size class.
type bufferPool struct {
	classes [maxSizeClass + 1]sync.Pool
}

const (
	minSizeClass = 9 // 512 bytes
	maxSizeClass = 22
)

func sizeClass(n int) int {
	c := minSizeClass
	for c < maxSizeClass && 1<<c < n {
		c++
	}
	return c
}

func (p *bufferPool) get(n int) []byte {
	if n <= 0 {
		return nil
	}
	c := sizeClass(n)
	if 1<<c < n {
		return make([]byte, n)
	}
	if v, ok := p.classes[c].Get().(*[]byte); ok {
		return (*v)[:n]
	}
	return make([]byte, n, 1<<c)
}

func (p *bufferPool) put(b []byte) {
	c := cap(b)
	if c < 1<<minSizeClass || c > 1<<maxSizeClass || c&(c-1) != 0 {
		return
	}
	b = b[:c]
	p.classes[sizeClass(c)].Put(&b)
}
