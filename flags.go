package uvloop

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenMode is an fopen-style open mode.
type OpenMode int

const (
	// ModeRead opens for reading, "r".
	ModeRead OpenMode = iota
	// ModeReadWrite opens for reading and writing, "r+".
	ModeReadWrite
	// ModeWrite truncates or creates for writing, "w".
	ModeWrite
	// ModeWriteRead truncates or creates for reading and writing, "w+".
	ModeWriteRead
	// ModeAppend creates or appends, "a".
	ModeAppend
	// ModeAppendRead creates or appends, also allowing reads, "a+".
	ModeAppendRead
)

// DefaultFilePerm is applied to files created without an explicit
// permission.
const DefaultFilePerm os.FileMode = 0o666

var openModes = [...]struct {
	name   string
	flags  int
	create bool
}{
	ModeRead:       {"r", unix.O_RDONLY, false},
	ModeReadWrite:  {"r+", unix.O_RDWR, false},
	ModeWrite:      {"w", unix.O_TRUNC | unix.O_CREAT | unix.O_WRONLY, true},
	ModeWriteRead:  {"w+", unix.O_TRUNC | unix.O_CREAT | unix.O_RDWR, true},
	ModeAppend:     {"a", unix.O_APPEND | unix.O_CREAT | unix.O_WRONLY, true},
	ModeAppendRead: {"a+", unix.O_APPEND | unix.O_CREAT | unix.O_RDWR, true},
}

// ParseOpenMode parses "r", "r+", "w", "w+", "a" or "a+".
func ParseOpenMode(s string) (OpenMode, error) {
	for i, m := range openModes {
		if m.name == s {
			return OpenMode(i), nil
		}
	}
	return 0, ArgumentError("unknown open mode %q", s)
}

func (m OpenMode) valid() bool { return m >= 0 && int(m) < len(openModes) }

func (m OpenMode) String() string {
	if m.valid() {
		return openModes[m].name
	}
	return "?"
}

// Flags returns the open(2) flags of the mode.
func (m OpenMode) Flags() int {
	if !m.valid() {
		return 0
	}
	return openModes[m].flags | unix.O_CLOEXEC
}

// DefaultPerm returns the permission used when none is given: 0666 for
// creating modes, zero otherwise.
func (m OpenMode) DefaultPerm() os.FileMode {
	if m.valid() && openModes[m].create {
		return DefaultFilePerm
	}
	return 0
}
