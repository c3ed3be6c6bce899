// Package process describes the running process and its host: pid, working
// directory, environment, executable path and CPU count.
package process

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	gproc "github.com/shirou/gopsutil/v3/process"
)

// Pid returns the process ID.
func Pid() int { return os.Getpid() }

// Cwd returns the current working directory.
func Cwd() (string, error) {
	p, err := self()
	if err != nil {
		return "", err
	}
	dir, err := p.Cwd()
	if err != nil {
		return "", fmt.Errorf("process: cwd: %w", err)
	}
	return dir, nil
}

// Env returns the environment as a map. A variable set more than once keeps
// its last value.
func Env() map[string]string {
	return envMap(os.Environ())
}

func envMap(kvs []string) map[string]string {
	env := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}

// ExecPath returns the absolute path of the running executable.
func ExecPath() (string, error) {
	p, err := self()
	if err != nil {
		return "", err
	}
	exe, err := p.Exe()
	if err != nil {
		return "", fmt.Errorf("process: executable path: %w", err)
	}
	return exe, nil
}

// CPUCount returns the number of logical CPUs.
func CPUCount(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("process: cpu count: %w", err)
	}
	return n, nil
}

// Info is a snapshot of the process.
type Info struct {
	Env      map[string]string
	Cwd      string
	ExecPath string
	Pid      int
	CPUs     int
}

// Snapshot gathers Info in one call.
func Snapshot(ctx context.Context) (Info, error) {
	info := Info{Pid: Pid(), Env: Env()}
	var err error
	if info.Cwd, err = Cwd(); err != nil {
		return Info{}, err
	}
	if info.ExecPath, err = ExecPath(); err != nil {
		return Info{}, err
	}
	if info.CPUs, err = CPUCount(ctx); err != nil {
		return Info{}, err
	}
	return info, nil
}

func self() (*gproc.Process, error) {
	p, err := gproc.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}
	return p, nil
}
