// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"github.com/joeycumines/logiface"
)

// DefaultListenBacklog is the backlog used by Listen when none is given.
const DefaultListenBacklog = 128

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	threadPoolSize int
	readChunkSize  int
	listenBacklog  int
	threadCheck    bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the logger used for diagnostics. A nil logger disables
// logging, which is also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithThreadPoolSize sets the number of goroutines serving work, file system
// and resolver requests. Zero selects the default of 4.
func WithThreadPoolSize(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 || n > uvcore.MaxThreadPoolSize {
			return ArgumentError("thread pool size %d out of range [0, %d]", n, uvcore.MaxThreadPoolSize)
		}
		opts.threadPoolSize = n
		return nil
	}}
}

// WithThreadCheck enables or disables verification that handle operations
// are issued from the goroutine owning the loop. Enabled by default.
func WithThreadCheck(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.threadCheck = enabled
		return nil
	}}
}

// WithReadChunkSize sets the default chunk size of file readers created on
// the loop, overriding [DefaultChunkSize].
func WithReadChunkSize(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return ArgumentError("read chunk size %d is negative", n)
		}
		opts.readChunkSize = n
		return nil
	}}
}

// WithListenBacklog sets the backlog used when Listen is given none.
func WithListenBacklog(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if n < 0 {
			return ArgumentError("listen backlog %d is negative", n)
		}
		opts.listenBacklog = n
		return nil
	}}
}

// WithConfig applies the non-zero settings of cfg, see [LoadConfig].
func WithConfig(cfg Config) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		for _, opt := range [...]LoopOption{
			WithThreadPoolSize(cfg.ThreadPoolSize),
			WithReadChunkSize(cfg.ReadChunkSize),
			WithListenBacklog(cfg.ListenBacklog),
		} {
			if err := opt.applyLoop(opts); err != nil {
				return err
			}
		}
		opts.threadCheck = cfg.ThreadCheck
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		listenBacklog: DefaultListenBacklog,
		threadCheck:   true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.listenBacklog == 0 {
		cfg.listenBacklog = DefaultListenBacklog
	}
	return cfg, nil
}
