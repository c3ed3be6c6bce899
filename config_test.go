package uvloop

import (
	"testing"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("UVLOOP_THREADPOOL_SIZE", "")
	t.Setenv("UVLOOP_READ_CHUNK_SIZE", "")
	t.Setenv("UVLOOP_LISTEN_BACKLOG", "")
	t.Setenv("UVLOOP_THREAD_CHECK", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("UVLOOP_THREADPOOL_SIZE", "2")
	t.Setenv("UVLOOP_READ_CHUNK_SIZE", "4096")
	t.Setenv("UVLOOP_LISTEN_BACKLOG", "16")
	t.Setenv("UVLOOP_THREAD_CHECK", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{ThreadPoolSize: 2, ReadChunkSize: 4096, ListenBacklog: 16}, cfg)

	o, err := resolveLoopOptions([]LoopOption{WithConfig(cfg)})
	require.NoError(t, err)
	assert.Equal(t, 2, o.threadPoolSize)
	assert.Equal(t, 4096, o.readChunkSize)
	assert.Equal(t, 16, o.listenBacklog)
	assert.False(t, o.threadCheck)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for _, tc := range []struct{ name, value string }{
		{"UVLOOP_THREADPOOL_SIZE", "many"},
		{"UVLOOP_READ_CHUNK_SIZE", "1k"},
		{"UVLOOP_LISTEN_BACKLOG", "-"},
		{"UVLOOP_THREAD_CHECK", "maybe"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.name, tc.value)
			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "uvloop: load config")
			assert.Equal(t, Config{}, cfg)
		})
	}
}

func TestResolveLoopOptions(t *testing.T) {
	o, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultListenBacklog, o.listenBacklog)
	assert.True(t, o.threadCheck)
	assert.Nil(t, o.logger)

	o, err = resolveLoopOptions([]LoopOption{nil, WithListenBacklog(0), WithThreadCheck(false)})
	require.NoError(t, err)
	assert.Equal(t, DefaultListenBacklog, o.listenBacklog)
	assert.False(t, o.threadCheck)

	for _, opt := range []LoopOption{
		WithThreadPoolSize(-1),
		WithThreadPoolSize(uvcore.MaxThreadPoolSize + 1),
		WithReadChunkSize(-1),
		WithListenBacklog(-1),
	} {
		_, err := resolveLoopOptions([]LoopOption{opt})
		assert.ErrorIs(t, err, ArgumentError(""))
	}

	_, err = New(WithThreadPoolSize(-1))
	assert.Error(t, err)
}
