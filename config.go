package uvloop

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
)

// Config is the environment-driven subset of the loop options.
type Config struct {
	ThreadPoolSize int  `env:"UVLOOP_THREADPOOL_SIZE,strict"`
	ReadChunkSize  int  `env:"UVLOOP_READ_CHUNK_SIZE,strict"`
	ListenBacklog  int  `env:"UVLOOP_LISTEN_BACKLOG,default=128,strict"`
	ThreadCheck    bool `env:"UVLOOP_THREAD_CHECK,default=true,strict"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{ListenBacklog: DefaultListenBacklog, ThreadCheck: true}
}

// LoadConfig reads Config from the environment. Unset variables keep their
// defaults; a value that does not parse is an error.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("uvloop: load config: %w", err)
	}
	return cfg, nil
}
