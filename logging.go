package uvloop

import (
	"runtime"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Rate limits for repeated error-level diagnostics, per category.
var errorLogRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

const (
	logCategoryPanic    = "panic"
	logCategoryRegistry = "registry"
	logCategoryRequest  = "request"
	logCategoryClose    = "close"
)

type diagnostics struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func newDiagnostics(logger *logiface.Logger[logiface.Event]) *diagnostics {
	return &diagnostics{
		logger:  logger,
		limiter: catrate.NewLimiter(errorLogRates),
	}
}

// limited returns an error-level builder for category, or nil if logging is
// disabled or the category is over its rate.
func (d *diagnostics) limited(category string) *logiface.Builder[logiface.Event] {
	b := d.logger.Err()
	if !b.Enabled() {
		return nil
	}
	if _, ok := d.limiter.Allow(category); !ok {
		b.Release()
		return nil
	}
	return b.Str("category", category)
}

func (d *diagnostics) debug() *logiface.Builder[logiface.Event] {
	return d.logger.Debug()
}

// goroutineID parses the current goroutine's ID from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
