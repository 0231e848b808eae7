package guard

import (
	"sync/atomic"

	"github.com/go-errors/errors"
	"github.com/goatnetwork/goat-escrow/internal/types"
	log "github.com/sirupsen/logrus"
)

// Guard is a process-wide single-flight flag for mutating operations. A
// conflicting entry aborts instead of waiting.
type Guard struct {
	entered atomic.Bool
	logger  *log.Entry
}

func New() *Guard {
	return &Guard{logger: log.WithFields(log.Fields{"module": "guard"})}
}

// Enter acquires the guard for op and returns the func that releases it.
// Callers must defer the release on every path.
func (g *Guard) Enter(op string) (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		wrapped := errors.Wrap(types.ErrReentrancy, 1)
		g.logger.WithField("op", op).Errorf("Reentrant call rejected: %s", wrapped.ErrorStack())
		return nil, types.ErrReentrancy
	}
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.entered.Store(false)
		}
	}, nil
}

func (g *Guard) Held() bool {
	return g.entered.Load()
}
