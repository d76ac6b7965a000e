package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func() error
}

var (
	mu    sync.Mutex
	hooks []hook
	exit  = os.Exit
)

// Register adds a cleanup step. Steps run in reverse registration order.
func Register(name string, fn func() error) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, hook{name: name, fn: fn})
}

func Shutdown() {
	runHooks()
	log.Info().Msg("Shutdown complete")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	runHooks()
	exit(1)
}

func runHooks() {
	mu.Lock()
	pending := hooks
	hooks = nil
	mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		h := pending[i]
		if err := h.fn(); err != nil {
			log.Warn().Err(err).Str("hook", h.name).Msg("Cleanup step failed")
			continue
		}
		log.Debug().Str("hook", h.name).Msg("Cleanup step done")
	}
}
