package shutdown

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureExit(t *testing.T) *int {
	code := -1
	exit = func(c int) { code = c }
	t.Cleanup(func() {
		exit = os.Exit
		hooks = nil
	})
	return &code
}

func TestShutdownRunsHooksInReverse(t *testing.T) {
	code := captureExit(t)
	var order []string

	Register("database", func() error { order = append(order, "database"); return nil })
	Register("mqtt", func() error { order = append(order, "mqtt"); return errors.New("not connected") })
	Register("metrics", func() error { order = append(order, "metrics"); return nil })

	Shutdown()

	assert.Equal(t, []string{"metrics", "mqtt", "database"}, order)
	assert.Equal(t, 0, *code)
}

func TestShutdownWithErrorExitsNonZero(t *testing.T) {
	code := captureExit(t)
	ran := 0
	Register("database", func() error { ran++; return nil })

	ShutdownWithError(errors.New("listen tcp: address in use"), "API server failed")
	assert.Equal(t, 1, *code)
	assert.Equal(t, 1, ran)

	Shutdown()
	assert.Equal(t, 1, ran, "hooks run once")
}
