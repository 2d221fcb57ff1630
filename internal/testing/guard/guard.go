// Package guard switches the process into test mode when imported by a
// test binary, so commands skip their runtime side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("REQFLOW_TEST_MODE") == "" {
			_ = os.Setenv("REQFLOW_TEST_MODE", "1")
		}
	})
}
