// Package guard forces test mode before any runtime code inspects the flag.
// Tests that exercise startup paths blank-import it.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FLEETHIRE_TEST_MODE") == "" {
			_ = os.Setenv("FLEETHIRE_TEST_MODE", "1")
		}
	})
}
