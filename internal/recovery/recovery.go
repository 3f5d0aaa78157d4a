// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// exit is replaced in tests.
var exit = os.Exit

// HandlePanic should be deferred at the top of main() or goroutines.
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		report(r, debug.Stack())
		exit(1)
	}
}

// HandlePanicFunc logs panic details, calls cleanup and exits with code 1.
// Use it where a capture device must be released before the process ends.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report(r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		exit(1)
	}
}

// report logs the panic value through logrus, followed by the raw stack.
func report(r any, stack []byte) {
	logrus.WithField("panic", r).Error("FATAL: unrecovered panic")
	_, _ = fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", stack)
}
