// Completion: 100% - Debug logging complete
package c67mach

import (
	"fmt"
	"os"
)

// VerboseMode gates diagnostic output to stderr, matching the teacher's
// single package-level flag rather than a structured logging library.
var VerboseMode bool

func debugf(format string, args ...any) {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
