package local

import "fmt"

// fail reports a contract violation by panicking. Contract violations are
// caller or implementation bugs, not recoverable runtime conditions, so they
// are never surfaced as ordinary errors.
func fail(format string, args ...any) {
	panic(fmt.Sprintf("driftdb/local: "+format, args...))
}

// hardAssert panics with the given message when the condition does not hold.
func hardAssert(condition bool, format string, args ...any) {
	if !condition {
		fail(format, args...)
	}
}
