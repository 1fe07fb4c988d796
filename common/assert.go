package common

import "fmt"

// Assert panics with a formatted message when cond is false. Reserved for
// invariant breaches that indicate a bug in this engine (page-table or
// latch-set inconsistency); never for caller-triggerable conditions such
// as a full buffer pool, which return an error instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
