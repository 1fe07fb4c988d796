package common

import (
	"sync/atomic"
	"time"
)

// EnableLogging reports whether log production is on. LogManager's
// RunFlushThread sets it and StopFlushThread clears it; each LogManager
// gates its own records on its IsEnabledLogging, which flips together
// with this flag.
var enableLogging atomic.Bool

func EnableLogging() bool        { return enableLogging.Load() }
func SetEnableLogging(v bool)    { enableLogging.Store(v) }

const (
	// HeaderPageID is the fixed page id of the index/table directory page.
	HeaderPageID = 0
	// PageSize is the fixed size, in bytes, of every page.
	PageSize = 4096
	// DefaultBufferPoolSize is the test-default frame count.
	DefaultBufferPoolSize = 10
	// BucketSize is the extendible hash table's per-bucket capacity.
	BucketSize = 50
	// LogBufferSize sizes both the log manager's append and flush buffers.
	LogBufferSize = (DefaultBufferPoolSize + 1) * PageSize
	// LogFlushTimeout is how long the background flusher waits between
	// forced wakeups before flushing anyway.
	LogFlushTimeout = 1 * time.Second
)
