// Package recovery implements the write-ahead log and ARIES-style crash
// recovery: a background-flushed log buffer (LogManager) and the
// redo/undo pass that replays it against the table heap after a restart
// (LogRecovery). There is no checkpointing: recovery always replays the
// log from its beginning.
package recovery

import (
	"sync"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/types"
)

// LogManager buffers log records in memory and hands them to disk in
// batches: either when the buffer fills, when LogFlushTimeout elapses, or
// when the buffer pool forces an out-of-cadence flush before evicting a
// dirty page (WakeupFlushThread). The corpus's LogManager flushes
// synchronously on every call; this one moves that work to a background
// goroutine so AppendLogRecord never blocks on disk I/O except when the
// buffer is actually full.
type LogManager struct {
	mu deadlock.Mutex
	cond *sync.Cond

	nextLSN       types.LSN
	persistentLSN types.LSN
	bufferLSN     types.LSN

	offset      int
	flushedLen  int
	logBuffer   []byte
	flushBuffer []byte

	diskManager disk.DiskManager

	enabled  bool
	signalCh chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewLogManager(diskManager disk.DiskManager) *LogManager {
	lm := &LogManager{
		persistentLSN: types.InvalidLSN,
		logBuffer:     make([]byte, common.LogBufferSize),
		flushBuffer:   make([]byte, common.LogBufferSize),
		diskManager:   diskManager,
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

func (lm *LogManager) GetNextLSN() types.LSN       { return lm.nextLSN }
func (lm *LogManager) GetPersistentLSN() types.LSN { return lm.persistentLSN }

// SetPersistentLSN records lsn as the newest LSN known durable on disk.
// Only the flush goroutine calls it, once a write it issued returns.
func (lm *LogManager) SetPersistentLSN(lsn types.LSN) { lm.persistentLSN = lsn }

func (lm *LogManager) IsEnabledLogging() bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.enabled
}

// RunFlushThread starts the background goroutine that wakes on
// LogFlushTimeout or on a buffer-full signal and writes the flush buffer
// to disk. Mirrors the corpus's RunFlushThread/StopFlushThread pairing,
// translated from a condition-variable-guarded std::thread into a
// channel-driven goroutine.
func (lm *LogManager) RunFlushThread() {
	lm.mu.Lock()
	if lm.enabled {
		lm.mu.Unlock()
		return
	}
	lm.enabled = true
	common.SetEnableLogging(true)
	lm.signalCh = make(chan struct{}, 1)
	lm.stopCh = make(chan struct{})
	lm.doneCh = make(chan struct{})
	lm.mu.Unlock()

	go lm.flushLoop()
}

// StopFlushThread stops the background goroutine and waits for it to
// exit, flushing whatever remains buffered first.
func (lm *LogManager) StopFlushThread() {
	lm.mu.Lock()
	if !lm.enabled {
		lm.mu.Unlock()
		return
	}
	lm.enabled = false
	common.SetEnableLogging(false)
	close(lm.stopCh)
	lm.mu.Unlock()

	<-lm.doneCh
}

func (lm *LogManager) flushLoop() {
	defer close(lm.doneCh)
	timer := time.NewTimer(common.LogFlushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-lm.stopCh:
			lm.flushNow()
			return
		case <-lm.signalCh:
		case <-timer.C:
		}
		timer.Reset(common.LogFlushTimeout)
		lm.flushNow()
	}
}

// flushNow swaps in whatever is buffered, if anything, and writes it to
// disk, then advances persistentLSN and wakes anyone waiting on it. The
// bytes are copied out of flushBuffer before the lock is released: a
// concurrent call (flushLoop races with WakeupFlushThread's direct path,
// and with Flush's) could otherwise swapBuffer again in the unlocked
// window and leave this call writing the wrong generation's bytes.
func (lm *LogManager) flushNow() {
	lm.mu.Lock()
	if lm.offset != 0 {
		lm.swapBuffer()
	}
	n := lm.flushedLen
	lsn := lm.bufferLSN
	lm.flushedLen = 0
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		copy(buf, lm.flushBuffer[:n])
	}
	lm.mu.Unlock()

	if n == 0 {
		return
	}
	if err := lm.diskManager.WriteLog(buf); err != nil {
		common.Logger.Error("log flush failed", zap.Error(err))
		return
	}

	lm.mu.Lock()
	lm.SetPersistentLSN(lsn)
	lm.cond.Broadcast()
	lm.mu.Unlock()
}

// swapBuffer exchanges log and flush buffers, recording how much of the
// flush buffer is valid. Callers hold lm.mu.
func (lm *LogManager) swapBuffer() {
	lm.logBuffer, lm.flushBuffer = lm.flushBuffer, lm.logBuffer
	lm.flushedLen = lm.offset
	lm.offset = 0
}

// signalFlush wakes the background flush goroutine without blocking if
// it is busy or the manager isn't running it.
func (lm *LogManager) signalFlush() {
	if lm.signalCh == nil {
		return
	}
	select {
	case lm.signalCh <- struct{}{}:
	default:
	}
}

// AppendLogRecord assigns record its LSN, serializes it into the log
// buffer, and returns the LSN. It swaps buffers itself if record would
// overflow what's left, waking the flush thread to drain the old buffer.
func (lm *LogManager) AppendLogRecord(record *LogRecord) types.LSN {
	lm.mu.Lock()

	if lm.offset+int(record.Size) > len(lm.logBuffer) {
		lm.swapBuffer()
		lm.signalFlush()
	}

	record.LSN = lm.nextLSN
	lm.nextLSN++

	copy(lm.logBuffer[lm.offset:], record.HeaderBytes())
	record.WritePayload(lm.logBuffer[lm.offset+HeaderSize:])
	lm.bufferLSN = record.LSN
	lm.offset += int(record.Size)
	lm.mu.Unlock()
	return record.LSN
}

// Flush forces the current log buffer to disk synchronously, used for a
// graceful shutdown outside the background thread's cadence.
func (lm *LogManager) Flush() {
	lm.flushNow()
}

// WakeupFlushThread swaps in whatever is currently buffered and wakes the
// background flush goroutine to write it, then blocks until that write
// reaches disk. It is the buffer pool's way of forcing the WAL rule
// before evicting a dirty page: the page's log record must already be in
// this buffer (it was appended before the page could have been marked
// dirty), so once the swapped-out buffer is durable the page is safe to
// write back. TransactionManager never calls this; Commit and Abort only
// poll GetPersistentLSN after appending their own record, relying on the
// background cadence or a concurrent WakeupFlushThread call to advance
// it.
func (lm *LogManager) WakeupFlushThread() {
	lm.mu.Lock()
	if lm.offset != 0 {
		lm.swapBuffer()
	}
	target := lm.bufferLSN
	lm.mu.Unlock()

	lm.signalFlush()

	lm.mu.Lock()
	for target > lm.persistentLSN {
		lm.cond.Wait()
	}
	lm.mu.Unlock()
}

// EnsureFlushed blocks until lsn is durable on disk, signalling a flush
// first if one isn't already pending.
func (lm *LogManager) EnsureFlushed(lsn types.LSN) {
	if lsn == types.InvalidLSN {
		return
	}
	lm.mu.Lock()
	if lsn > lm.persistentLSN {
		lm.signalFlush()
	}
	for lsn > lm.persistentLSN {
		lm.cond.Wait()
	}
	lm.mu.Unlock()
}
