// Package engine wires the buffer pool, B+-tree indexes, table heaps,
// transaction manager, lock manager and log manager into the single
// embedding surface a host (a SQL virtual-table binding, in this repo
// package vtable) drives: open a database file, create or open tables
// and indexes by name, and begin/commit/abort transactions around them.
package engine

import (
	"github.com/pkg/errors"
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/latchdb/latchdb/buffer"
	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/concurrency"
	"github.com/latchdb/latchdb/recovery"
	"github.com/latchdb/latchdb/storage"
	"github.com/latchdb/latchdb/storage/disk"
	"github.com/latchdb/latchdb/storage/index"
	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/storage/table"
	"github.com/latchdb/latchdb/types"
)

// Engine owns every component of one open database file: the buffer
// pool, the write-ahead log, the lock and transaction managers, and the
// named tables and indexes created through it. There is no persistence
// beyond the db file and its log file, and no checkpointing: a restart
// always replays the log from its beginning.
type Engine struct {
	mu deadlock.Mutex

	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
	logManager  *recovery.LogManager
	lockManager *concurrency.LockManager
	txnManager  *concurrency.TransactionManager

	tables  map[string]*table.TableHeap
	indexes map[string]*index.BPlusTreeIndex[int64]
}

// Open attaches to dbPath (created fresh if it does not exist), replays
// its log, and starts the background flusher. poolSize <= 0 uses
// common.DefaultBufferPoolSize.
func Open(dbPath string, poolSize int) (*Engine, error) {
	if poolSize <= 0 {
		poolSize = common.DefaultBufferPoolSize
	}
	dm, err := disk.NewFileDiskManager(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open disk manager")
	}
	return open(dm, poolSize)
}

// OpenInMemory attaches to a fresh in-memory database, used by tests and
// by hosts that do not need the data to survive the process.
func OpenInMemory(poolSize int) (*Engine, error) {
	if poolSize <= 0 {
		poolSize = common.DefaultBufferPoolSize
	}
	return open(disk.NewMemoryDiskManager(), poolSize)
}

func open(dm disk.DiskManager, poolSize int) (*Engine, error) {
	logManager := recovery.NewLogManager(dm)
	bpm := buffer.NewBufferPoolManager(poolSize, dm, logManager)

	e := &Engine{
		diskManager: dm,
		bpm:         bpm,
		logManager:  logManager,
		lockManager: concurrency.NewLockManager(true),
		tables:      make(map[string]*table.TableHeap),
		indexes:     make(map[string]*index.BPlusTreeIndex[int64]),
	}
	e.txnManager = concurrency.NewTransactionManager(e.lockManager, logManager)

	if dm.GetLogFileSize() > 0 {
		recovery.NewLogRecovery(dm, bpm).Redo()
		recovery.NewLogRecovery(dm, bpm).Undo()
	}

	if err := e.ensureHeaderPage(); err != nil {
		return nil, err
	}
	logManager.RunFlushThread()
	return e, nil
}

// ensureHeaderPage fetches page 0, creating and initializing it as the
// name->root-id directory if this is a brand new file.
func (e *Engine) ensureHeaderPage() error {
	headerID := types.PageID(common.HeaderPageID)
	if _, err := e.bpm.FetchPage(headerID); err == nil {
		return e.bpm.UnpinPage(headerID, false)
	}

	p, err := e.bpm.NewPage()
	if err != nil {
		return errors.Wrap(err, "allocate header page")
	}
	common.Assert(p.GetPageID() == headerID, "first allocated page was %d, not the header page", p.GetPageID())
	page.AsHeaderPage(p).Init()
	return e.bpm.UnpinPage(headerID, true)
}

// Close flushes every dirty page and stops the background flusher.
func (e *Engine) Close() error {
	e.logManager.StopFlushThread()
	if err := e.bpm.FlushAllDirtyPages(); err != nil {
		return err
	}
	e.diskManager.ShutDown()
	return nil
}

// Begin, Commit and Abort drive one transaction's lifetime; see
// concurrency.TransactionManager for what each does to locks and the log.
func (e *Engine) Begin() *concurrency.Transaction     { return e.txnManager.Begin() }
func (e *Engine) Commit(txn *concurrency.Transaction) { e.txnManager.Commit(txn) }
func (e *Engine) Abort(txn *concurrency.Transaction)  { e.txnManager.Abort(txn) }

// CreateTable allocates a fresh, empty table heap and registers it under
// name so later Table(name) calls on this Engine can find it. The
// registration is kept in memory only; it is not written to the header
// page.
func (e *Engine) CreateTable(name string, txn *concurrency.Transaction) (*table.TableHeap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[name]; exists {
		return nil, storage.ErrDuplicateKey
	}
	th, err := table.NewTableHeap(e.bpm, e.lockManager, e.logManager, txn)
	if err != nil {
		return nil, err
	}
	e.tables[name] = th
	return th, nil
}

// Table returns the table heap registered under name.
func (e *Engine) Table(name string) (*table.TableHeap, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	th, ok := e.tables[name]
	return th, ok
}

// CreateIndex builds a fresh B+-tree index keyed by int64 (matching a
// rowid- or integer-column index) and registers it under name.
func (e *Engine) CreateIndex(name string, leafMaxSize, internalMaxSize int) (*index.BPlusTreeIndex[int64], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.indexes[name]; exists {
		return nil, storage.ErrDuplicateKey
	}
	idx := index.NewBPlusTreeIndex[int64](e.bpm, name, index.CompareInt64, index.Int64Codec{}, leafMaxSize, internalMaxSize)
	e.indexes[name] = idx
	return idx, nil
}

// Index returns the index registered under name.
func (e *Engine) Index(name string) (*index.BPlusTreeIndex[int64], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[name]
	return idx, ok
}

// BufferPool, LockManager and LogManager expose the lower-level
// components directly, for hosts that need finer control than the
// table/index/transaction convenience methods above (matching the
// embedding surface's "buffer-pool fetch/new/unpin/flush/delete" and
// "lock manager lock-shared/exclusive/upgrade/unlock" entries).
func (e *Engine) BufferPool() *buffer.BufferPoolManager { return e.bpm }
func (e *Engine) LockManager() *concurrency.LockManager { return e.lockManager }
func (e *Engine) LogManager() *recovery.LogManager      { return e.logManager }
