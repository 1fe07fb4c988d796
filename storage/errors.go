// Package storage holds the sentinel errors shared by the disk, page,
// table, index and buffer-pool layers, so callers can errors.Is against a
// single set of names regardless of which layer raised them.
package storage

import "github.com/pkg/errors"

var (
	// ErrNoFreeFrame is returned when the buffer pool has no frame left to
	// evict (every frame pinned) and a caller requests a new or fetched page.
	ErrNoFreeFrame = errors.New("no free frame available in buffer pool")
	// ErrNotEnoughSpace is returned when a tuple does not fit on a page,
	// whether inserting fresh or growing in place during an update.
	ErrNotEnoughSpace = errors.New("not enough space on page")
	// ErrDuplicateKey is returned when a name is registered twice: by
	// engine.CreateTable/CreateIndex and HeaderPage.InsertRecord. The
	// B+-tree does not use it; its Insert reports a duplicate key as
	// (false, nil).
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound covers every "no such slot/page/record" condition: an
	// invalid table-page slot, an absent page, an absent header page
	// directory entry. The B+-tree does not use it; GetValue and Remove
	// report an absent key through their bool result.
	ErrNotFound = errors.New("not found")
	// ErrEmptyTuple is returned when InsertTuple is asked to insert a
	// zero-length tuple.
	ErrEmptyTuple = errors.New("tuple cannot be empty")
	// ErrTxnAborted is returned by a table heap operation that could not
	// acquire the lock it needed because the lock manager aborted the
	// transaction (wait-die) or the transaction had already aborted.
	ErrTxnAborted = errors.New("transaction aborted")
)
