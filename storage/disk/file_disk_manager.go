package disk

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ncw/directio"
	"github.com/pkg/errors"

	"github.com/latchdb/latchdb/common"
	"github.com/latchdb/latchdb/types"
)

// FileDiskManager is the os.File-backed DiskManager. Page reads go through
// a directio.AlignedBlock-sized buffer so the read path is ready for
// O_DIRECT-style alignment even though this build opens files without
// O_DIRECT.
type FileDiskManager struct {
	db       *os.File
	dbPath   string
	log      *os.File
	logPath  string

	dbMu  sync.Mutex
	logMu sync.Mutex

	nextPageID types.PageID
	numWrites  uint64
	size       int64
}

func NewFileDiskManager(dbPath string) (*FileDiskManager, error) {
	db, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open db file %s", dbPath)
	}

	logPath := logPathFor(dbPath)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", logPath)
	}

	info, err := db.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat db file")
	}

	nPages := info.Size() / common.PageSize
	return &FileDiskManager{
		db:         db,
		dbPath:     dbPath,
		log:        logFile,
		logPath:    logPath,
		nextPageID: types.PageID(nPages),
		size:       info.Size(),
	}, nil
}

func logPathFor(dbPath string) string {
	idx := strings.LastIndex(dbPath, ".")
	if idx < 0 {
		return dbPath + ".log"
	}
	return dbPath[:idx] + ".log"
}

func (d *FileDiskManager) ShutDown() {
	d.dbMu.Lock()
	d.db.Close()
	d.dbMu.Unlock()
	d.logMu.Lock()
	d.log.Close()
	d.logMu.Unlock()
}

func (d *FileDiskManager) WritePage(id types.PageID, data []byte) error {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()

	offset := int64(id) * common.PageSize
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek page %d", id)
	}
	n, err := d.db.Write(data)
	if err != nil {
		return errors.Wrapf(err, "write page %d", id)
	}
	common.Assert(n == common.PageSize, "short page write: %d bytes", n)
	d.numWrites++
	if offset+int64(n) > d.size {
		d.size = offset + int64(n)
	}
	return d.db.Sync()
}

func (d *FileDiskManager) ReadPage(id types.PageID, out []byte) error {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()

	offset := int64(id) * common.PageSize
	if offset >= d.size {
		return errors.Errorf("read past end of file: page %d", id)
	}

	buf := directio.AlignedBlock(common.PageSize)
	if _, err := d.db.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek page %d", id)
	}
	n, err := d.db.Read(buf)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "read page %d", id)
	}
	copy(out, buf)
	if n < common.PageSize {
		for i := n; i < common.PageSize; i++ {
			out[i] = 0
		}
	}
	return nil
}

func (d *FileDiskManager) AllocatePage() types.PageID {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()
	id := d.nextPageID
	d.nextPageID++
	return id
}

// DeallocatePage is a documented no-op: reclaiming file space requires a
// page bitmap that this build does not maintain (see SPEC_FULL.md §9).
func (d *FileDiskManager) DeallocatePage(types.PageID) {}

func (d *FileDiskManager) GetNumWrites() uint64 { return d.numWrites }

func (d *FileDiskManager) Size() int64 {
	d.dbMu.Lock()
	defer d.dbMu.Unlock()
	return d.size
}

func (d *FileDiskManager) WriteLog(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	d.logMu.Lock()
	defer d.logMu.Unlock()
	if _, err := d.log.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "seek log file")
	}
	if _, err := d.log.Write(data); err != nil {
		return errors.Wrap(err, "write log")
	}
	return d.log.Sync()
}

func (d *FileDiskManager) ReadLog(out []byte, offset int64, readBytes *int) bool {
	if offset >= d.GetLogFileSize() {
		return false
	}
	d.logMu.Lock()
	defer d.logMu.Unlock()
	if _, err := d.log.Seek(offset, io.SeekStart); err != nil {
		return false
	}
	n, err := d.log.Read(out)
	if err != nil && err != io.EOF {
		return false
	}
	*readBytes = n
	return true
}

func (d *FileDiskManager) GetLogFileSize() int64 {
	d.logMu.Lock()
	defer d.logMu.Unlock()
	info, err := d.log.Stat()
	if err != nil {
		return -1
	}
	return info.Size()
}

func (d *FileDiskManager) GCLogFile() error {
	d.logMu.Lock()
	defer d.logMu.Unlock()
	d.log.Close()
	f, err := os.OpenFile(d.logPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrap(err, "reopen log file")
	}
	d.log = f
	return nil
}
