package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latchdb/latchdb/common"
)

func TestMemoryDiskManagerReadWritePage(t *testing.T) {
	dm := NewMemoryDiskManager()
	defer dm.ShutDown()

	data := make([]byte, common.PageSize)
	copy(data, "a test string")
	pageID := dm.AllocatePage()
	assert.NoError(t, dm.WritePage(pageID, data))

	out := make([]byte, common.PageSize)
	assert.NoError(t, dm.ReadPage(pageID, out))
	assert.Equal(t, data, out)
}

func TestMemoryDiskManagerDeallocatedPageIsUnreadable(t *testing.T) {
	dm := NewMemoryDiskManager()
	defer dm.ShutDown()

	pageID := dm.AllocatePage()
	assert.NoError(t, dm.WritePage(pageID, make([]byte, common.PageSize)))

	dm.DeallocatePage(pageID)
	err := dm.ReadPage(pageID, make([]byte, common.PageSize))
	assert.ErrorIs(t, err, ErrDeallocatedPage)
}

func TestMemoryDiskManagerReusesDeallocatedSlot(t *testing.T) {
	dm := NewMemoryDiskManager()
	defer dm.ShutDown()

	first := dm.AllocatePage()
	dm.DeallocatePage(first)

	data := make([]byte, common.PageSize)
	copy(data, "reused slot contents")

	second := dm.AllocatePage()
	assert.NoError(t, dm.WritePage(second, data))

	out := make([]byte, common.PageSize)
	assert.NoError(t, dm.ReadPage(second, out))
	assert.Equal(t, data, out)
}

func TestMemoryDiskManagerLogAppendAndRead(t *testing.T) {
	dm := NewMemoryDiskManager()
	defer dm.ShutDown()

	assert.NoError(t, dm.WriteLog([]byte("hello")))
	assert.NoError(t, dm.WriteLog([]byte("world")))
	assert.Equal(t, int64(10), dm.GetLogFileSize())

	buf := make([]byte, 10)
	var n int
	ok := dm.ReadLog(buf, 0, &n)
	assert.True(t, ok)
	assert.Equal(t, "helloworld", string(buf[:n]))

	assert.NoError(t, dm.GCLogFile())
	assert.Equal(t, int64(0), dm.GetLogFileSize())
}
