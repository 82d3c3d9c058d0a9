package connector

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/cuemby/vaultline/pkg/index"
	"github.com/cuemby/vaultline/pkg/storagebackend"
	"github.com/cuemby/vaultline/pkg/wireline"
)

// fakeReceiver lets tests drive ArchiveDispatcher.Run without a real
// ServerIO, mirroring pkg/worker's fakeSender.
type fakeReceiver struct {
	in  chan wireline.Command
	out []sentResult
}

type sentResult struct {
	id        uint64
	completed bool
	errorCode uint64
	args      []wireline.Arg
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{in: make(chan wireline.Command, 8)}
}

func (f *fakeReceiver) GetCommand(ctx context.Context) (wireline.Command, bool) {
	select {
	case cmd, ok := <-f.in:
		return cmd, ok
	case <-ctx.Done():
		return wireline.Command{}, false
	}
}

func (f *fakeReceiver) SendResult(id uint64, completed bool, errorCode uint64, args ...wireline.Arg) error {
	f.out = append(f.out, sentResult{id, completed, errorCode, args})
	return nil
}

func (f *fakeReceiver) push(id uint64, name, body string) {
	args, _ := wireline.ParseArgs(body)
	f.in <- wireline.Command{ID: id, Name: name, Args: args}
}

func runOne(t *testing.T, d *ArchiveDispatcher, fr *fakeReceiver, id uint64, name, body string) sentResult {
	t.Helper()
	fr.push(id, name, body)
	close(fr.in)
	d.Run(context.Background())
	for _, r := range fr.out {
		if r.id == id {
			return r
		}
	}
	t.Fatalf("no result sent for command id %d", id)
	return sentResult{}
}

// memSink is an in-memory io.WriteCloser standing in for a backend's
// opened archive file.
type memSink struct {
	buf    bytes.Buffer
	closed bool
}

func (s *memSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memSink) Close() error                { s.closed = true; return nil }

// fakeBackend is an in-memory storagebackend.StorageBackend.
type fakeBackend struct {
	opened map[string]*memSink
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{opened: make(map[string]*memSink)}
}

func (b *fakeBackend) Open(ctx context.Context, path string) (io.WriteCloser, error) {
	s := &memSink{}
	b.opened[path] = s
	return s, nil
}

func (b *fakeBackend) Stat(ctx context.Context, path string) (int64, error) {
	s, ok := b.opened[path]
	if !ok {
		return 0, fmt.Errorf("fakeBackend: %s not found", path)
	}
	return int64(s.buf.Len()), nil
}

func (b *fakeBackend) Remove(ctx context.Context, path string) error {
	delete(b.opened, path)
	return nil
}

var _ storagebackend.StorageBackend = (*fakeBackend)(nil)

// fakeIndex is a minimal index.IndexHandle stub, enough to exercise
// every handler in archiveCommandTable.
type fakeIndex struct{}

func (fakeIndex) NewUUID(jobUUID string) (string, error) { return "uuid-1", nil }
func (fakeIndex) FindUUID(jobUUID, scheduleUUID string) (index.UUIDInfo, error) {
	return index.UUIDInfo{UUIDID: "uuid-1", ExecutionCount: index.ExecutionCounts{}, AverageDuration: index.AverageDurations{}}, nil
}
func (fakeIndex) NewEntity(jobUUID, scheduleUUID string, archiveType index.ArchiveType, createdDateTime time.Time, locked bool) (string, error) {
	return "entity-1", nil
}
func (fakeIndex) NewStorage(entityID, storageName string, createdDateTime time.Time, size uint64, state index.IndexState, mode index.IndexMode) (string, error) {
	return "storage-1", nil
}
func (fakeIndex) AddFile(storageID, name string, size uint64, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return nil
}
func (fakeIndex) AddImage(storageID, name, fileSystemType string, size, blockSize, blockOffset, blockCount uint64) error {
	return nil
}
func (fakeIndex) AddDirectory(storageID, name string, times index.EntryTimes, userID, groupID, permission uint64) error {
	return nil
}
func (fakeIndex) AddLink(storageID, name, destinationName string, times index.EntryTimes, userID, groupID, permission uint64) error {
	return nil
}
func (fakeIndex) AddHardlink(storageID, name string, size uint64, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return nil
}
func (fakeIndex) AddSpecial(storageID, name string, specialType index.SpecialType, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return nil
}
func (fakeIndex) SetState(indexID string, state index.IndexState, lastCheckedDateTime time.Time, errorMessage string) error {
	return nil
}
func (fakeIndex) StorageUpdate(storageID, storageName string, storageSize uint64) error { return nil }
func (fakeIndex) UpdateStorageInfos(storageID string) error                             { return nil }
func (fakeIndex) NewHistory(jobUUID, scheduleUUID, hostName string, archiveType index.ArchiveType, createdDateTime time.Time, errorMessage string, duration time.Duration, totalEntryCount, skippedEntryCount, errorEntryCount, totalEntrySize, skippedEntrySize, errorEntrySize uint64) (string, error) {
	return "history-1", nil
}

func TestArchiveDispatcherUnknownCommand(t *testing.T) {
	fr := newFakeReceiver()
	d := NewArchiveDispatcher(fr, nil, fakeIndex{})
	res := runOne(t, d, fr, 1, "BOGUS_COMMAND", "")
	if res.errorCode == 0 {
		t.Error("expected a nonzero errorCode for an unknown command")
	}
}

func TestStorageCreateWriteClose(t *testing.T) {
	fr := newFakeReceiver()
	backend := newFakeBackend()
	d := NewArchiveDispatcher(fr, backend, fakeIndex{})

	fr.push(1, "STORAGE_CREATE", "archiveName='a.bar' archiveSize=3")
	fr.push(2, "STORAGE_WRITE", "offset=0 length=3 data="+base64.StdEncoding.EncodeToString([]byte("ABC")))
	fr.push(3, "STORAGE_CLOSE", "")
	close(fr.in)
	d.Run(context.Background())

	for _, r := range fr.out {
		if r.errorCode != 0 {
			t.Errorf("command %d failed with errorCode %d", r.id, r.errorCode)
		}
	}
	sink := backend.opened["a.bar"]
	if sink == nil || sink.buf.String() != "ABC" {
		t.Fatalf("sink contents = %+v, want ABC", sink)
	}
	if !sink.closed {
		t.Error("expected sink to be closed")
	}
}

func TestStorageWriteRejectsOutOfOrderOffset(t *testing.T) {
	fr := newFakeReceiver()
	backend := newFakeBackend()
	d := NewArchiveDispatcher(fr, backend, fakeIndex{})

	fr.push(1, "STORAGE_CREATE", "archiveName='a.bar' archiveSize=10")
	fr.push(2, "STORAGE_WRITE", "offset=4 length=3 data="+base64.StdEncoding.EncodeToString([]byte("ABC")))
	close(fr.in)
	d.Run(context.Background())

	if fr.out[1].errorCode == 0 {
		t.Error("expected an out-of-order STORAGE_WRITE to be rejected")
	}
}

func TestStorageWriteRequiresPriorCreate(t *testing.T) {
	fr := newFakeReceiver()
	d := NewArchiveDispatcher(fr, newFakeBackend(), fakeIndex{})
	res := runOne(t, d, fr, 1, "STORAGE_WRITE", "offset=0 length=3 data=QUJD")
	if res.errorCode == 0 {
		t.Error("expected STORAGE_WRITE without a prior STORAGE_CREATE to fail")
	}
}

func TestPreProcessAndPostProcessAcknowledgeOnly(t *testing.T) {
	fr := newFakeReceiver()
	d := NewArchiveDispatcher(fr, nil, fakeIndex{})

	fr.push(1, "PREPROCESS", "archiveName='a.bar' time=1700000000 initialFlag=yes")
	fr.push(2, "POSTPROCESS", "archiveName='a.bar' time=1700000100 finalFlag=yes")
	close(fr.in)
	d.Run(context.Background())

	for _, r := range fr.out {
		if r.errorCode != 0 {
			t.Errorf("command %d failed with errorCode %d", r.id, r.errorCode)
		}
	}
}

func TestIndexHandlersRoundTrip(t *testing.T) {
	fr := newFakeReceiver()
	d := NewArchiveDispatcher(fr, nil, fakeIndex{})

	fr.push(1, "INDEX_FIND_UUID", "jobUUID=job-1 scheduleUUID=sched-1")
	fr.push(2, "INDEX_NEW_UUID", "jobUUID=job-1")
	fr.push(3, "INDEX_NEW_ENTITY", "jobUUID=job-1 scheduleUUID=sched-1 archiveType=FULL locked=no")
	fr.push(4, "INDEX_NEW_STORAGE", "entityId=entity-1 storageName='a.bar' size=10 indexState=OK indexMode=AUTO")
	fr.push(5, "INDEX_ADD_FILE", "storageId=storage-1 name='a.txt' size=10 userId=0 groupId=0 permission=420 fragmentOffset=0 fragmentSize=10")
	fr.push(6, "INDEX_ADD_IMAGE", "storageId=storage-1 name='disk.img' fileSystemType=ext4 size=1024 blockSize=512 blockOffset=0 blockCount=2")
	fr.push(7, "INDEX_ADD_DIRECTORY", "storageId=storage-1 name='dir' userId=0 groupId=0 permission=493")
	fr.push(8, "INDEX_ADD_LINK", "storageId=storage-1 name='l' destinationName='target' userId=0 groupId=0 permission=420")
	fr.push(9, "INDEX_ADD_HARDLINK", "storageId=storage-1 name='h' size=10 userId=0 groupId=0 permission=420 fragmentOffset=0 fragmentSize=10")
	fr.push(10, "INDEX_ADD_SPECIAL", "storageId=storage-1 name='dev' specialType=BLOCK_DEVICE userId=0 groupId=0 permission=420 fragmentOffset=0 fragmentSize=0")
	fr.push(11, "INDEX_SET_STATE", "indexId=storage-1 state=OK errorMessage=''")
	fr.push(12, "INDEX_STORAGE_UPDATE", "storageId=storage-1 storageName='a.bar' storageSize=20")
	fr.push(13, "INDEX_UPDATE_STORAGE_INFOS", "storageId=storage-1")
	fr.push(14, "INDEX_NEW_HISTORY", "jobUUID=job-1 scheduleUUID=sched-1 hostName='h' archiveType=FULL errorMessage='' duration=1.5 totalEntryCount=1 skippedEntryCount=0 errorEntryCount=0 totalEntrySize=10 skippedEntrySize=0 errorEntrySize=0")
	close(fr.in)
	d.Run(context.Background())

	for _, r := range fr.out {
		if r.errorCode != 0 {
			t.Errorf("command %d failed with errorCode %d: %v", r.id, r.errorCode, r.args)
		}
	}
}
