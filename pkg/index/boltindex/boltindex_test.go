package boltindex

import (
	"testing"
	"time"

	"github.com/cuemby/vaultline/pkg/index"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestNewUUIDAndFindUUID(t *testing.T) {
	idx := openTestIndex(t)

	id, err := idx.NewUUID("job-1")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected non-empty uuid id")
	}

	info, err := idx.FindUUID("job-1", "sched-1")
	if err != nil {
		t.Fatal(err)
	}
	if info.UUIDID != id {
		t.Errorf("UUIDID = %q, want %q", info.UUIDID, id)
	}
}

func TestEntityStorageEntryChain(t *testing.T) {
	idx := openTestIndex(t)

	entityID, err := idx.NewEntity("job-1", "sched-1", index.ArchiveFull, time.Now(), false)
	if err != nil {
		t.Fatal(err)
	}
	storageID, err := idx.NewStorage(entityID, "vol-1", time.Now(), 1024, index.IndexStateCreate, index.IndexModeAuto)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.AddFile(storageID, "a.txt", 10, index.EntryTimes{}, 0, 0, 0o644, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := idx.AddDirectory(storageID, "dir", index.EntryTimes{}, 0, 0, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := idx.SetState(storageID, index.IndexStateOK, time.Now(), ""); err != nil {
		t.Fatal(err)
	}
	if err := idx.StorageUpdate(storageID, "vol-1-renamed", 2048); err != nil {
		t.Fatal(err)
	}
	if err := idx.UpdateStorageInfos(storageID); err != nil {
		t.Fatal(err)
	}
}

func TestNewHistoryAccumulatesIntoUUID(t *testing.T) {
	idx := openTestIndex(t)

	if _, err := idx.NewUUID("job-1"); err != nil {
		t.Fatal(err)
	}

	historyID, err := idx.NewHistory("job-1", "sched-1", "host-a", index.ArchiveFull, time.Now(), "",
		2*time.Minute, 100, 5, 1, 1000, 50, 10)
	if err != nil {
		t.Fatal(err)
	}
	if historyID == "" {
		t.Fatal("expected non-empty history id")
	}

	info, err := idx.FindUUID("job-1", "sched-1")
	if err != nil {
		t.Fatal(err)
	}
	if info.ExecutionCount[index.ArchiveFull] != 1 {
		t.Errorf("ExecutionCount[Full] = %d, want 1", info.ExecutionCount[index.ArchiveFull])
	}
	if info.TotalEntryCount != 100 {
		t.Errorf("TotalEntryCount = %d, want 100", info.TotalEntryCount)
	}
}

func TestSetStateOnUnknownStorageFails(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.SetState("does-not-exist", index.IndexStateError, time.Now(), "boom"); err == nil {
		t.Error("expected error for unknown storage id")
	}
}
