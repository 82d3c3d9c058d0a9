// Package boltindex implements index.IndexHandle on top of a bbolt
// database file, one bucket per row kind, grounded on the teacher's
// pkg/storage/boltdb.go bucket-per-entity-kind idiom.
package boltindex

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cuemby/vaultline/pkg/index"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUUIDs    = []byte("index_uuids")
	bucketEntities = []byte("index_entities")
	bucketStorages = []byte("index_storages")
	bucketEntries  = []byte("index_entries")
	bucketHistory  = []byte("index_history")
	bucketSeq      = []byte("index_seq")
)

// Index is a bbolt-backed index.IndexHandle.
type Index struct {
	db  *bolt.DB
	seq atomic.Uint64
}

// Open opens (creating if absent) the index database under dataDir.
func Open(dataDir string) (*Index, error) {
	dbPath := filepath.Join(dataDir, "vaultline-index.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltindex: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketUUIDs, bucketEntities, bucketStorages, bucketEntries, bucketHistory, bucketSeq} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &Index{db: db}
	if err := idx.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) loadSeq() error {
	return idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeq)
		v := b.Get([]byte("next"))
		if v == nil {
			return nil
		}
		n, err := strconv.ParseUint(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parsing sequence counter: %w", err)
		}
		idx.seq.Store(n)
		return nil
	})
}

// nextID returns a fresh, persistently-monotonic id for row keys.
func (idx *Index) nextID(prefix string) (string, error) {
	n := idx.seq.Add(1)
	err := idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSeq)
		return b.Put([]byte("next"), []byte(strconv.FormatUint(n, 10)))
	})
	if err != nil {
		return "", fmt.Errorf("boltindex: persisting sequence counter: %w", err)
	}
	return fmt.Sprintf("%s-%d", prefix, n), nil
}

func putJSON(tx *bolt.Tx, bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}
	return tx.Bucket(bucket).Put(key, data)
}

func getJSON(tx *bolt.Tx, bucket, key []byte, v any) (bool, error) {
	data := tx.Bucket(bucket).Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshaling row: %w", err)
	}
	return true, nil
}

// NewUUID implements index.IndexHandle.
func (idx *Index) NewUUID(jobUUID string) (string, error) {
	id, err := idx.nextID("uuid")
	if err != nil {
		return "", err
	}
	row := index.UUIDRow{
		UUIDID:               id,
		JobUUID:              jobUUID,
		ExecutionCount:       make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}
	err = idx.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketUUIDs, []byte(id), row)
	})
	if err != nil {
		return "", fmt.Errorf("boltindex: creating uuid row: %w", err)
	}
	return id, nil
}

// FindUUID implements index.IndexHandle.
func (idx *Index) FindUUID(jobUUID, scheduleUUID string) (index.UUIDInfo, error) {
	var found index.UUIDRow
	var ok bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketUUIDs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var row index.UUIDRow
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("unmarshaling row: %w", err)
			}
			if row.JobUUID == jobUUID {
				found = row
				ok = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return index.UUIDInfo{}, err
	}
	if !ok {
		return index.UUIDInfo{}, fmt.Errorf("boltindex: no uuid row for jobUUID %q", jobUUID)
	}

	info := index.UUIDInfo{
		UUIDID:               found.UUIDID,
		LastExecutedDateTime: found.LastExecutedDateTime,
		LastErrorMessage:     found.LastErrorMessage,
		ExecutionCount:       index.ExecutionCounts{},
		AverageDuration:      index.AverageDurations{},
		TotalEntityCount:     found.TotalEntityCount,
		TotalStorageCount:    found.TotalStorageCount,
		TotalStorageSize:     found.TotalStorageSize,
		TotalEntryCount:      found.TotalEntryCount,
		TotalEntrySize:       found.TotalEntrySize,
	}
	for _, at := range []index.ArchiveType{index.ArchiveNormal, index.ArchiveFull, index.ArchiveIncremental, index.ArchiveDifferential, index.ArchiveContinuous} {
		name := at.String()
		count := found.ExecutionCount[name]
		info.ExecutionCount[at] = count
		if count > 0 {
			avgSec := found.TotalDurationSeconds[name] / float64(count)
			info.AverageDuration[at] = time.Duration(avgSec * float64(time.Second))
		}
	}
	return info, nil
}

// NewEntity implements index.IndexHandle.
func (idx *Index) NewEntity(jobUUID, scheduleUUID string, archiveType index.ArchiveType, createdDateTime time.Time, locked bool) (string, error) {
	id, err := idx.nextID("entity")
	if err != nil {
		return "", err
	}
	row := index.EntityRow{
		EntityID:        id,
		JobUUID:         jobUUID,
		ScheduleUUID:    scheduleUUID,
		ArchiveType:     archiveType.String(),
		CreatedDateTime: createdDateTime,
		Locked:          locked,
	}
	err = idx.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketEntities, []byte(id), row)
	})
	if err != nil {
		return "", fmt.Errorf("boltindex: creating entity row: %w", err)
	}
	return id, nil
}

// NewStorage implements index.IndexHandle.
func (idx *Index) NewStorage(entityID, storageName string, createdDateTime time.Time, size uint64, state index.IndexState, mode index.IndexMode) (string, error) {
	id, err := idx.nextID("storage")
	if err != nil {
		return "", err
	}
	row := index.StorageRow{
		StorageID:       id,
		EntityID:        entityID,
		StorageName:     storageName,
		CreatedDateTime: createdDateTime,
		Size:            size,
		State:           state.String(),
		Mode:            mode.String(),
	}
	err = idx.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketStorages, []byte(id), row)
	})
	if err != nil {
		return "", fmt.Errorf("boltindex: creating storage row: %w", err)
	}
	return id, nil
}

func (idx *Index) addEntry(row index.EntryRow) error {
	id, err := idx.nextID("entry")
	if err != nil {
		return err
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketEntries, []byte(id), row)
	})
}

// AddFile implements index.IndexHandle.
func (idx *Index) AddFile(storageID, name string, size uint64, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "FILE", Name: name, Size: size,
		TimeLastAccess: times.LastAccess, TimeModified: times.Modified, TimeLastChanged: times.LastChanged,
		UserID: userID, GroupID: groupID, Permission: permission,
		FragmentOffset: fragmentOffset, FragmentSize: fragmentSize,
	})
}

// AddImage implements index.IndexHandle.
func (idx *Index) AddImage(storageID, name, fileSystemType string, size, blockSize, blockOffset, blockCount uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "IMAGE", Name: name, FileSystemType: fileSystemType,
		Size: size, BlockSize: blockSize, BlockOffset: blockOffset, BlockCount: blockCount,
	})
}

// AddDirectory implements index.IndexHandle.
func (idx *Index) AddDirectory(storageID, name string, times index.EntryTimes, userID, groupID, permission uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "DIRECTORY", Name: name,
		TimeLastAccess: times.LastAccess, TimeModified: times.Modified, TimeLastChanged: times.LastChanged,
		UserID: userID, GroupID: groupID, Permission: permission,
	})
}

// AddLink implements index.IndexHandle.
func (idx *Index) AddLink(storageID, name, destinationName string, times index.EntryTimes, userID, groupID, permission uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "LINK", Name: name, DestinationName: destinationName,
		TimeLastAccess: times.LastAccess, TimeModified: times.Modified, TimeLastChanged: times.LastChanged,
		UserID: userID, GroupID: groupID, Permission: permission,
	})
}

// AddHardlink implements index.IndexHandle.
func (idx *Index) AddHardlink(storageID, name string, size uint64, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "HARDLINK", Name: name, Size: size,
		TimeLastAccess: times.LastAccess, TimeModified: times.Modified, TimeLastChanged: times.LastChanged,
		UserID: userID, GroupID: groupID, Permission: permission,
		FragmentOffset: fragmentOffset, FragmentSize: fragmentSize,
	})
}

// AddSpecial implements index.IndexHandle.
func (idx *Index) AddSpecial(storageID, name string, specialType index.SpecialType, times index.EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error {
	return idx.addEntry(index.EntryRow{
		StorageID: storageID, Kind: "SPECIAL", Name: name, SpecialType: specialType.String(),
		TimeLastAccess: times.LastAccess, TimeModified: times.Modified, TimeLastChanged: times.LastChanged,
		UserID: userID, GroupID: groupID, Permission: permission,
		FragmentOffset: fragmentOffset, FragmentSize: fragmentSize,
	})
}

// SetState implements index.IndexHandle. indexID names a storage row:
// the worker addresses index entries by their storage id once created.
func (idx *Index) SetState(indexID string, state index.IndexState, lastCheckedDateTime time.Time, errorMessage string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		var row index.StorageRow
		ok, err := getJSON(tx, bucketStorages, []byte(indexID), &row)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("boltindex: no storage row %q", indexID)
		}
		row.State = state.String()
		row.LastCheckedDateTime = lastCheckedDateTime
		row.ErrorMessage = errorMessage
		return putJSON(tx, bucketStorages, []byte(indexID), row)
	})
}

// StorageUpdate implements index.IndexHandle.
func (idx *Index) StorageUpdate(storageID, storageName string, storageSize uint64) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		var row index.StorageRow
		ok, err := getJSON(tx, bucketStorages, []byte(storageID), &row)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("boltindex: no storage row %q", storageID)
		}
		row.StorageName = storageName
		row.Size = storageSize
		return putJSON(tx, bucketStorages, []byte(storageID), row)
	})
}

// UpdateStorageInfos implements index.IndexHandle. In the absence of a
// filesystem stat step (out of scope here — see DESIGN.md), this is a
// read-only check that confirms the row exists; nothing is written.
func (idx *Index) UpdateStorageInfos(storageID string) error {
	return idx.db.View(func(tx *bolt.Tx) error {
		var row index.StorageRow
		ok, err := getJSON(tx, bucketStorages, []byte(storageID), &row)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("boltindex: no storage row %q", storageID)
		}
		return nil
	})
}

// NewHistory implements index.IndexHandle.
func (idx *Index) NewHistory(jobUUID, scheduleUUID, hostName string, archiveType index.ArchiveType, createdDateTime time.Time, errorMessage string, duration time.Duration, totalEntryCount, skippedEntryCount, errorEntryCount, totalEntrySize, skippedEntrySize, errorEntrySize uint64) (string, error) {
	id, err := idx.nextID("history")
	if err != nil {
		return "", err
	}
	row := index.HistoryRow{
		HistoryID: id, JobUUID: jobUUID, ScheduleUUID: scheduleUUID, HostName: hostName,
		ArchiveType: archiveType.String(), CreatedDateTime: createdDateTime, ErrorMessage: errorMessage,
		DurationSeconds:   duration.Seconds(),
		TotalEntryCount:   totalEntryCount,
		SkippedEntryCount: skippedEntryCount,
		ErrorEntryCount:   errorEntryCount,
		TotalEntrySize:    totalEntrySize,
		SkippedEntrySize:  skippedEntrySize,
		ErrorEntrySize:    errorEntrySize,
	}

	err = idx.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx, bucketHistory, []byte(id), row); err != nil {
			return err
		}
		// Fold this execution into the job's running UUID statistics.
		c := tx.Bucket(bucketUUIDs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var uuidRow index.UUIDRow
			if err := json.Unmarshal(v, &uuidRow); err != nil {
				return fmt.Errorf("unmarshaling uuid row: %w", err)
			}
			if uuidRow.JobUUID != jobUUID {
				continue
			}
			if uuidRow.ExecutionCount == nil {
				uuidRow.ExecutionCount = make(map[string]uint64)
			}
			if uuidRow.TotalDurationSeconds == nil {
				uuidRow.TotalDurationSeconds = make(map[string]float64)
			}
			name := archiveType.String()
			uuidRow.ExecutionCount[name]++
			uuidRow.TotalDurationSeconds[name] += duration.Seconds()
			uuidRow.LastExecutedDateTime = createdDateTime
			uuidRow.LastErrorMessage = errorMessage
			uuidRow.TotalEntryCount += totalEntryCount
			uuidRow.TotalEntrySize += totalEntrySize
			return putJSON(tx, bucketUUIDs, []byte(k), uuidRow)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("boltindex: recording history row: %w", err)
	}
	return id, nil
}

var _ index.IndexHandle = (*Index)(nil)
