package index

import "time"

// EntryTimes bundles the three POSIX timestamps repeated across most
// INDEX_ADD_* commands, to keep those method signatures from sprawling.
type EntryTimes struct {
	LastAccess  time.Time
	Modified    time.Time
	LastChanged time.Time
}

// ExecutionCounts and AverageDurations key by ArchiveType, matching the
// per-type breakdown INDEX_FIND_UUID reports.
type ExecutionCounts map[ArchiveType]uint64
type AverageDurations map[ArchiveType]time.Duration

// UUIDInfo is the result of INDEX_FIND_UUID: the prior-execution
// summary for a (jobUUID, scheduleUUID) pair.
type UUIDInfo struct {
	UUIDID               string
	LastExecutedDateTime time.Time
	LastErrorMessage     string
	ExecutionCount       ExecutionCounts
	AverageDuration      AverageDurations
	TotalEntityCount     uint64
	TotalStorageCount    uint64
	TotalStorageSize     uint64
	TotalEntryCount      uint64
	TotalEntrySize       uint64
}

// IndexHandle is the index-database collaborator driven by the
// INDEX_* commands (spec §4.7/§6). Those commands are worker-originated
// and master-serviced (spec §6 direction W→M): the master's connector
// dispatch loop is single-writer against its IndexHandle, serializing
// index mutations behind it for the lifetime of one connection (spec
// §5 "Shared-resource policy").
type IndexHandle interface {
	NewUUID(jobUUID string) (uuidID string, err error)
	FindUUID(jobUUID, scheduleUUID string) (UUIDInfo, error)

	NewEntity(jobUUID, scheduleUUID string, archiveType ArchiveType, createdDateTime time.Time, locked bool) (entityID string, err error)
	NewStorage(entityID, storageName string, createdDateTime time.Time, size uint64, state IndexState, mode IndexMode) (storageID string, err error)

	AddFile(storageID, name string, size uint64, times EntryTimes, userID, groupID uint64, permission uint64, fragmentOffset, fragmentSize uint64) error
	AddImage(storageID, name, fileSystemType string, size, blockSize, blockOffset, blockCount uint64) error
	AddDirectory(storageID, name string, times EntryTimes, userID, groupID, permission uint64) error
	AddLink(storageID, name, destinationName string, times EntryTimes, userID, groupID, permission uint64) error
	AddHardlink(storageID, name string, size uint64, times EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error
	AddSpecial(storageID, name string, specialType SpecialType, times EntryTimes, userID, groupID, permission, fragmentOffset, fragmentSize uint64) error

	SetState(indexID string, state IndexState, lastCheckedDateTime time.Time, errorMessage string) error
	StorageUpdate(storageID, storageName string, storageSize uint64) error
	UpdateStorageInfos(storageID string) error

	NewHistory(jobUUID, scheduleUUID, hostName string, archiveType ArchiveType, createdDateTime time.Time, errorMessage string, duration time.Duration, totalEntryCount, skippedEntryCount, errorEntryCount uint64, totalEntrySize, skippedEntrySize, errorEntrySize uint64) (historyID string, err error)
}
