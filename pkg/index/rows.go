package index

import "time"

// UUIDRow is the per-(jobUUID) row tracking accumulated statistics
// across every execution of that job, keyed by the worker's
// generated uuidId.
type UUIDRow struct {
	UUIDID               string
	JobUUID              string
	LastExecutedDateTime time.Time
	LastErrorMessage     string
	ExecutionCount       map[string]uint64
	TotalDurationSeconds  map[string]float64
	TotalEntityCount     uint64
	TotalStorageCount    uint64
	TotalStorageSize     uint64
	TotalEntryCount      uint64
	TotalEntrySize       uint64
}

// EntityRow is one INDEX_NEW_ENTITY row: a single execution instance
// of a job.
type EntityRow struct {
	EntityID        string
	JobUUID         string
	ScheduleUUID    string
	ArchiveType     string
	CreatedDateTime time.Time
	Locked          bool
}

// StorageRow is one archive volume produced during an entity's execution.
type StorageRow struct {
	StorageID       string
	EntityID        string
	StorageName     string
	CreatedDateTime time.Time
	Size            uint64
	State           string
	Mode            string
	LastCheckedDateTime time.Time
	ErrorMessage    string
}

// EntryRow is one filesystem entry recorded under a storage row,
// covering files, directories, links, hardlinks, and special files —
// distinguished by Kind.
type EntryRow struct {
	StorageID       string
	Kind            string // FILE | DIRECTORY | LINK | HARDLINK | SPECIAL | IMAGE
	Name            string
	DestinationName string
	SpecialType     string
	FileSystemType  string
	Size            uint64
	BlockSize       uint64
	BlockOffset     uint64
	BlockCount      uint64
	TimeLastAccess  time.Time
	TimeModified    time.Time
	TimeLastChanged time.Time
	UserID          uint64
	GroupID         uint64
	Permission      uint64
	FragmentOffset  uint64
	FragmentSize    uint64
}

// HistoryRow is one completed job execution summary, recorded by
// INDEX_NEW_HISTORY.
type HistoryRow struct {
	HistoryID         string
	JobUUID           string
	ScheduleUUID      string
	HostName          string
	ArchiveType       string
	CreatedDateTime   time.Time
	ErrorMessage      string
	DurationSeconds   float64
	TotalEntryCount   uint64
	SkippedEntryCount uint64
	ErrorEntryCount   uint64
	TotalEntrySize    uint64
	SkippedEntrySize  uint64
	ErrorEntrySize    uint64
}
